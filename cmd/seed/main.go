package main

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/inkpost/inkpost/internal/client"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var writers = []struct {
	username string
	email    string
}{
	{"ada_lovelace", "ada@example.com"},
	{"grace_hopper", "grace@example.com"},
	{"linus_writes", "linus@example.com"},
	{"margaret_ham", "margaret@example.com"},
}

var posts = []struct {
	title    string
	summary  string
	category string
	cover    string
}{
	{"Type Hints Without Tears", "A gentle tour of Python typing for existing codebases.", "Python", "https://images.example.com/python-types.png"},
	{"Async Iterators in Practice", "Streaming data with async generators and for-await loops.", "Javascript", ""},
	{"Server Components, Explained", "What actually runs where, and why it matters for bundle size.", "React", "https://images.example.com/rsc.png"},
	{"The Forgotten Power of HTTP Caching", "ETags, Cache-Control and the headers your CDN already understands.", "Web Development", ""},
	{"Designing Forms People Finish", "Field order, inline validation and error copy that helps.", "UI/UX Design", "https://images.example.com/forms.png"},
	{"Packaging Python in 2026", "pyproject.toml, lockfiles, and shipping wheels.", "Python", ""},
	{"Hooks That Don't Re-render", "Memoization patterns that survive code review.", "React", ""},
	{"Accessible Color Systems", "Contrast ratios, tokens and dark mode without guesswork.", "UI/UX Design", ""},
}

const body = `<p>This post was created by the seed tool so the front page has something to show.</p>
<p>Edit it from the web client or with <code>inkpost edit</code>.</p>`

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "seed",
		Usage: "populate an inkpost server with demo accounts and posts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", EnvVars: []string{"INKPOST_URL"}, Usage: "inkpost server URL"},
			&cli.StringFlag{Name: "password", Value: "seed-password", Usage: "password for every demo account"},
		},
		Action: seed,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func seed(c *cli.Context) error {
	baseURL := c.String("url")
	password := c.String("password")
	log.Printf("Seeding %s...", baseURL)

	var clients []*client.Client
	for _, w := range writers {
		cl := client.New(baseURL)
		_, err := cl.Register(w.username, w.email, password)
		switch {
		case err == nil:
			log.Printf("✓ Registered %s", w.username)
		case client.StatusCode(err) == http.StatusConflict:
			log.Printf("• %s already exists", w.username)
		default:
			return fmt.Errorf("register %s: %w", w.username, err)
		}
		if _, err := cl.Login(w.username, password); err != nil {
			return fmt.Errorf("login %s: %w", w.username, err)
		}
		clients = append(clients, cl)
	}
	if len(clients) == 0 {
		return errors.New("no accounts available")
	}

	for _, p := range posts {
		idx := rand.Intn(len(clients))
		post, err := clients[idx].CreatePost(client.NewPost{
			Title:    p.title,
			Summary:  p.summary,
			Content:  body,
			Category: p.category,
			CoverURL: p.cover,
		})
		if err != nil {
			log.Printf("✗ Failed to post %q: %v", p.title, err)
			continue
		}
		log.Printf("✓ Posted %s: %s (by %s)", post.ID, post.Title, writers[idx].username)

		// Spread out createdAt so ordering is visible.
		time.Sleep(50 * time.Millisecond)
	}

	log.Println("Done.")
	return nil
}
