package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/inkpost/inkpost/internal/client"

	"github.com/urfave/cli/v2"
)

const defaultBaseURL = "http://localhost:8080"

// CLIConfig holds the CLI client state persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "create an account and log in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Usage: "at least 8 characters"},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, EnvVars: []string{"INKPOST_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			cfg := loadCLIConfig()
			cl := client.New(baseURL(c, cfg))
			account, err := cl.Register(c.String("username"), c.String("email"), c.String("password"))
			if err != nil {
				return err
			}
			fmt.Printf("✓ Registered '%s' (account %s)\n", account.Username, account.ID)
			return login(cfg, cl, c.String("username"), c.String("password"))
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in and remember the session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, EnvVars: []string{"INKPOST_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			cfg := loadCLIConfig()
			cl := client.New(baseURL(c, cfg))
			return login(cfg, cl, c.String("username"), c.String("password"))
		},
	}
}

func login(cfg CLIConfig, cl *client.Client, username, password string) error {
	user, err := cl.Login(username, password)
	if err != nil {
		return err
	}
	cfg.BaseURL = cl.BaseURL
	cfg.Username = user.Username
	cfg.Token = cl.Token
	if err := saveCLIConfig(cfg); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Printf("✓ Logged in as '%s'\n", user.Username)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the saved session",
		Action: func(c *cli.Context) error {
			cfg := loadCLIConfig()
			cl := client.New(baseURL(c, cfg))
			cl.Token = cfg.Token
			if err := cl.Logout(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			cfg.Token = ""
			cfg.Username = ""
			if err := saveCLIConfig(cfg); err != nil {
				return err
			}
			fmt.Println("✓ Logged out")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:    "whoami",
		Aliases: []string{"status"},
		Usage:   "show the current session",
		Action: func(c *cli.Context) error {
			cl, err := authenticatedClient(c)
			if err != nil {
				return err
			}
			profile, err := cl.Profile()
			if err != nil {
				if client.StatusCode(err) == http.StatusUnauthorized {
					return errors.New("session expired - run 'inkpost login'")
				}
				return err
			}
			fmt.Printf("%s (%s) at %s\n", profile.Username, profile.UserID, cl.BaseURL)
			return nil
		},
	}
}

func postsCommand() *cli.Command {
	return &cli.Command{
		Name:    "posts",
		Aliases: []string{"list"},
		Usage:   "list the latest posts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "exact category name"},
		},
		Action: func(c *cli.Context) error {
			cl := client.New(baseURL(c, loadCLIConfig()))
			var posts []client.Post
			var err error
			if category := c.String("category"); category != "" {
				posts, err = cl.PostsByCategory(category)
			} else {
				posts, err = cl.ListPosts()
			}
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				fmt.Println("No posts.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tAUTHOR\tCREATED\tTITLE")
			for _, p := range posts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Category, p.Author.Username, p.CreatedAt.Local().Format("2006-01-02 15:04"), p.Title)
			}
			return w.Flush()
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Aliases:   []string{"read"},
		Usage:     "print one post",
		ArgsUsage: "<post-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return errors.New("post id is required")
			}
			p, err := client.New(baseURL(c, loadCLIConfig())).GetPost(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n%s\n\n", p.Title, strings.Repeat("=", len(p.Title)))
			fmt.Printf("%s · by %s · %s\n", p.Category, p.Author.Username, p.CreatedAt.Local().Format("2006-01-02 15:04"))
			if p.Cover != "" {
				fmt.Printf("Cover: %s\n", p.Cover)
			}
			fmt.Printf("\n%s\n\n%s\n", p.Summary, p.Content)
			return nil
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:    "create",
		Aliases: []string{"post"},
		Usage:   "publish a new post",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "summary", Required: true},
			&cli.StringFlag{Name: "content", Usage: "HTML content"},
			&cli.PathFlag{Name: "content-file", Usage: "read HTML content from a file"},
			&cli.StringFlag{Name: "category", Required: true},
			&cli.StringFlag{Name: "cover", Usage: "absolute cover image URL"},
		},
		Action: func(c *cli.Context) error {
			content, err := contentFlag(c)
			if err != nil {
				return err
			}
			cl, err := authenticatedClient(c)
			if err != nil {
				return err
			}
			p, err := cl.CreatePost(client.NewPost{
				Title:    c.String("title"),
				Summary:  c.String("summary"),
				Content:  content,
				Category: c.String("category"),
				CoverURL: c.String("cover"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("✓ Posted: %s\n", p.Title)
			fmt.Printf("  ID: %s\n", p.ID)
			return nil
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "change fields of one of your posts; only the flags given are sent",
		ArgsUsage: "<post-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title"},
			&cli.StringFlag{Name: "summary"},
			&cli.StringFlag{Name: "content"},
			&cli.PathFlag{Name: "content-file"},
			&cli.StringFlag{Name: "category"},
			&cli.StringFlag{Name: "cover", Usage: "pass an empty value to remove the cover"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return errors.New("post id is required")
			}
			update := client.PostUpdate{ID: id}
			set := func(name string) *string {
				if !c.IsSet(name) {
					return nil
				}
				v := c.String(name)
				return &v
			}
			update.Title = set("title")
			update.Summary = set("summary")
			update.Category = set("category")
			update.CoverURL = set("cover")
			update.Content = set("content")
			if c.IsSet("content-file") {
				content, err := contentFlag(c)
				if err != nil {
					return err
				}
				update.Content = &content
			}

			cl, err := authenticatedClient(c)
			if err != nil {
				return err
			}
			p, err := cl.UpdatePost(update)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Updated: %s\n", p.Title)
			return nil
		},
	}
}

func contentFlag(c *cli.Context) (string, error) {
	if path := c.Path("content-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return c.String("content"), nil
}

func baseURL(c *cli.Context, cfg CLIConfig) string {
	if u := c.String("url"); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return defaultBaseURL
}

func authenticatedClient(c *cli.Context) (*client.Client, error) {
	cfg := loadCLIConfig()
	if cfg.Token == "" {
		return nil, errors.New("not logged in - run 'inkpost login'")
	}
	cl := client.New(baseURL(c, cfg))
	cl.Token = cfg.Token
	return cl, nil
}

func cliConfigPath() string {
	if p := os.Getenv("INKPOST_CLI_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".inkpost", "config.json")
}

// loadCLIConfig returns the saved state, or a zero config when there is none.
func loadCLIConfig() CLIConfig {
	var cfg CLIConfig
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return cfg
	}
	_ = json.Unmarshal(data, &cfg)
	return cfg
}

func saveCLIConfig(cfg CLIConfig) error {
	path := cliConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(path, data, 0600)
}
