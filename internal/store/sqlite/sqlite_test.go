package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func createAuthor(t *testing.T, st *Store, username string) model.Account {
	t.Helper()
	account := model.Account{Username: username, Email: username + "@example.com", PasswordHash: "hash"}
	if err := st.CreateAccount(context.Background(), &account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func TestPostLifecycle(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()
	author := createAuthor(t, st, "lifecycle-author")

	post := model.Post{
		Title:    "Test Post",
		Summary:  "A summary",
		Content:  "<p>Hello</p>",
		Cover:    "https://cdn.example.com/a.png",
		Category: "Python",
		Slug:     "test-post",
		Author:   model.Author{ID: author.ID},
	}
	if err := st.CreatePost(ctx, &post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	got, err := st.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != post.Title || got.Cover != post.Cover || got.Category != "Python" {
		t.Fatalf("unexpected post: %+v", got)
	}
	if got.Author.ID != author.ID || got.Author.Username != "lifecycle-author" {
		t.Fatalf("expected expanded author, got %+v", got.Author)
	}

	if _, err := st.GetPost(ctx, store.NewID()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetPost(ctx, "xyz"); !errors.Is(err, store.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestPartialUpdate(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()
	author := createAuthor(t, st, "partial-author")

	post := model.Post{
		Title:    "Original",
		Summary:  "Original summary",
		Content:  "<p>body</p>",
		Cover:    "https://cdn.example.com/c.png",
		Category: "React",
		Slug:     "original",
		Author:   model.Author{ID: author.ID},
	}
	if err := st.CreatePost(ctx, &post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	title := "Changed"
	if err := st.UpdatePost(ctx, post.ID, model.PostPatch{Title: &title, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("update post: %v", err)
	}
	got, err := st.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != "Changed" {
		t.Fatalf("expected title change, got %q", got.Title)
	}
	if got.Summary != post.Summary || got.Content != post.Content || got.Category != post.Category || got.Cover != post.Cover || got.Slug != post.Slug {
		t.Fatalf("untouched fields changed: %+v", got)
	}

	empty := ""
	if err := st.UpdatePost(ctx, post.ID, model.PostPatch{Cover: &empty, Summary: &empty}); err != nil {
		t.Fatalf("clear fields: %v", err)
	}
	got, _ = st.GetPost(ctx, post.ID)
	if got.Cover != "" || got.Summary != "" {
		t.Fatalf("expected explicit empty values to overwrite, got %+v", got)
	}

	if err := st.UpdatePost(ctx, store.NewID(), model.PostPatch{Title: &title}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPosts(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()
	author := createAuthor(t, st, "listing-author")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		category := "Python"
		if i%2 == 1 {
			category = "React"
		}
		post := model.Post{
			Title:     fmt.Sprintf("Post %02d", i),
			Summary:   "s",
			Content:   "c",
			Category:  category,
			Author:    model.Author{ID: author.ID},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := st.CreatePost(ctx, &post); err != nil {
			t.Fatalf("create post %d: %v", i, err)
		}
	}

	posts, err := st.ListPosts(ctx, store.PostListOpts{})
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 20 {
		t.Fatalf("expected 20 posts, got %d", len(posts))
	}
	if posts[0].Title != "Post 24" || posts[19].Title != "Post 05" {
		t.Fatalf("expected newest first, got %q .. %q", posts[0].Title, posts[19].Title)
	}
	if posts[0].Author.Username != "listing-author" {
		t.Fatalf("expected author username, got %+v", posts[0].Author)
	}

	react, err := st.ListPosts(ctx, store.PostListOpts{Category: "React"})
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(react) != 12 {
		t.Fatalf("expected 12 React posts, got %d", len(react))
	}
	for _, p := range react {
		if p.Category != "React" {
			t.Fatalf("unexpected category %q", p.Category)
		}
	}

	lower, err := st.ListPosts(ctx, store.PostListOpts{Category: "react"})
	if err != nil {
		t.Fatalf("list by lowercase category: %v", err)
	}
	if len(lower) != 0 {
		t.Fatalf("expected case-sensitive match, got %d posts", len(lower))
	}
}
