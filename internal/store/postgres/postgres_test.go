package postgres

import (
	"testing"
	"time"

	"github.com/inkpost/inkpost/internal/model"
)

func TestBuildUpdateTitleOnly(t *testing.T) {
	title := "Only the title"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	query, args := buildUpdate("507f1f77bcf86cd799439011", model.PostPatch{Title: &title, UpdatedAt: at})

	want := "UPDATE posts SET title = $1, updated_at = $2 WHERE id = $3"
	if query != want {
		t.Fatalf("unexpected query:\n got %s\nwant %s", query, want)
	}
	if len(args) != 3 || args[0] != title || args[1] != at || args[2] != "507f1f77bcf86cd799439011" {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildUpdateClearsCover(t *testing.T) {
	empty := ""
	category := "React"
	query, args := buildUpdate("507f1f77bcf86cd799439011", model.PostPatch{Category: &category, Cover: &empty})

	want := "UPDATE posts SET category = $1, cover = $2, updated_at = $3 WHERE id = $4"
	if query != want {
		t.Fatalf("unexpected query:\n got %s\nwant %s", query, want)
	}
	if args[1] != nil {
		t.Fatalf("expected NULL cover, got %#v", args[1])
	}
}
