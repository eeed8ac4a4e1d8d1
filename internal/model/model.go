package model

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const (
	MinUsernameLength = 8
	MaxTitleLength    = 200
	MaxSummaryLength  = 500
)

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Author is the only account projection ever returned alongside a post.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Cover     string    `json:"cover,omitempty"`
	Category  string    `json:"category"`
	Slug      string    `json:"slug"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostPatch carries a partial update. Nil fields are left untouched.
type PostPatch struct {
	Title     *string
	Summary   *string
	Content   *string
	Category  *string
	Cover     *string
	Slug      *string
	UpdatedAt time.Time
}

func (p PostPatch) Empty() bool {
	return p.Title == nil && p.Summary == nil && p.Content == nil && p.Category == nil && p.Cover == nil && p.Slug == nil
}

var Categories = []string{
	"Python",
	"Javascript",
	"React",
	"Web Development",
	"UI/UX Design",
}

// NormalizeCategory maps raw onto its canonical casing.
func NormalizeCategory(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(c, raw) {
			return c, true
		}
	}
	return "", false
}

func Slugify(title string) string {
	return slug.Make(title)
}
