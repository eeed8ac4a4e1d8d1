package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inkpost/inkpost/internal/store"
	"github.com/inkpost/inkpost/internal/store/sqlite"

	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T, now func() time.Time) *Service {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc, err := NewService(st, Options{
		Secret:   []byte("test-secret"),
		TokenTTL: 7 * 24 * time.Hour,
		HashCost: bcrypt.MinCost,
		Now:      now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice_writer", "alice@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.ID == "" || account.PasswordHash == "s3cret-pass" {
		t.Fatalf("unexpected account: %+v", account)
	}
	if account.CreatedAt.IsZero() || !account.CreatedAt.Equal(account.UpdatedAt) {
		t.Fatalf("expected matching timestamps, got %v / %v", account.CreatedAt, account.UpdatedAt)
	}

	got, err := svc.Login(ctx, "alice_writer", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != account.ID {
		t.Fatalf("login returned %s, want %s", got.ID, account.ID)
	}

	if _, err := svc.Register(ctx, "alice_writer", "other@example.com", "another-pass"); !errors.Is(err, store.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "bob_the_author", "bob@example.com", "right-password"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPass := svc.Login(ctx, "bob_the_author", "wrong-password")
	_, unknown := svc.Login(ctx, "nobody_at_all", "right-password")
	if !errors.Is(wrongPass, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v and %v", wrongPass, unknown)
	}
	if wrongPass.Error() != unknown.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPass, unknown)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, func() time.Time { return now })
	account, err := svc.Register(context.Background(), "carol_writes", "", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, expiresAt, err := svc.IssueToken(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	id, err := svc.Authenticate(token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.AccountID != account.ID || id.Username != "carol_writes" {
		t.Fatalf("unexpected identity %+v", id)
	}

	now = expiresAt
	if _, err := svc.Authenticate(token); err != nil {
		t.Fatalf("token should be valid at expiry instant: %v", err)
	}

	now = expiresAt.Add(time.Second)
	if _, err := svc.Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestTokenExpiryFractionalIssue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	svc := newTestService(t, func() time.Time { return now })
	account, err := svc.Register(context.Background(), "erin_drafts", "", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, expiresAt, err := svc.IssueToken(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if expiresAt.Nanosecond() != 0 {
		t.Fatalf("expiry not whole seconds: %v", expiresAt)
	}
	if expiresAt.After(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expiry %v later than issue time plus ttl", expiresAt)
	}

	now = expiresAt
	if _, err := svc.Authenticate(token); err != nil {
		t.Fatalf("token should be valid at expiry instant: %v", err)
	}
	for _, past := range []time.Duration{time.Nanosecond, time.Millisecond, 500 * time.Millisecond} {
		now = expiresAt.Add(past)
		if _, err := svc.Authenticate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%v after expiry: expected rejection, got %v", past, err)
		}
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc := newTestService(t, nil)
	account, err := svc.Register(context.Background(), "dave_reviews", "", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := svc.IssueToken(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Authenticate(""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected no token, got %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := svc.Authenticate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered token rejected, got %v", err)
	}

	other, err := NewService(nil, Options{Secret: []byte("another-secret"), HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := other.Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign signature rejected, got %v", err)
	}

	if _, err := svc.Authenticate("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(nil, Options{}); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestTokenFromRequest(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		want   string
	}{
		{"cookie", http.Header{"Cookie": {"theme=dark; token=abc.def.ghi"}}, "abc.def.ghi"},
		{"quoted", http.Header{"Cookie": {`token="abc.def"`}}, "abc.def"},
		{"bearer", http.Header{"Authorization": {"Bearer xyz.123"}}, "xyz.123"},
		{"cookie wins", http.Header{"Cookie": {"token=from-cookie"}, "Authorization": {"Bearer from-header"}}, "from-cookie"},
		{"other cookie only", http.Header{"Cookie": {"mytoken=nope"}}, ""},
		{"basic auth ignored", http.Header{"Authorization": {"Basic Zm9vOmJhcg=="}}, ""},
		{"none", http.Header{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/profile", nil)
			r.Header = tc.header
			if got := TokenFromRequest(r); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSessionCookies(t *testing.T) {
	c := SessionCookie("tok", 7*24*time.Hour, true)
	if c.Name != "token" || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if c.MaxAge != 604800 {
		t.Fatalf("unexpected max age %d", c.MaxAge)
	}

	cleared := ClearedSessionCookie(false)
	if cleared.Secure {
		t.Fatalf("cleared cookie should follow secure flag")
	}
	if s := cleared.String(); !strings.Contains(s, "Max-Age=0") || !strings.HasPrefix(s, "token=;") {
		t.Fatalf("unexpected cleared cookie %q", s)
	}
}
