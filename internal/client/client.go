// Package client provides a Go client for the inkpost API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is an inkpost API client. After Login the session token is kept in
// Token and sent as a bearer header.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// New creates a new inkpost client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inkpost: %d %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from an *APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Profile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Post represents a post from the API.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Cover     string    `json:"cover,omitempty"`
	Category  string    `json:"category"`
	Slug      string    `json:"slug"`
	Author    User      `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NewPost struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Content  string `json:"content"`
	Category string `json:"category"`
	CoverURL string `json:"coverUrl,omitempty"`
}

// PostUpdate lists the fields to change. Nil fields are not sent.
type PostUpdate struct {
	ID       string  `json:"id"`
	Title    *string `json:"title,omitempty"`
	Summary  *string `json:"summary,omitempty"`
	Content  *string `json:"content,omitempty"`
	Category *string `json:"category,omitempty"`
	CoverURL *string `json:"coverUrl,omitempty"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(username, email, password string) (*Account, error) {
	var account Account
	err := c.call(http.MethodPost, "/api/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(username, password string) (*User, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "token" && cookie.Value != "" {
			c.Token = cookie.Value
		}
	}
	if c.Token == "" {
		return nil, errors.New("login succeeded but no session cookie was set")
	}
	return &result.User, nil
}

// Logout asks the server to clear the cookie and forgets the local token.
func (c *Client) Logout() error {
	err := c.call(http.MethodPost, "/api/logout", nil, nil)
	c.Token = ""
	return err
}

func (c *Client) IsAuthenticated() bool {
	return c.Token != ""
}

func (c *Client) Profile() (*Profile, error) {
	var profile Profile
	if err := c.call(http.MethodGet, "/api/profile", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListPosts returns the latest posts, newest first.
func (c *Client) ListPosts() ([]Post, error) {
	var posts []Post
	if err := c.call(http.MethodGet, "/api/posts", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) GetPost(id string) (*Post, error) {
	var post Post
	if err := c.call(http.MethodGet, "/api/post-id?id="+url.QueryEscape(id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) PostsByCategory(category string) ([]Post, error) {
	var posts []Post
	if err := c.call(http.MethodGet, "/api/post-category?category="+url.QueryEscape(category), nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) CreatePost(p NewPost) (*Post, error) {
	var post Post
	if err := c.call(http.MethodPost, "/api/posts", p, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) UpdatePost(u PostUpdate) (*Post, error) {
	var post Post
	if err := c.call(http.MethodPut, "/api/post-update", u, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) call(method, path string, body, out any) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error string `json:"error"`
		}
		msg := string(bytes.TrimSpace(body))
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// TestPassword is the password CreateAuthenticatedClient registers with.
const TestPassword = "correct-horse-battery"

// CreateAuthenticatedClient registers username and returns a logged-in
// client plus the account id.
func (h *TestHelper) CreateAuthenticatedClient(username string) (*Client, string, error) {
	c := New(h.BaseURL)
	account, err := c.Register(username, username+"@example.com", TestPassword)
	if err != nil {
		return nil, "", fmt.Errorf("register %s: %w", username, err)
	}
	if _, err := c.Login(username, TestPassword); err != nil {
		return nil, "", fmt.Errorf("login %s: %w", username, err)
	}
	return c, account.ID, nil
}

// GetToken registers username and returns its session token.
func (h *TestHelper) GetToken(username string) (string, error) {
	c, _, err := h.CreateAuthenticatedClient(username)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}
