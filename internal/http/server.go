package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/config"
	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/rate"
	"github.com/inkpost/inkpost/internal/store"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type Server struct {
	store   store.Store
	auth    *auth.Service
	limiter rate.Limiter
	cfg     config.Config
	logger  *slog.Logger
	assets  *assets
	now     func() time.Time
	handler http.Handler
}

func NewServer(store store.Store, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config, logger *slog.Logger) (*Server, error) {
	a, err := loadAssets()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = rate.NewMemory()
	}
	s := &Server{
		store:   store,
		auth:    authSvc,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		assets:  a,
		now:     time.Now,
	}
	s.handler = s.recoverPanics(s.logRequests(s.cors(s.routes())))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// Every API route answers both at the root and under /api.
	for _, prefix := range []string{"", "/api"} {
		r.HandleFunc(prefix+"/login", s.handleLogin).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/logout", s.handleLogout).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/register", s.handleRegister).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/profile", s.handleProfile).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/posts", s.handleListPosts).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/posts", s.handleCreatePost).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/post-id", s.handleGetPost).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/post-category", s.handlePostsByCategory).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/post-update", s.handleUpdatePost).Methods(http.MethodPut)
		r.HandleFunc(prefix+"/test", s.handleHealth).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/media-config", s.handleMediaConfig).Methods(http.MethodGet)
	}

	r.HandleFunc("/", s.serveIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/favicon.svg", s.serveFavicon).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix("/static/").Handler(s.assets.files).Methods(http.MethodGet, http.MethodHead)
	return r
}

// handleLogin godoc
//
//	@Summary		Log in
//	@Description	Verify credentials and set the session cookie.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			credentials	body		object{username=string,password=string}	true	"Credentials"
//	@Success		200			{object}	map[string]interface{}	"Login successful"
//	@Failure		400			{object}	map[string]string		"Missing fields"
//	@Failure		401			{object}	map[string]string		"Invalid credentials"
//	@Failure		429			{object}	map[string]string		"Rate limited"
//	@Router			/api/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "login", s.cfg.RateLimits.LoginPerMinute) {
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}

	account, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		s.serverError(w, r, err)
		return
	}

	token, _, err := s.auth.IssueToken(account)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(token, s.auth.TokenTTL(), s.cfg.IsProduction()))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    model.Author{ID: account.ID, Username: account.Username},
	})
}

// handleLogout godoc
//
//	@Summary		Log out
//	@Description	Clear the session cookie. The token itself stays valid until it expires.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"Logout successful"
//	@Router			/api/logout [post]
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearedSessionCookie(s.cfg.IsProduction()))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Logout successful"})
}

// handleRegister godoc
//
//	@Summary		Register an account
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			account	body		object{username=string,email=string,password=string}	true	"Account data"
//	@Success		201		{object}	model.Account
//	@Failure		400		{object}	map[string]string	"Validation error"
//	@Failure		409		{object}	map[string]string	"Username taken"
//	@Failure		429		{object}	map[string]string	"Rate limited"
//	@Router			/api/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "register", s.cfg.RateLimits.RegisterPerMinute) {
		return
	}
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "username, email and password are required",
			"required": []string{"username", "email", "password"},
			"missing":  missing,
		})
		return
	}
	if utf8.RuneCountInString(username) < model.MinUsernameLength {
		writeError(w, http.StatusBadRequest, fmt.Errorf("username must be at least %d characters", model.MinUsernameLength))
		return
	}

	account, err := s.auth.Register(r.Context(), username, email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			writeError(w, http.StatusConflict, errors.New("username already taken"))
			return
		}
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// handleProfile godoc
//
//	@Summary		Current session
//	@Tags			Auth
//	@Produce		json
//	@Security		CookieAuth
//	@Success		200	{object}	map[string]string	"userId and username"
//	@Failure		401	{object}	map[string]string	"Not authenticated"
//	@Router			/api/profile [get]
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": id.AccountID, "username": id.Username})
}

// handleListPosts godoc
//
//	@Summary		Latest posts
//	@Description	The 20 most recent posts, newest first.
//	@Tags			Posts
//	@Produce		json
//	@Success		200	{array}	model.Post
//	@Router			/api/posts [get]
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts(r.Context(), store.PostListOpts{Limit: store.DefaultPostLimit})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(posts))
}

// handleGetPost godoc
//
//	@Summary		Get a post
//	@Tags			Posts
//	@Produce		json
//	@Param			id	query		string	true	"Post ID"
//	@Success		200	{object}	model.Post
//	@Failure		400	{object}	map[string]string	"Missing or malformed id"
//	@Failure		404	{object}	map[string]string	"Post not found"
//	@Router			/api/post-id [get]
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !validatePostID(w, id) {
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.postLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handlePostsByCategory godoc
//
//	@Summary		Posts in a category
//	@Description	Exact, case-sensitive category match, newest first.
//	@Tags			Posts
//	@Produce		json
//	@Param			category	query	string	true	"Category"
//	@Success		200			{array}	model.Post
//	@Failure		400			{object}	map[string]string	"Missing category"
//	@Router			/api/post-category [get]
func (s *Server) handlePostsByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if strings.TrimSpace(category) == "" {
		writeError(w, http.StatusBadRequest, errors.New("category is required"))
		return
	}
	posts, err := s.store.ListPosts(r.Context(), store.PostListOpts{Category: category, Limit: store.DefaultPostLimit})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(posts))
}

// handleCreatePost godoc
//
//	@Summary		Create a post
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		CookieAuth
//	@Param			post	body		object{title=string,summary=string,content=string,category=string,coverUrl=string}	true	"Post data"
//	@Success		201		{object}	model.Post
//	@Failure		400		{object}	map[string]interface{}	"Validation error"
//	@Failure		401		{object}	map[string]string		"Not authenticated"
//	@Failure		429		{object}	map[string]string		"Rate limited"
//	@Router			/api/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "post", s.cfg.RateLimits.PostPerMinute) {
		return
	}
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Title    string `json:"title"`
		Summary  string `json:"summary"`
		Content  string `json:"content"`
		Category string `json:"category"`
		CoverURL string `json:"coverUrl"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	title := strings.TrimSpace(req.Title)
	summary := strings.TrimSpace(req.Summary)
	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if summary == "" {
		missing = append(missing, "summary")
	}
	if strings.TrimSpace(req.Content) == "" {
		missing = append(missing, "content")
	}
	if strings.TrimSpace(req.Category) == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "missing required fields",
			"required": requiredPostFields,
			"missing":  missing,
		})
		return
	}

	category, ok := model.NormalizeCategory(req.Category)
	if !ok {
		invalidCategory(w, req.Category)
		return
	}
	if err := validateLengths(title, summary); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cover := strings.TrimSpace(req.CoverURL)
	if cover != "" && !isAbsoluteURL(cover) {
		writeError(w, http.StatusBadRequest, errInvalidCover)
		return
	}

	now := s.now().UTC()
	post := model.Post{
		Title:     title,
		Summary:   summary,
		Content:   req.Content,
		Cover:     cover,
		Category:  category,
		Slug:      model.Slugify(title),
		Author:    model.Author{ID: identity.AccountID, Username: identity.Username},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePost(r.Context(), &post); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// handleUpdatePost godoc
//
//	@Summary		Update a post
//	@Description	Partial update. Only fields present in the body change. Only the author may update.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		CookieAuth
//	@Param			post	body		object{id=string,title=string,summary=string,content=string,category=string,coverUrl=string}	true	"Fields to change"
//	@Success		200		{object}	model.Post
//	@Failure		400		{object}	map[string]interface{}	"Validation error"
//	@Failure		401		{object}	map[string]string		"Not authenticated"
//	@Failure		403		{object}	map[string]string		"Not the author"
//	@Failure		404		{object}	map[string]string		"Post not found"
//	@Router			/api/post-update [put]
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	// Only the id is read before the ownership check, so a non-author gets
	// 403 whatever the other fields hold.
	var target struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &target); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	var id string
	if len(target.ID) > 0 && string(target.ID) != "null" {
		if err := json.Unmarshal(target.ID, &id); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
			return
		}
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("id"))
	}
	if !validatePostID(w, id) {
		return
	}

	existing, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.postLookupError(w, r, err)
		return
	}
	if existing.Author.ID != identity.AccountID {
		writeError(w, http.StatusForbidden, errors.New("you can only edit your own posts"))
		return
	}

	var req struct {
		ID       string  `json:"id"`
		Title    *string `json:"title"`
		Summary  *string `json:"summary"`
		Content  *string `json:"content"`
		Category *string `json:"category"`
		CoverURL *string `json:"coverUrl"`
	}
	if err := readJSON(io.NopCloser(bytes.NewReader(raw)), &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	patch := model.PostPatch{UpdatedAt: s.now().UTC()}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		patch.Title = &title
		if title != existing.Title {
			slug := model.Slugify(title)
			patch.Slug = &slug
		}
	}
	if req.Summary != nil {
		summary := strings.TrimSpace(*req.Summary)
		patch.Summary = &summary
	}
	if err := validateLengths(deref(patch.Title), deref(patch.Summary)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	patch.Content = req.Content
	if req.Category != nil {
		category, ok := model.NormalizeCategory(*req.Category)
		if !ok {
			invalidCategory(w, *req.Category)
			return
		}
		patch.Category = &category
	}
	if req.CoverURL != nil {
		cover := strings.TrimSpace(*req.CoverURL)
		if cover != "" && !isAbsoluteURL(cover) {
			writeError(w, http.StatusBadRequest, errInvalidCover)
			return
		}
		patch.Cover = &cover
	}

	if err := s.store.UpdatePost(r.Context(), id, patch); err != nil {
		s.postLookupError(w, r, err)
		return
	}
	updated, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.postLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Reports whether the server and its database are reachable.
//	@Tags			Meta
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Failure		503	{object}	map[string]string	"Database unreachable"
//	@Router			/api/test [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("store ping failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, errors.New("database unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "API is working",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// handleMediaConfig godoc
//
//	@Summary		Media upload settings
//	@Description	Cloud name and unsigned upload preset for direct uploads from the browser.
//	@Tags			Meta
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/api/media-config [get]
func (s *Server) handleMediaConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"cloudName":    s.cfg.Media.CloudName,
		"uploadPreset": s.cfg.Media.UploadPreset,
	})
}

var (
	requiredPostFields = []string{"title", "summary", "content", "category"}
	errInvalidCover    = errors.New("coverUrl must be an absolute URL")
)

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 {
		return true
	}
	key := rate.Key(action, s.clientIP(r))
	if ok, retry := s.limiter.Allow(r.Context(), key, limit, time.Minute); !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.auth.Authenticate(auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return auth.Identity{}, false
	}
	return identity, true
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// decode reads a JSON body and answers 400 itself when that fails.
// readBody reads the whole request body under the size limit.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return nil, false
	}
	return raw, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) postLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, errors.New("post not found"))
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
	default:
		s.serverError(w, r, err)
	}
}

// serverError logs err and answers 500. The cause is only echoed back in
// development.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		"request_id", requestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	body := map[string]any{"error": "internal server error"}
	if s.cfg.IsDevelopment() {
		body["details"] = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

func validatePostID(w http.ResponseWriter, id string) bool {
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("post id is required"))
		return false
	}
	if !store.ValidID(id) {
		writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
		return false
	}
	return true
}

func validateLengths(title, summary string) error {
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters", model.MaxTitleLength)
	}
	if utf8.RuneCountInString(summary) > model.MaxSummaryLength {
		return fmt.Errorf("summary must be at most %d characters", model.MaxSummaryLength)
	}
	return nil
}

func invalidCategory(w http.ResponseWriter, received string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":           "invalid category",
		"validCategories": model.Categories,
		"received":        received,
	})
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(posts []model.Post) []model.Post {
	if posts == nil {
		return []model.Post{}
	}
	return posts
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	seconds := int(retry.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": seconds,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}
