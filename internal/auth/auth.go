package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoToken            = errors.New("not authenticated")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const DefaultTokenTTL = 7 * 24 * time.Hour

type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	HashCost int
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	accounts  store.AccountStore
	secret    []byte
	tokenTTL  time.Duration
	hashCost  int
	now       func() time.Time
	dummyHash []byte
}

// Identity is what a verified session token proves.
type Identity struct {
	AccountID string
	Username  string
	ExpiresAt time.Time
}

type Claims struct {
	AccountID string `json:"id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(accounts store.AccountStore, opts Options) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("auth: signing secret required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	// Compared against when the username is unknown, so both failure paths pay
	// for one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("inkpost-unknown-account"), opts.HashCost)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return &Service{
		accounts:  accounts,
		secret:    opts.Secret,
		tokenTTL:  opts.TokenTTL,
		hashCost:  opts.HashCost,
		now:       opts.Now,
		dummyHash: dummy,
	}, nil
}

func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

// Register hashes password and stores a new account. A taken username comes
// back as store.ErrDuplicateUsername.
func (s *Service) Register(ctx context.Context, username, email, password string) (model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	account := model.Account{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateAccount(ctx, &account); err != nil {
		return model.Account{}, err
	}
	return account, nil
}

// Login checks the credentials. Unknown usernames and wrong passwords both
// yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (model.Account, error) {
	account, err := s.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return model.Account{}, ErrInvalidCredentials
		}
		return model.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return model.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// IssueToken signs a session token for account valid for the configured TTL.
func (s *Service) IssueToken(account model.Account) (string, time.Time, error) {
	// exp is carried in whole seconds.
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		AccountID: account.ID,
		Username:  account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Authenticate verifies signature and expiry. No store lookup is made.
func (s *Service) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Expiry is checked below: the exp instant itself is still valid.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || s.now().After(claims.ExpiresAt.Time) {
		return Identity{}, ErrInvalidToken
	}
	if claims.AccountID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		AccountID: claims.AccountID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
