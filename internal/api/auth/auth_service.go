package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/im-auth/app/observability/metrics"
	"github.com/FACorreiaa/im-auth/internal/types"
)

const tokenTypeBearer = "bearer"

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService orchestrates registration, login and bearer-token identification.
type AuthService interface {
	// Register creates a user. Returns types.ErrDuplicateUser if the username
	// (or email) is taken.
	Register(ctx context.Context, username, email, password string) (*types.UserIdentity, error)
	// Login returns an access token for valid credentials, types.ErrInvalidCredentials otherwise.
	Login(ctx context.Context, username, password string) (*types.AccessToken, error)
	// Identify resolves a bearer token to its user, types.ErrUnauthorized otherwise.
	Identify(ctx context.Context, token string) (*types.UserIdentity, error)
}

// TokenIssuer is implemented by *TokenService.
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (string, error)
}

type ServiceConfig struct {
	AccessTokenTTL time.Duration
	// EnforceActive rejects identities with IsActive=false in Identify.
	EnforceActive bool
}

type AuthServiceImpl struct {
	logger  *slog.Logger
	repo    AuthRepo
	hasher  PasswordHasher
	tokens  TokenIssuer
	cfg     ServiceConfig
	metrics *metrics.AppMetrics

	// dummyHash is verified when the username is unknown so that path costs
	// the same as a wrong password.
	dummyHash string
}

func NewAuthService(repo AuthRepo, hasher PasswordHasher, tokens TokenIssuer, cfg ServiceConfig,
	logger *slog.Logger, m *metrics.AppMetrics) (*AuthServiceImpl, error) {
	if cfg.AccessTokenTTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	dummy, err := hasher.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &AuthServiceImpl{
		logger:    logger,
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		cfg:       cfg,
		metrics:   m,
		dummyHash: dummy,
	}, nil
}

func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (*types.UserIdentity, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register", trace.WithAttributes(
		attribute.String("user.username", username),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Register"), slog.String("username", username))
	l.DebugContext(ctx, "Registering user")

	start := time.Now()
	outcome := "error"
	defer func() {
		s.metrics.RegisterRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		s.metrics.RegisterDurationSeconds.Record(ctx, time.Since(start).Seconds())
	}()

	if err := validateRegistration(username, email, password); err != nil {
		outcome = "invalid"
		span.SetStatus(codes.Error, "Invalid registration input")
		return nil, err
	}

	_, err := s.repo.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		outcome = "duplicate"
		l.InfoContext(ctx, "Username already registered")
		span.SetStatus(codes.Error, "Duplicate user")
		return nil, types.ErrDuplicateUser
	case !errors.Is(err, types.ErrNotFound):
		l.ErrorContext(ctx, "Failed to check existing user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, fmt.Errorf("error checking existing user: %w", err)
	}

	hashStart := time.Now()
	hash, err := s.hasher.Hash(password)
	s.metrics.PasswordHashSeconds.Record(ctx, time.Since(hashStart).Seconds(),
		metric.WithAttributes(attribute.String("op", "hash")))
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			outcome = "invalid"
			span.SetStatus(codes.Error, "Password too long")
			return nil, fmt.Errorf("%w: %w", types.ErrBadRequest, err)
		}
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Hash failed")
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, types.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			// Lost a race with a concurrent registration, or the email is taken.
			outcome = "duplicate"
			l.InfoContext(ctx, "Store rejected duplicate user", slog.Any("error", err))
			span.SetStatus(codes.Error, "Duplicate user")
			return nil, types.ErrDuplicateUser
		}
		l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	outcome = "success"
	span.SetAttributes(attribute.Int64("user.id", user.ID))
	span.SetStatus(codes.Ok, "User registered")
	l.InfoContext(ctx, "User registered", slog.Int64("userID", user.ID))
	return user, nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (*types.AccessToken, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login", trace.WithAttributes(
		attribute.String("user.username", username),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Login"), slog.String("username", username))

	start := time.Now()
	outcome := "error"
	defer func() {
		s.metrics.LoginRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		s.metrics.LoginDurationSeconds.Record(ctx, time.Since(start).Seconds())
	}()

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		l.ErrorContext(ctx, "Failed to fetch user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	verifyStart := time.Now()
	ok := s.hasher.Verify(password, hash)
	s.metrics.PasswordHashSeconds.Record(ctx, time.Since(verifyStart).Seconds(),
		metric.WithAttributes(attribute.String("op", "verify")))

	if user == nil || !ok {
		outcome = "invalid_credentials"
		l.InfoContext(ctx, "Login rejected")
		span.SetStatus(codes.Error, "Invalid credentials")
		return nil, types.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.Username, s.cfg.AccessTokenTTL)
	if err != nil {
		l.ErrorContext(ctx, "Failed to issue token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Token issue failed")
		return nil, fmt.Errorf("error issuing token: %w", err)
	}

	outcome = "success"
	span.SetStatus(codes.Ok, "Login succeeded")
	l.InfoContext(ctx, "Login succeeded", slog.Int64("userID", user.ID))
	return &types.AccessToken{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *AuthServiceImpl) Identify(ctx context.Context, token string) (*types.UserIdentity, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Identify")
	defer span.End()

	l := s.logger.With(slog.String("method", "Identify"))

	outcome := "error"
	defer func() {
		s.metrics.IdentifyRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	subject, err := s.tokens.Verify(token)
	if err != nil {
		outcome = "invalid_token"
		l.DebugContext(ctx, "Token rejected", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid token")
		return nil, fmt.Errorf("%w: %w", types.ErrUnauthorized, err)
	}

	user, err := s.repo.GetUserByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			outcome = "unknown_subject"
			l.InfoContext(ctx, "Token subject no longer exists", slog.String("subject", subject))
			span.SetStatus(codes.Error, "Unknown subject")
			return nil, types.ErrUnauthorized
		}
		l.ErrorContext(ctx, "Failed to fetch user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	if s.cfg.EnforceActive && !user.IsActive {
		outcome = "inactive"
		l.InfoContext(ctx, "Inactive user rejected", slog.Int64("userID", user.ID))
		span.SetStatus(codes.Error, "Inactive user")
		return nil, types.ErrUnauthorized
	}

	outcome = "success"
	span.SetAttributes(attribute.Int64("user.id", user.ID))
	span.SetStatus(codes.Ok, "Identified")
	return user, nil
}

func validateRegistration(username, email, password string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", types.ErrBadRequest)
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email is required", types.ErrBadRequest)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is not a valid address", types.ErrBadRequest)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", types.ErrBadRequest)
	}
	return nil
}
