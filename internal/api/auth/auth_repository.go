package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/im-auth/app/observability/metrics"
	"github.com/FACorreiaa/im-auth/internal/types"
)

const pgUniqueViolation = "23505"

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo is the identity store contract.
type AuthRepo interface {
	// GetUserByUsername returns types.ErrNotFound when no user has that username.
	GetUserByUsername(ctx context.Context, username string) (*types.UserIdentity, error)
	// GetUserByID returns types.ErrNotFound when no user has that id.
	GetUserByID(ctx context.Context, id int64) (*types.UserIdentity, error)
	// CreateUser inserts a user and returns it with its assigned id.
	// Returns types.ErrConflict when username or email is already taken.
	CreateUser(ctx context.Context, user types.NewUser) (*types.UserIdentity, error)
}

// DBTX is the subset of *pgxpool.Pool the repository uses. Each call acquires a
// pooled connection and releases it when the row is scanned.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresAuthRepo struct {
	logger  *slog.Logger
	pgpool  DBTX
	metrics *metrics.AppMetrics
}

func NewPostgresAuthRepo(pgpool DBTX, logger *slog.Logger, m *metrics.AppMetrics) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger:  logger,
		pgpool:  pgpool,
		metrics: m,
	}
}

func (r *PostgresAuthRepo) GetUserByUsername(ctx context.Context, username string) (*types.UserIdentity, error) {
	return r.getUser(ctx, "GetUserByUsername", "username", username)
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, id int64) (*types.UserIdentity, error) {
	return r.getUser(ctx, "GetUserByID", "id", id)
}

// getUser selects a single user where column equals arg. column is never user input.
func (r *PostgresAuthRepo) getUser(ctx context.Context, method, column string, arg any) (*types.UserIdentity, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, method, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", method))

	query := `
		SELECT id, username, email, password_hash, is_active, created_at
		FROM users
		WHERE ` + column + ` = $1`

	var user types.UserIdentity
	start := time.Now()
	err := r.pgpool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	r.observe(ctx, "SELECT", start, err)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "User not found")
			return nil, fmt.Errorf("user not found: %w", types.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query user", slog.String("by", column), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	span.SetAttributes(attribute.Int64("db.user.id", user.ID))
	span.SetStatus(codes.Ok, "User found")
	return &user, nil
}

func (r *PostgresAuthRepo) CreateUser(ctx context.Context, newUser types.NewUser) (*types.UserIdentity, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "CreateUser"))

	if newUser.PasswordHash == "" {
		span.SetStatus(codes.Error, "Empty password hash")
		return nil, errors.New("refusing to store user without a password hash")
	}

	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email, password_hash, is_active, created_at`

	var user types.UserIdentity
	start := time.Now()
	err := r.pgpool.QueryRow(ctx, query, newUser.Username, newUser.Email, newUser.PasswordHash).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	r.observe(ctx, "INSERT", start, err)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			l.WarnContext(ctx, "Attempted to create user with taken username or email",
				slog.String("constraint", pgErr.ConstraintName))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Duplicate user")
			return nil, fmt.Errorf("user already exists (%s): %w", pgErr.ConstraintName, types.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to insert new user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return nil, fmt.Errorf("database error creating user: %w", err)
	}

	span.SetAttributes(attribute.Int64("db.user.id", user.ID))
	span.SetStatus(codes.Ok, "User created")
	l.InfoContext(ctx, "User created", slog.Int64("userID", user.ID))
	return &user, nil
}

func (r *PostgresAuthRepo) observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("db.operation", op), attribute.String("db.sql.table", "users"))
	r.metrics.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		r.metrics.DbQueryErrorsTotal.Add(ctx, 1, attrs)
	}
}
