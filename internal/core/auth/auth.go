// Package auth provides HMAC-based API key authentication for gRPC services.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// apiKeyIDKey is the context key for the authenticated API key ID.
const apiKeyIDKey = contextKey("api_key_id")

// healthService is reachable without a key so probes need no credentials.
const healthService = "/grpc.health.v1.Health/"

// Queries defines the database operations authentication needs.
// Implemented by *db.Queries.
type Queries interface {
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// FailureRecorder counts rejected requests. Implemented by *metrics.Metrics.
type FailureRecorder interface {
	IncAuthFailures()
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Secrets are held in memory keyed by secret_id.
type Authenticator struct {
	secrets  map[string][]byte
	queries  Queries
	failures FailureRecorder
	logger   *slog.Logger
}

// NewAuthenticator creates an authenticator. failures and logger may be nil.
func NewAuthenticator(secrets map[string][]byte, queries Queries, failures FailureRecorder, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secrets:  secrets,
		queries:  queries,
		failures: failures,
		logger:   logger,
	}
}

// Authenticate validates apiKey and returns its api_key_id.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var row struct {
		APIKeyID   string       `db:"api_key_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.GetContext(ctx, "get-api-key-by-hash", &row, HashAPIKey(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if row.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// Throttled to one write per minute per key
	if shouldUpdateLastUsed(row.LastUsedAt) {
		if _, err := a.queries.ExecContext(ctx, "update-last-used", time.Now().UTC(), row.APIKeyID); err != nil {
			a.logger.Warn("failed to update last_used_at", "api_key_id", row.APIKeyID, "error", err)
		}
	}

	return row.APIKeyID, nil
}

func shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return time.Since(lastUsed.Time) > time.Minute
}

// UnaryInterceptor returns a gRPC interceptor that authenticates requests
// from the x-api-key metadata header.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthService) {
			return handler(ctx, req)
		}

		var apiKey string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if keys := md.Get("x-api-key"); len(keys) > 0 {
				apiKey = keys[0]
			}
		}
		if apiKey == "" {
			a.recordFailure(info.FullMethod, ErrMissingKey)
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		apiKeyID, err := a.Authenticate(ctx, apiKey)
		if err != nil {
			a.recordFailure(info.FullMethod, err)
			return nil, status.Error(StatusCode(err), err.Error())
		}

		return handler(context.WithValue(ctx, apiKeyIDKey, apiKeyID), req)
	}
}

func (a *Authenticator) recordFailure(method string, err error) {
	if a.failures != nil {
		a.failures.IncAuthFailures()
	}
	a.logger.Info("authentication failed", "method", method, "error", err)
}

// StatusCode maps an authentication error to its gRPC code.
func StatusCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return codes.PermissionDenied
	case errors.Is(err, ErrUnavailable):
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}

// APIKeyIDFromContext returns the authenticated API key ID, or "" when the
// request was not authenticated.
func APIKeyIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return id
	}
	return ""
}

// WithAPIKeyID returns ctx carrying apiKeyID. Used by tests and in-process
// callers that bypass the interceptor.
func WithAPIKeyID(ctx context.Context, apiKeyID string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, apiKeyID)
}
