package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/solatis/tradepromo/internal/core/db"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const testSecretID = "0190a1b2c3d4e5f60718293a4b5c6d7e"

var testSecret = bytes.Repeat([]byte{0x42}, 32)

type countingRecorder struct{ n int }

func (c *countingRecorder) IncAuthFailures() { c.n++ }

type fixture struct {
	auth     *Authenticator
	store    *db.Store
	failures *countingRecorder
	key      string
	keyID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open("sqlite://" + t.TempDir() + "/auth.db")
	if err != nil {
		t.Fatalf("db.Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := db.MigrateUp(context.Background(), conn); err != nil {
		t.Fatalf("db.MigrateUp() error = %v, want nil", err)
	}
	store, err := db.NewStore(conn)
	if err != nil {
		t.Fatalf("db.NewStore() error = %v, want nil", err)
	}

	key, hash, err := GenerateAPIKey(testSecretID, testSecret)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	id, err := store.CreateAPIKey(context.Background(), "test", testSecretID, hash)
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v, want nil", err)
	}

	failures := &countingRecorder{}
	secrets := map[string][]byte{testSecretID: testSecret}
	return &fixture{
		auth:     NewAuthenticator(secrets, store.Queries(), failures, nil),
		store:    store,
		failures: failures,
		key:      key,
		keyID:    id,
	}
}

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)
	valid := FormatAPIKey(testSecretID, random)

	secretID, data, err := ParseAPIKey(valid)
	if err != nil {
		t.Fatalf("ParseAPIKey() error = %v, want nil", err)
	}
	if secretID != testSecretID || data != random {
		t.Errorf("ParseAPIKey() = (%q, %q), want components back", secretID, data)
	}
	if len(valid) != 103 {
		t.Errorf("key length = %d, want 103", len(valid))
	}

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"old prefix", "tk-v1-" + testSecretID + "-" + random},
		{"wrong version", "tp-v2-" + testSecretID + "-" + random},
		{"short secret id", "tp-v1-abc-" + random},
		{"short random", "tp-v1-" + testSecretID + "-abc"},
		{"upper case hex", "tp-v1-" + strings.ToUpper(testSecretID) + "-" + random},
		{"extra segment", valid + "-00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseAPIKey(tt.key); !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("ParseAPIKey(%q) error = %v, want ErrInvalidKeyFormat", tt.key, err)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	k1, h1, err := GenerateAPIKey(testSecretID, testSecret)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	k2, _, err := GenerateAPIKey(testSecretID, testSecret)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	if k1 == k2 {
		t.Error("GenerateAPIKey() returned the same key twice")
	}
	if _, _, err := ParseAPIKey(k1); err != nil {
		t.Errorf("generated key does not parse: %v", err)
	}
	if h1 != HashAPIKey(testSecret, k1) || len(h1) != 64 {
		t.Errorf("hash = %q, want 64-char hex HMAC of key", h1)
	}
	if _, _, err := GenerateAPIKey("nothex", testSecret); err == nil {
		t.Error("GenerateAPIKey(bad secret id) error = nil, want error")
	}
}

func TestVerifyHMAC(t *testing.T) {
	a := ComputeHMAC(testSecret, "key")
	if !VerifyHMAC(a, ComputeHMAC(testSecret, "key")) {
		t.Error("VerifyHMAC() = false for identical input")
	}
	if VerifyHMAC(a, ComputeHMAC([]byte("other"), "key")) {
		t.Error("VerifyHMAC() = true for different secret")
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.auth.Authenticate(ctx, f.key)
	if err != nil {
		t.Fatalf("Authenticate() error = %v, want nil", err)
	}
	if id != f.keyID {
		t.Errorf("Authenticate() = %q, want %q", id, f.keyID)
	}

	keys, err := f.store.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys() error = %v, want nil", err)
	}
	if !keys[0].LastUsedAt.Valid {
		t.Error("last_used_at not recorded")
	}

	unknownSecret := FormatAPIKey(strings.Repeat("f", 32), strings.Repeat("0", 64))
	if _, err := f.auth.Authenticate(ctx, unknownSecret); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Authenticate(unknown secret) error = %v, want ErrUnknownKey", err)
	}

	notIssued := FormatAPIKey(testSecretID, strings.Repeat("0", 64))
	if _, err := f.auth.Authenticate(ctx, notIssued); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Authenticate(not issued) error = %v, want ErrInvalidKey", err)
	}

	if err := f.store.RevokeAPIKey(ctx, f.keyID); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v, want nil", err)
	}
	if _, err := f.auth.Authenticate(ctx, f.key); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("Authenticate(revoked) error = %v, want ErrKeyRevoked", err)
	}
}

func TestUnaryInterceptor(t *testing.T) {
	f := newFixture(t)
	interceptor := f.auth.UnaryInterceptor()

	var seen string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen = APIKeyIDFromContext(ctx)
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/tradepromo.v1.PromotionService/Evaluate"}

	withKey := func(key string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", key))
	}

	if _, err := interceptor(withKey(f.key), nil, info, handler); err != nil {
		t.Fatalf("interceptor(valid) error = %v, want nil", err)
	}
	if seen != f.keyID {
		t.Errorf("APIKeyIDFromContext() = %q, want %q", seen, f.keyID)
	}

	tests := []struct {
		name string
		ctx  context.Context
		want codes.Code
	}{
		{"no metadata", context.Background(), codes.Unauthenticated},
		{"malformed", withKey("garbage"), codes.Unauthenticated},
		{"not issued", withKey(FormatAPIKey(testSecretID, strings.Repeat("1", 64))), codes.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(tt.ctx, nil, info, handler)
			if got := status.Code(err); got != tt.want {
				t.Errorf("interceptor() code = %v, want %v", got, tt.want)
			}
		})
	}
	if f.failures.n != len(tests) {
		t.Errorf("auth failures = %d, want %d", f.failures.n, len(tests))
	}

	if err := f.store.RevokeAPIKey(context.Background(), f.keyID); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v, want nil", err)
	}
	if _, err := interceptor(withKey(f.key), nil, info, handler); status.Code(err) != codes.PermissionDenied {
		t.Errorf("interceptor(revoked) code = %v, want PermissionDenied", status.Code(err))
	}

	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := interceptor(context.Background(), nil, health, handler); err != nil {
		t.Errorf("interceptor(health) error = %v, want nil", err)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{ErrKeyRevoked, codes.PermissionDenied},
		{ErrUnavailable, codes.Unavailable},
		{ErrInvalidKey, codes.Unauthenticated},
		{ErrInvalidKeyFormat, codes.Unauthenticated},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
