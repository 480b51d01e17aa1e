package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/ripple-relay/crypto"
	"github.com/onnwee/ripple-relay/testutil"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func testEncryptor(t *testing.T) crypto.Encryptor {
	t.Helper()
	enc, err := crypto.NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	return enc
}

func clearTokens(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), `DELETE FROM oauth_tokens`); err != nil {
		t.Fatalf("failed to clear oauth_tokens: %v", err)
	}
}

func insertPlaintextToken(t *testing.T, db *sql.DB, provider, access, refresh string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, encryption_version)
		 VALUES ($1, $2, $3, NOW() + INTERVAL '1 hour', 'chat:read chat:edit', 0)
		 ON CONFLICT (provider) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   encryption_version = 0`,
		provider, access, refresh)
	if err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}
}

// TestMigrateTokensDryRun verifies dry-run mode reports work without touching rows.
func TestMigrateTokensDryRun(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clearTokens(t, db)
	ctx := context.Background()

	accessToken := "test-access-token"
	insertPlaintextToken(t, db, "twitch", accessToken, "test-refresh-token")

	if err := migrateTokens(ctx, db, testEncryptor(t), true, ""); err != nil {
		t.Fatalf("migrateTokens(dry-run) failed: %v", err)
	}

	var storedAccess string
	var encVersion int
	err := db.QueryRowContext(ctx,
		`SELECT access_token, encryption_version FROM oauth_tokens WHERE provider = 'twitch'`).
		Scan(&storedAccess, &encVersion)
	if err != nil {
		t.Fatalf("failed to query token: %v", err)
	}

	if encVersion != 0 {
		t.Errorf("dry-run should not change encryption_version, got %d", encVersion)
	}
	if storedAccess != accessToken {
		t.Errorf("dry-run should not change access_token, got %q, want %q", storedAccess, accessToken)
	}
}

// TestMigrateTokensEncryptsRows runs a real migration and verifies the stored
// ciphertext round-trips back to the original credentials.
func TestMigrateTokensEncryptsRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clearTokens(t, db)
	ctx := context.Background()
	encryptor := testEncryptor(t)

	tokens := []struct {
		provider     string
		accessToken  string
		refreshToken string
	}{
		{"twitch", "access-token-1", "refresh-token-1"},
		{"twitch-backup", "access-token-2", "refresh-token-2"},
	}
	for _, token := range tokens {
		insertPlaintextToken(t, db, token.provider, token.accessToken, token.refreshToken)
	}

	if err := migrateTokens(ctx, db, encryptor, false, ""); err != nil {
		t.Fatalf("migrateTokens() failed: %v", err)
	}

	for _, token := range tokens {
		var storedAccess, storedRefresh string
		var encVersion int
		var encKeyID sql.NullString

		err := db.QueryRowContext(ctx,
			`SELECT access_token, refresh_token, encryption_version, encryption_key_id
			 FROM oauth_tokens WHERE provider = $1`,
			token.provider).Scan(&storedAccess, &storedRefresh, &encVersion, &encKeyID)
		if err != nil {
			t.Fatalf("failed to query migrated token: %v", err)
		}

		if encVersion != 1 {
			t.Errorf("expected encryption_version=1, got %d", encVersion)
		}
		if !encKeyID.Valid || encKeyID.String != "default" {
			t.Errorf("expected encryption_key_id='default', got %v", encKeyID)
		}
		if storedAccess == token.accessToken {
			t.Errorf("access_token should be encrypted, still plaintext")
		}
		if storedRefresh == token.refreshToken {
			t.Errorf("refresh_token should be encrypted, still plaintext")
		}

		decryptedAccess, err := crypto.DecryptString(encryptor, storedAccess)
		if err != nil {
			t.Fatalf("failed to decrypt access_token: %v", err)
		}
		if decryptedAccess != token.accessToken {
			t.Errorf("decrypted access_token = %q, want %q", decryptedAccess, token.accessToken)
		}

		decryptedRefresh, err := crypto.DecryptString(encryptor, storedRefresh)
		if err != nil {
			t.Fatalf("failed to decrypt refresh_token: %v", err)
		}
		if decryptedRefresh != token.refreshToken {
			t.Errorf("decrypted refresh_token = %q, want %q", decryptedRefresh, token.refreshToken)
		}
	}
}

// TestMigrateTokensProviderFilter verifies the filter leaves other providers untouched.
func TestMigrateTokensProviderFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clearTokens(t, db)
	ctx := context.Background()

	insertPlaintextToken(t, db, "twitch", "access-x", "refresh-x")
	insertPlaintextToken(t, db, "twitch-backup", "access-y", "refresh-y")

	if err := migrateTokens(ctx, db, testEncryptor(t), false, "twitch"); err != nil {
		t.Fatalf("migrateTokens() with provider filter failed: %v", err)
	}

	var encVersionX int
	err := db.QueryRowContext(ctx,
		`SELECT encryption_version FROM oauth_tokens WHERE provider = 'twitch'`).Scan(&encVersionX)
	if err != nil {
		t.Fatalf("failed to query twitch row: %v", err)
	}
	if encVersionX != 1 {
		t.Errorf("filtered provider should be encrypted (version=1), got version=%d", encVersionX)
	}

	var encVersionY int
	err = db.QueryRowContext(ctx,
		`SELECT encryption_version FROM oauth_tokens WHERE provider = 'twitch-backup'`).Scan(&encVersionY)
	if err != nil {
		t.Fatalf("failed to query twitch-backup row: %v", err)
	}
	if encVersionY != 0 {
		t.Errorf("other provider should still be plaintext (version=0), got version=%d", encVersionY)
	}
}

// TestMigrateTokensNoRows verifies migration succeeds on an empty table.
func TestMigrateTokensNoRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clearTokens(t, db)

	if err := migrateTokens(context.Background(), db, testEncryptor(t), false, ""); err != nil {
		t.Fatalf("migrateTokens() on empty table should succeed, got error: %v", err)
	}
}

// TestMigrateTokensIdempotent verifies a second run is a no-op and does not
// double-encrypt already-migrated rows.
func TestMigrateTokensIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clearTokens(t, db)
	ctx := context.Background()
	encryptor := testEncryptor(t)

	insertPlaintextToken(t, db, "twitch", "access-token", "refresh-token")

	if err := migrateTokens(ctx, db, encryptor, false, ""); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}
	if err := migrateTokens(ctx, db, encryptor, false, ""); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}

	var storedAccess string
	var encVersion int
	err := db.QueryRowContext(ctx,
		`SELECT access_token, encryption_version FROM oauth_tokens WHERE provider = 'twitch'`).
		Scan(&storedAccess, &encVersion)
	if err != nil {
		t.Fatalf("failed to query token: %v", err)
	}

	if encVersion != 1 {
		t.Errorf("expected encryption_version=1, got %d", encVersion)
	}
	decrypted, err := crypto.DecryptString(encryptor, storedAccess)
	if err != nil {
		t.Fatalf("failed to decrypt after second run: %v", err)
	}
	if decrypted != "access-token" {
		t.Errorf("decrypted access_token = %q, want %q", decrypted, "access-token")
	}
}

// TestMigrateTokenEmptyValues verifies rows with empty credentials still get
// their version bumped while the empty strings pass through.
func TestMigrateTokenEmptyValues(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clearTokens(t, db)
	ctx := context.Background()

	insertPlaintextToken(t, db, "twitch", "", "")

	if err := migrateTokens(ctx, db, testEncryptor(t), false, ""); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	var encVersion int
	var storedAccess, storedRefresh string
	err := db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, encryption_version FROM oauth_tokens WHERE provider = 'twitch'`).
		Scan(&storedAccess, &storedRefresh, &encVersion)
	if err != nil {
		t.Fatalf("failed to query token: %v", err)
	}

	if encVersion != 1 {
		t.Errorf("expected encryption_version=1, got %d", encVersion)
	}
	if storedAccess != "" {
		t.Errorf("expected empty access_token, got %q", storedAccess)
	}
	if storedRefresh != "" {
		t.Errorf("expected empty refresh_token, got %q", storedRefresh)
	}
}

// TestValidateMigration verifies the status report runs against mixed rows.
func TestValidateMigration(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clearTokens(t, db)
	ctx := context.Background()

	insertPlaintextToken(t, db, "twitch", "plain-access", "plain-refresh")
	_, err := db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id)
		 VALUES ('twitch-backup', 'ciphertext', 'ciphertext', NOW() + INTERVAL '1 hour', 'chat:read', 1, 'default')`)
	if err != nil {
		t.Fatalf("failed to insert encrypted row: %v", err)
	}

	if err := validateMigration(ctx, db); err != nil {
		t.Fatalf("validateMigration() failed: %v", err)
	}
}
