package db

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/tank-queue/crypto"
)

func resetSealer(t *testing.T, key string) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", key)
	sealerOnce = sync.Once{}
	sealer = nil
	sealerErr = nil
	t.Cleanup(func() {
		sealerOnce = sync.Once{}
		sealer = nil
		sealerErr = nil
	})
}

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
}

func TestOAuthTokenRoundTripEncrypted(t *testing.T) {
	resetSealer(t, testKey())
	ctx := context.Background()
	d := openTestDB(t)
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := OAuthToken{Provider: "test.twitch", AccessToken: "acc", RefreshToken: "ref", Expiry: exp, Scope: "chat:read"}
	if err := d.UpsertOAuthToken(ctx, in); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var rawAccess string
	var version int
	if err := d.QueryRow(d.Rebind(`SELECT access_token, encryption_version FROM oauth_tokens WHERE provider=$1`), in.Provider).Scan(&rawAccess, &version); err != nil {
		t.Fatalf("raw select: %v", err)
	}
	if rawAccess == "acc" || version != 1 {
		t.Errorf("token stored unsealed: %q version %d", rawAccess, version)
	}

	got, err := d.GetOAuthToken(ctx, in.Provider)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "acc" || got.RefreshToken != "ref" || got.Scope != "chat:read" {
		t.Errorf("got %+v", got)
	}
	if !got.Expiry.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got.Expiry, exp)
	}
}

func TestOAuthTokenPlaintextAndMissing(t *testing.T) {
	resetSealer(t, "")
	ctx := context.Background()
	d := openTestDB(t)

	got, err := d.GetOAuthToken(ctx, "test.none")
	if err != nil || got.AccessToken != "" {
		t.Fatalf("missing = %+v, %v", got, err)
	}
	if err := d.UpsertOAuthToken(ctx, OAuthToken{Provider: "test.plain", AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}
	got, err = d.GetOAuthToken(ctx, "test.plain")
	if err != nil || got.AccessToken != "a" {
		t.Errorf("plaintext = %+v, %v", got, err)
	}
}

func TestOAuthTokenEncryptedWithoutKeyFails(t *testing.T) {
	resetSealer(t, testKey())
	ctx := context.Background()
	d := openTestDB(t)
	if err := d.UpsertOAuthToken(ctx, OAuthToken{Provider: "test.sealed", AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}
	resetSealer(t, "")
	if _, err := d.GetOAuthToken(ctx, "test.sealed"); err == nil {
		t.Error("expected error reading sealed token without key")
	}
}

func TestSealPlaintextTokens(t *testing.T) {
	resetSealer(t, "")
	ctx := context.Background()
	d := openTestDB(t)
	for _, p := range []string{"test.a", "test.b"} {
		if err := d.UpsertOAuthToken(ctx, OAuthToken{Provider: p, AccessToken: "acc-" + p, RefreshToken: "ref-" + p}); err != nil {
			t.Fatalf("upsert %s: %v", p, err)
		}
	}
	plain, err := d.PlaintextProviders(ctx)
	if err != nil {
		t.Fatalf("plaintext providers: %v", err)
	}
	if strings.Join(plain, ",") != "test.a,test.b" {
		t.Fatalf("plaintext = %v", plain)
	}

	s, err := crypto.NewAESSealer(testKey())
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := d.SealPlaintextTokens(ctx, s)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(sealed) != 2 {
		t.Errorf("sealed = %v, want both providers", sealed)
	}

	var rawAccess, keyID string
	var version int
	if err := d.QueryRow(d.Rebind(`SELECT access_token, encryption_version, encryption_key_id FROM oauth_tokens WHERE provider=$1`), "test.a").Scan(&rawAccess, &version, &keyID); err != nil {
		t.Fatalf("raw select: %v", err)
	}
	if version != 1 || keyID != s.KeyID() {
		t.Errorf("version %d key %q", version, keyID)
	}
	if got, err := s.Open(rawAccess, "test.a"); err != nil || got != "acc-test.a" {
		t.Errorf("open = %q, %v", got, err)
	}

	again, err := d.SealPlaintextTokens(ctx, s)
	if err != nil || len(again) != 0 {
		t.Errorf("second pass = %v, %v; want nothing to seal", again, err)
	}
}
