package license

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func validPayload() Payload {
	return Payload{
		Licensee:  "acme",
		IssuedAt:  time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestSignAndVerify(t *testing.T) {
	key := testKey(t)
	signed, err := Sign(validPayload(), key)
	if err != nil {
		t.Fatal(err)
	}

	payload, err := Verify(signed, &key.PublicKey, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if payload.Licensee != "acme" {
		t.Fatalf("licensee: got %q", payload.Licensee)
	}

	// A different key must not verify.
	other := testKey(t)
	if _, err := Verify(signed, &other.PublicKey, time.Now()); !errors.Is(err, internalerr.ErrLicenseDenied) {
		t.Fatalf("wrong key: got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	key := testKey(t)
	payload := validPayload()
	payload.ExpiresAt = time.Now().Add(-time.Minute)
	signed, err := Sign(payload, key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(signed, &key.PublicKey, time.Now()); !errors.Is(err, internalerr.ErrLicenseDenied) {
		t.Fatalf("expired license: got %v", err)
	}
}

func TestSealUnsealRoundTrip(t *testing.T) {
	key := testKey(t)
	signed, err := Sign(validPayload(), key)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := Seal(signed, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := Unseal(sealed, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != string(signed) {
		t.Fatal("round trip changed content")
	}

	if _, err := Unseal(sealed, "wrong passphrase"); !errors.Is(err, internalerr.ErrLicenseDenied) {
		t.Fatalf("wrong passphrase: got %v", err)
	}
	if _, err := Unseal([]byte("not a license"), "x"); !errors.Is(err, internalerr.ErrLicenseDenied) {
		t.Fatalf("garbage input: got %v", err)
	}
}

func TestGateAuthorize(t *testing.T) {
	key := testKey(t)
	signed, err := Sign(validPayload(), key)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Seal(signed, "pass")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "forge.lic")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		t.Fatal(err)
	}

	gate := &Gate{Path: path, Passphrase: "pass", PublicKey: &key.PublicKey}
	if err := gate.Authorize(context.Background()); err != nil {
		t.Fatalf("valid license denied: %v", err)
	}

	gate.Passphrase = "wrong"
	if err := gate.Authorize(context.Background()); !errors.Is(err, internalerr.ErrLicenseDenied) {
		t.Fatalf("wrong passphrase: got %v", err)
	}

	missing := &Gate{Path: filepath.Join(t.TempDir(), "nope.lic"), PublicKey: &key.PublicKey}
	if err := missing.Authorize(context.Background()); !errors.Is(err, internalerr.ErrLicenseDenied) {
		t.Fatalf("missing file: got %v", err)
	}
}

func TestGateUnconfiguredPermits(t *testing.T) {
	var gate *Gate
	if err := gate.Authorize(context.Background()); err != nil {
		t.Fatalf("nil gate: %v", err)
	}
	if err := (&Gate{}).Authorize(context.Background()); err != nil {
		t.Fatalf("empty gate: %v", err)
	}
}
