// Package license verifies run authorization. A license is a signed
// JSON payload stored in an encrypted file: the payload is signed with
// RSA PKCS#1 v1.5 over its SHA-256 digest, and the file is sealed with
// AES-256-GCM under a scrypt-derived key.
package license

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/scrypt"

	"github.com/corpusforge/forge/pkg/forge/internalerr"
)

// scrypt parameters, fixed so existing license files keep decrypting.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	keyLen       = 32
	saltLen      = 16
	fileMagic    = "FORGELIC"
	fileVersion  = byte(1)
	headerLength = len(fileMagic) + 1 + saltLen
)

// Payload is the signed license content.
type Payload struct {
	Licensee  string    `json:"licensee"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Features  []string  `json:"features,omitempty"`
}

// envelope pairs the payload bytes with their signature inside the
// encrypted file.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature"`
}

// Sign serializes and signs a payload with the issuer's private key.
func Sign(payload Payload, key *rsa.PrivateKey) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(raw)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign license: %w", err)
	}
	return json.Marshal(envelope{Payload: raw, Signature: sig})
}

// Seal encrypts a signed envelope into the license file format.
func Seal(signed []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	gcm, err := aead(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, headerLength+len(nonce)+len(signed)+gcm.Overhead())
	out = append(out, fileMagic...)
	out = append(out, fileVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, signed, nil), nil
}

// Unseal decrypts a license file back into the signed envelope.
func Unseal(data []byte, passphrase string) ([]byte, error) {
	if len(data) < headerLength || string(data[:len(fileMagic)]) != fileMagic {
		return nil, fmt.Errorf("%w: not a license file", internalerr.ErrLicenseDenied)
	}
	if data[len(fileMagic)] != fileVersion {
		return nil, fmt.Errorf("%w: unsupported license version %d", internalerr.ErrLicenseDenied, data[len(fileMagic)])
	}
	salt := data[len(fileMagic)+1 : headerLength]
	gcm, err := aead(passphrase, salt)
	if err != nil {
		return nil, err
	}
	rest := data[headerLength:]
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: truncated license file", internalerr.ErrLicenseDenied)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", internalerr.ErrLicenseDenied)
	}
	return plain, nil
}

func aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Verify checks the envelope signature and expiry, returning the
// payload on success.
func Verify(signed []byte, pub *rsa.PublicKey, now time.Time) (*Payload, error) {
	var env envelope
	if err := json.Unmarshal(signed, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed license envelope", internalerr.ErrLicenseDenied)
	}
	digest := sha256.Sum256(env.Payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], env.Signature); err != nil {
		return nil, fmt.Errorf("%w: signature invalid", internalerr.ErrLicenseDenied)
	}
	var payload Payload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed license payload", internalerr.ErrLicenseDenied)
	}
	if !payload.ExpiresAt.IsZero() && now.After(payload.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired %s", internalerr.ErrLicenseDenied, payload.ExpiresAt.Format(time.RFC3339))
	}
	return &payload, nil
}

// ParsePublicKey reads a PEM-encoded RSA public key.
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", internalerr.ErrInvalidInput)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", internalerr.ErrInvalidInput)
	}
	return rsaPub, nil
}

// Gate authorizes pipeline runs against a license file. A zero Gate
// (no file configured) permits everything, for library embedding.
type Gate struct {
	Path       string
	Passphrase string
	PublicKey  *rsa.PublicKey

	// Now overrides the clock for expiry checks. Nil uses time.Now.
	Now func() time.Time
}

// Authorize implements the pipeline gate contract.
func (g *Gate) Authorize(ctx context.Context) error {
	if g == nil || g.Path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.PublicKey == nil {
		return fmt.Errorf("%w: no public key configured", internalerr.ErrLicenseDenied)
	}
	data, err := os.ReadFile(g.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrLicenseDenied, err)
	}
	signed, err := Unseal(data, g.Passphrase)
	if err != nil {
		return err
	}
	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	_, err = Verify(signed, g.PublicKey, now)
	return err
}
