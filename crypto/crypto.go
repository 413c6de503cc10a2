// Package crypto is the credential service: it mints single-use voting
// tokens, derives the one-way hashes stored in their place, and encrypts
// voter names at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const keySize = 32

var (
	keyMtx sync.Mutex
	key    []byte
)

var (
	ErrBadKey        = fmt.Errorf("encryption key must be %d bytes", keySize)
	ErrBadCiphertext = fmt.Errorf("malformed or corrupted ciphertext")
)

// SetKey installs the process-wide PII encryption key. Call once at startup;
// when never called an ephemeral key is generated on first use, which keeps
// the process working but makes stored names unreadable after a restart.
func SetKey(k []byte) error {
	if len(k) != keySize {
		return ErrBadKey
	}
	keyMtx.Lock()
	defer keyMtx.Unlock()
	key = append([]byte(nil), k...)
	return nil
}

func currentKey() []byte {
	keyMtx.Lock()
	defer keyMtx.Unlock()
	if key == nil {
		key = make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			panic(err)
		}
		log.Warning("no encryption_key configured, generated an ephemeral key; encrypted voter names will not survive a restart")
	}
	return key
}

// MintToken generates a 256 bit bearer token. The raw value goes to the
// voter and is never persisted; the sha256 hash is what gets stored and
// looked up. The hash is deliberately unsalted so lookups are a direct
// equality match on a unique index; token entropy alone carries the
// unlinkability.
func MintToken() (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, HashToken(raw), nil
}

// HashToken derives the stored lookup hash for a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashEmail normalizes then hashes an email so duplicate invitations can be
// detected without ever storing the address.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Encrypt seals plaintext with AES-256-GCM under a fresh nonce and returns
// it as "hex(nonce):hex(ciphertext)".
func Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(currentKey())
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A wrong key, truncated payload or any tampering
// is returned as ErrBadCiphertext, never as garbage plaintext.
func Decrypt(payload string) (string, error) {
	parts := strings.SplitN(payload, ":", 2)
	if len(parts) != 2 {
		return "", ErrBadCiphertext
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrBadCiphertext
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrBadCiphertext
	}
	block, err := aes.NewCipher(currentKey())
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", ErrBadCiphertext
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrBadCiphertext
	}
	return string(plaintext), nil
}
