package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations follows the common floor for PBKDF2-HMAC-SHA256 key
// derivation from an operator-supplied passphrase rather than a
// pre-generated key.
const pbkdf2Iterations = 100_000

const aesKeySize = 32 // AES-256

// AESEncryptor encrypts mirror Basic-auth passwords at rest using
// AES-256-GCM. The encryption key is derived from an
// operator secret via PBKDF2-HMAC-SHA256 rather than used directly, so a
// short or low-entropy operator secret still yields a full-width key.
//
// Ciphertext layout: salt (16 bytes) || nonce (12 bytes) || sealed data.
// The salt is stored alongside the ciphertext so Decrypt can re-derive
// the same key without the caller tracking it separately.
type AESEncryptor struct {
	secret string
}

// NewAESEncryptor derives its key from secret on every Encrypt/Decrypt
// call, so a rotated secret only invalidates ciphertext encrypted under
// the old one — it is never cached in memory longer than one call needs.
func NewAESEncryptor(secret string) (*AESEncryptor, error) {
	if secret == "" {
		return nil, fmt.Errorf("secrets: encryption secret must not be empty")
	}
	return &AESEncryptor{secret: secret}, nil
}

func (e *AESEncryptor) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.secret), salt, pbkdf2Iterations, aesKeySize, sha256.New)
}

func (e *AESEncryptor) Encrypt(plaintext string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("secrets: generate salt: %w", err)
	}

	block, err := aes.NewCipher(e.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("secrets: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (e *AESEncryptor) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", nil
	}
	if len(ciphertext) < 16+12 {
		return "", fmt.Errorf("secrets: ciphertext too short")
	}
	salt, nonce, sealed := ciphertext[:16], ciphertext[16:28], ciphertext[28:]

	block, err := aes.NewCipher(e.deriveKey(salt))
	if err != nil {
		return "", fmt.Errorf("secrets: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secrets: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plaintext), nil
}
