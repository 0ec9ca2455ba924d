package token

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretLength is the minimal length of the configured signing secret.
	MinSecretLength = 16
	// SignatureSize is the size of a HMAC-SHA256 tag.
	SignatureSize = sha256.Size

	signingContext = "passphrase-pdp session token v1"
)

/**
* Signer computes and checks the tag of a token payload. The key is derived from the configured
* secret once and never leaves the signer.
 */
type Signer struct {
	key []byte
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret needs at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	key := make([]byte, SignatureSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(signingContext)), key); err != nil {
		return nil, fmt.Errorf("was not able to derive the signing key: %w", err)
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Sign(payload []byte) (tag []byte, err error) {
	segment, err := jwt.SigningMethodHS256.Sign(signingInput(payload), s.key)
	if err != nil {
		return nil, err
	}
	return jwt.DecodeSegment(segment)
}

// Verify compares in constant time.
func (s *Signer) Verify(payload []byte, tag []byte) bool {
	if len(tag) != SignatureSize {
		return false
	}
	return jwt.SigningMethodHS256.Verify(signingInput(payload), jwt.EncodeSegment(tag), s.key) == nil
}

func signingInput(payload []byte) string {
	return signingContext + segmentSeparator + string(payload)
}
