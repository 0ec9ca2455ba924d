package token

import (
	"fmt"

	"github.com/fiware/passphrase-pdp/model"
)

/**
* Manager mints and parses the session tokens handed out to clients. A token is the signed,
* canonical set of passphrase ids the client has proven knowledge of.
 */
type Manager struct {
	signer *Signer
}

func NewManager(signer *Signer) *Manager {
	return &Manager{signer: signer}
}

func (m *Manager) Mint(passphraseIds []int) (string, error) {
	_, payload, err := Payload(passphraseIds)
	if err != nil {
		return "", err
	}
	tag, err := m.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("was not able to sign token: %w", err)
	}
	return Encode(payload, tag), nil
}

/**
* Parse decodes and verifies a token. On model.ErrInvalidSignature the decoded ids are returned
* as well, they must not be trusted.
 */
func (m *Manager) Parse(raw string) (passphraseIds []int, err error) {
	decoded, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if !m.signer.Verify(decoded.Payload, decoded.Signature) {
		return decoded.PassphraseIds, model.ErrInvalidSignature
	}
	return decoded.PassphraseIds, nil
}

// Empty returns a signed token without any passphrase.
func (m *Manager) Empty() (string, error) {
	return m.Mint(nil)
}
