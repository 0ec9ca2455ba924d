package token

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/fiware/passphrase-pdp/model"
	"github.com/fxamacker/cbor/v2"
)

const (
	// MaxPassphrases limits the number of passphrase ids a single token may carry.
	MaxPassphrases = 256
	// MaxTokenLength is checked before any decoding happens.
	MaxTokenLength = 4096

	segmentSeparator = "."
)

// strict, so every byte sequence has exactly one textual form
var segmentEncoding = base64.RawURLEncoding.Strict()

// Core Deterministic Encoding (RFC 8949 §4.2): smallest integer encoding, definite lengths.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("token: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: MaxPassphrases,
		IndefLength:      cbor.IndefLengthForbidden,
		TagsMd:           cbor.TagsForbidden,
	}.DecMode()
	if err != nil {
		panic("token: CBOR decoder initialization failed: " + err.Error())
	}
}

/**
* Decoded is the structural content of a token string. The signature has not been checked yet.
 */
type Decoded struct {
	PassphraseIds []int
	Payload       []byte
	Signature     []byte
}

// Normalize sorts ascending and removes duplicates. The result is never nil.
func Normalize(ids []int) []int {
	normalized := make([]int, 0, len(ids))
	normalized = append(normalized, ids...)
	sort.Ints(normalized)
	unique := normalized[:0]
	for i, id := range normalized {
		if i > 0 && id == normalized[i-1] {
			continue
		}
		unique = append(unique, id)
	}
	return unique
}

/**
* Builds the canonical signing input for the given set of passphrase ids.
 */
func Payload(ids []int) (canonical []int, payload []byte, err error) {
	canonical = Normalize(ids)
	if len(canonical) > MaxPassphrases {
		return nil, nil, fmt.Errorf("%w: %d passphrases exceed the limit of %d", model.ErrMalformedToken, len(canonical), MaxPassphrases)
	}
	if len(canonical) > 0 && canonical[0] <= 0 {
		return nil, nil, fmt.Errorf("%w: invalid passphrase id %d", model.ErrMalformedToken, canonical[0])
	}
	payload, err = encMode.Marshal(canonical)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedToken, err)
	}
	return canonical, payload, nil
}

func Encode(payload []byte, signature []byte) string {
	return segmentEncoding.EncodeToString(payload) + segmentSeparator + segmentEncoding.EncodeToString(signature)
}

/**
* Decode parses the token string. Everything but the single canonical representation of a
* set of ids is rejected with model.ErrMalformedToken.
 */
func Decode(raw string) (decoded Decoded, err error) {
	if raw == "" {
		return decoded, fmt.Errorf("%w: empty token", model.ErrMalformedToken)
	}
	if len(raw) > MaxTokenLength {
		return decoded, fmt.Errorf("%w: token exceeds %d characters", model.ErrMalformedToken, MaxTokenLength)
	}
	segments := strings.Split(raw, segmentSeparator)
	if len(segments) != 2 {
		return decoded, fmt.Errorf("%w: expected 2 segments, got %d", model.ErrMalformedToken, len(segments))
	}
	payload, err := segmentEncoding.DecodeString(segments[0])
	if err != nil || len(payload) == 0 {
		return decoded, fmt.Errorf("%w: invalid payload segment", model.ErrMalformedToken)
	}
	signature, err := segmentEncoding.DecodeString(segments[1])
	if err != nil || len(signature) != SignatureSize {
		return decoded, fmt.Errorf("%w: invalid signature segment", model.ErrMalformedToken)
	}

	var ids []int
	if err := decMode.Unmarshal(payload, &ids); err != nil {
		return decoded, fmt.Errorf("%w: %v", model.ErrMalformedToken, err)
	}
	for i, id := range ids {
		if id <= 0 || (i > 0 && id <= ids[i-1]) {
			return decoded, fmt.Errorf("%w: passphrase ids are not strictly ascending", model.ErrMalformedToken)
		}
	}
	_, canonicalPayload, err := Payload(ids)
	if err != nil {
		return decoded, err
	}
	if !bytes.Equal(canonicalPayload, payload) {
		return decoded, fmt.Errorf("%w: payload is not canonically encoded", model.ErrMalformedToken)
	}

	decoded.PassphraseIds = Normalize(ids)
	decoded.Payload = payload
	decoded.Signature = signature
	return decoded, nil
}
