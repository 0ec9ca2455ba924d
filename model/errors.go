package model

import "errors"

var (
	ErrMalformedToken        = errors.New("malformed token")
	ErrInvalidSignature      = errors.New("invalid token signature")
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	ErrUnknownSecret         = errors.New("unknown passphrase")
	ErrCycleDetected         = errors.New("derivation would create a cycle")
	// a concurrent derivation already created the row, callers treat it as success
	ErrDuplicateDerivation = errors.New("derived passphrase already exists")
	ErrNoDerivationSource  = errors.New("no passphrase to derive from")
	ErrInvalidDerivation   = errors.New("invalid derivation")
)
