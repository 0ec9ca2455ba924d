package sql

import "time"

/**
* Row of the passphrases table. Secret and DerivableFrom are mutually exclusive in practice, but
* the table does not enforce it.
 */
type Passphrase struct {
	ID            int
	EventID       int
	Role          int
	Secret        *string
	DerivableFrom *int
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	Comment       string
}

func (Passphrase) Table() string {
	return "passphrases"
}
