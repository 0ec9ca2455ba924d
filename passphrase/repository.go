package passphrase

import (
	"context"
	"time"

	"github.com/fiware/passphrase-pdp/logging"
	"github.com/fiware/passphrase-pdp/model"
)

var logger = logging.Log()

/**
* Repository used to store passphrases. All methods return the zero HttpError on success.
 */
type PassphraseRepository interface {
	// FindBySecret looks up the secret-bearing passphrase of the event. Unknown secrets are a 404.
	FindBySecret(ctx context.Context, eventId int, secret string) (passphrase model.Passphrase, httpErr model.HttpError)
	GetPassphrase(ctx context.Context, id int) (passphrase model.Passphrase, httpErr model.HttpError)
	// GetPassphrases returns the subset of the ids that exist, ordered by id.
	GetPassphrases(ctx context.Context, ids []int) (passphrases []model.Passphrase, httpErr model.HttpError)
	GetEventPassphrases(ctx context.Context, eventId int) (passphrases []model.Passphrase, httpErr model.HttpError)
	// GetDerivedPassphrases returns the direct children of the given passphrase.
	GetDerivedPassphrases(ctx context.Context, parentId int) (passphrases []model.Passphrase, httpErr model.HttpError)
	// CreatePassphrase assigns the id. Conflicting derivations are a 409 with root model.ErrDuplicateDerivation.
	CreatePassphrase(ctx context.Context, passphrase model.Passphrase) (created model.Passphrase, httpErr model.HttpError)
	UpdateDerivableFrom(ctx context.Context, id int, derivableFrom *int) model.HttpError
	// ExpirePassphrases sets valid_until to now on every passphrase that would still be valid later.
	ExpirePassphrases(ctx context.Context, ids []int, now time.Time) model.HttpError
	DeletePassphrases(ctx context.Context, ids []int) model.HttpError
	Ping(ctx context.Context) error
}
