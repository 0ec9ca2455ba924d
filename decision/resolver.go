package decision

import (
	"context"
	"net/http"
	"time"

	"github.com/fiware/passphrase-pdp/model"
	"github.com/fiware/passphrase-pdp/passphrase"
)

/**
* Resolver computes the effective privilege a set of proven passphrase ids grants. Results are never
* cached, every call reads the current state of the repository.
 */
type Resolver struct {
	repo passphrase.PassphraseRepository
}

func NewResolver(repo passphrase.PassphraseRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve is the supremum of all passphrases of the event that are valid at now.
// Unknown, expired and foreign ids do not contribute. Only repository failures are errors.
func (r *Resolver) Resolve(ctx context.Context, ids []int, eventId int, now time.Time) (privilege model.Privilege, err error) {
	held, err := r.Held(ctx, ids, eventId, now)
	if err != nil {
		return model.PrivilegeNone, err
	}
	privilege = model.PrivilegeNone
	for _, p := range held {
		privilege = privilege.Join(p.Role.Privilege())
	}
	return privilege, nil
}

// Held returns the passphrases of the event that are valid at now, ordered by id.
// A derived passphrase is only valid while all passphrases it derives from are valid.
func (r *Resolver) Held(ctx context.Context, ids []int, eventId int, now time.Time) (held []model.Passphrase, err error) {
	passphrases, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	held = []model.Passphrase{}
	for _, p := range passphrases {
		if p.EventId != eventId {
			continue
		}
		valid, err := r.validAt(ctx, p, now)
		if err != nil {
			return nil, err
		}
		if valid {
			held = append(held, p)
		}
	}
	return held, nil
}

// ResolveAll groups the ids by event and resolves each event. Events without any privilege are omitted.
func (r *Resolver) ResolveAll(ctx context.Context, ids []int, now time.Time) (privileges map[int]model.Privilege, err error) {
	passphrases, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	privileges = map[int]model.Privilege{}
	for _, p := range passphrases {
		valid, err := r.validAt(ctx, p, now)
		if err != nil {
			return nil, err
		}
		if valid {
			privileges[p.EventId] = privileges[p.EventId].Join(p.Role.Privilege())
		}
	}
	return privileges, nil
}

func (r *Resolver) load(ctx context.Context, ids []int) ([]model.Passphrase, error) {
	if len(ids) == 0 {
		return []model.Passphrase{}, nil
	}
	passphrases, httpErr := r.repo.GetPassphrases(ctx, ids)
	if httpErr != (model.HttpError{}) {
		logger.Warnf("Was not able to load passphrases. Err: %v - root: %v", httpErr.Message, httpErr.RootError)
		return nil, &httpErr
	}
	return passphrases, nil
}

// walks up the derivable-from chain, every ancestor has to be valid at now
func (r *Resolver) validAt(ctx context.Context, p model.Passphrase, now time.Time) (bool, error) {
	if !p.Role.Valid() {
		return false, nil
	}
	visited := map[int]bool{}
	current := p
	for {
		if current.EventId != p.EventId || !current.ValidAt(now) {
			return false, nil
		}
		if current.DerivableFrom == nil {
			return true, nil
		}
		visited[current.Id] = true
		if visited[*current.DerivableFrom] {
			logger.Warnf("Derivation chain of passphrase %d contains a cycle.", p.Id)
			return false, nil
		}
		parent, httpErr := r.repo.GetPassphrase(ctx, *current.DerivableFrom)
		if httpErr.Status == http.StatusNotFound {
			return false, nil
		}
		if httpErr != (model.HttpError{}) {
			logger.Warnf("Was not able to load passphrase %d. Err: %v", *current.DerivableFrom, httpErr.Message)
			return false, &httpErr
		}
		current = parent
	}
}
