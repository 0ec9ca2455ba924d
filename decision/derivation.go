package decision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/fiware/passphrase-pdp/model"
	"github.com/fiware/passphrase-pdp/passphrase"
)

/**
* Engine maintains the derivable-from graph of the passphrases. Edges are only added after a
* reachability walk confirmed that they do not close a loop.
 */
type Engine struct {
	repo     passphrase.PassphraseRepository
	resolver *Resolver
	clock    Clock
}

func NewEngine(repo passphrase.PassphraseRepository, clock Clock) *Engine {
	return &Engine{repo: repo, resolver: NewResolver(repo), clock: clock}
}

/**
* Derive returns a passphrase of the target role for the event that is derivable from one of the
* held ids. Existing derivations are reused, new ones inherit the validity window of their source.
* Only secret-bearing passphrases are used as source.
 */
func (e *Engine) Derive(ctx context.Context, heldIds []int, eventId int, target model.Role) (derived model.Passphrase, err error) {
	if !target.Valid() {
		return derived, fmt.Errorf("%w: unknown role %d", model.ErrInvalidDerivation, int(target))
	}
	held, err := e.resolver.Held(ctx, heldIds, eventId, e.clock.Now())
	if err != nil {
		return derived, err
	}
	privilege := model.PrivilegeNone
	for _, p := range held {
		privilege = privilege.Join(p.Role.Privilege())
	}
	if privilege.Level < target.RequiredToDerive() {
		return derived, fmt.Errorf("%w: %s is required to derive %s, but only %s is held", model.ErrInsufficientPrivilege, target.RequiredToDerive(), target, privilege)
	}

	// a held link already is the narrowest grant
	if target == model.RoleShareableLink {
		for _, p := range held {
			if p.Role == model.RoleShareableLink && p.DerivableFrom != nil {
				return p, nil
			}
		}
	}

	source, ok := selectSource(held, target)
	if !ok {
		return derived, model.ErrNoDerivationSource
	}
	existing, ok, err := e.findDerived(ctx, source.Id, target)
	if err != nil {
		return derived, err
	}
	if ok {
		return e.usable(existing)
	}

	candidate := model.Passphrase{
		EventId:       eventId,
		Role:          target,
		DerivableFrom: &source.Id,
		ValidFrom:     source.ValidFrom,
		ValidUntil:    source.ValidUntil,
		Comment:       fmt.Sprintf("derived from %d", source.Id),
	}
	created, httpErr := e.repo.CreatePassphrase(ctx, candidate)
	if httpErr == (model.HttpError{}) {
		logger.Infof("Created %s passphrase %d derivable from %d.", target, created.Id, source.Id)
		return created, nil
	}
	if !errors.Is(&httpErr, model.ErrDuplicateDerivation) {
		return derived, &httpErr
	}
	// lost a race against a concurrent derivation, the winner's row is the result
	logger.Debugf("Derivation of %s from %d already exists.", target, source.Id)
	existing, ok, err = e.findDerived(ctx, source.Id, target)
	if err != nil {
		return derived, err
	}
	if !ok {
		return derived, &httpErr
	}
	return e.usable(existing)
}

// an expired or revoked derivation occupies its slot until it is deleted
func (e *Engine) usable(derived model.Passphrase) (model.Passphrase, error) {
	if !derived.ValidAt(e.clock.Now()) {
		return model.Passphrase{}, fmt.Errorf("%w: passphrase %d derived from %d is no longer valid", model.ErrNoDerivationSource, derived.Id, *derived.DerivableFrom)
	}
	return derived, nil
}

/**
* Create stores a new passphrase after validating it. A passphrase needs either a secret or a
* passphrase of the same event to derive from.
 */
func (e *Engine) Create(ctx context.Context, candidate model.Passphrase) (created model.Passphrase, err error) {
	if !candidate.Role.Valid() {
		return created, fmt.Errorf("%w: unknown role %d", model.ErrInvalidDerivation, int(candidate.Role))
	}
	if candidate.ValidFrom != nil && candidate.ValidUntil != nil && candidate.ValidFrom.After(*candidate.ValidUntil) {
		return created, fmt.Errorf("%w: valid_from is after valid_until", model.ErrInvalidDerivation)
	}
	if candidate.Secret != nil && *candidate.Secret == "" {
		return created, fmt.Errorf("%w: the secret must not be empty", model.ErrInvalidDerivation)
	}
	if (candidate.Secret == nil) == (candidate.DerivableFrom == nil) {
		return created, fmt.Errorf("%w: exactly one of secret and derivable_from is required", model.ErrInvalidDerivation)
	}
	if candidate.DerivableFrom != nil {
		if err := e.checkSource(ctx, candidate.EventId, *candidate.DerivableFrom); err != nil {
			return created, err
		}
	}
	candidate.Id = 0
	created, httpErr := e.repo.CreatePassphrase(ctx, candidate)
	if httpErr != (model.HttpError{}) {
		return created, &httpErr
	}
	return created, nil
}

/**
* Link sets or removes the derivable-from edge of a passphrase. Fails with model.ErrCycleDetected if
* the new source is the passphrase itself or one of its descendants.
 */
func (e *Engine) Link(ctx context.Context, id int, derivableFrom *int) error {
	p, httpErr := e.repo.GetPassphrase(ctx, id)
	if httpErr != (model.HttpError{}) {
		return &httpErr
	}
	if derivableFrom != nil {
		if p.Secret != nil {
			return fmt.Errorf("%w: passphrase %d has a secret and cannot be derived", model.ErrInvalidDerivation, id)
		}
		if err := e.checkSource(ctx, p.EventId, *derivableFrom); err != nil {
			return err
		}
		if *derivableFrom == id {
			return fmt.Errorf("%w: %d cannot derive from itself", model.ErrCycleDetected, id)
		}
		descendants, err := e.Descendants(ctx, id)
		if err != nil {
			return err
		}
		if contains(descendants, *derivableFrom) {
			return fmt.Errorf("%w: %d is derived from %d", model.ErrCycleDetected, *derivableFrom, id)
		}
	}
	if httpErr := e.repo.UpdateDerivableFrom(ctx, id, derivableFrom); httpErr != (model.HttpError{}) {
		return &httpErr
	}
	return nil
}

// Descendants is the transitive closure of the passphrases derived from id, ascending and without id itself.
func (e *Engine) Descendants(ctx context.Context, id int) (descendants []int, err error) {
	visited := map[int]bool{id: true}
	queue := []int{id}
	descendants = []int{}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, httpErr := e.repo.GetDerivedPassphrases(ctx, current)
		if httpErr != (model.HttpError{}) {
			return nil, &httpErr
		}
		for _, child := range children {
			if visited[child.Id] {
				continue
			}
			visited[child.Id] = true
			descendants = append(descendants, child.Id)
			queue = append(queue, child.Id)
		}
	}
	sort.Ints(descendants)
	return descendants, nil
}

// Revoke expires the passphrase and everything derived from it. Returns the affected ids.
func (e *Engine) Revoke(ctx context.Context, id int) (revoked []int, err error) {
	revoked, err = e.withDescendants(ctx, id)
	if err != nil {
		return nil, err
	}
	if httpErr := e.repo.ExpirePassphrases(ctx, revoked, e.clock.Now()); httpErr != (model.HttpError{}) {
		return nil, &httpErr
	}
	logger.Infof("Revoked passphrases %v.", revoked)
	return revoked, nil
}

// Delete removes the passphrase and everything derived from it. Returns the affected ids.
func (e *Engine) Delete(ctx context.Context, id int) (deleted []int, err error) {
	deleted, err = e.withDescendants(ctx, id)
	if err != nil {
		return nil, err
	}
	if httpErr := e.repo.DeletePassphrases(ctx, deleted); httpErr != (model.HttpError{}) {
		return nil, &httpErr
	}
	logger.Infof("Deleted passphrases %v.", deleted)
	return deleted, nil
}

func (e *Engine) withDescendants(ctx context.Context, id int) ([]int, error) {
	if _, httpErr := e.repo.GetPassphrase(ctx, id); httpErr != (model.HttpError{}) {
		return nil, &httpErr
	}
	descendants, err := e.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]int{id}, descendants...), nil
}

func (e *Engine) checkSource(ctx context.Context, eventId int, sourceId int) error {
	source, httpErr := e.repo.GetPassphrase(ctx, sourceId)
	if httpErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: passphrase %d to derive from does not exist", model.ErrInvalidDerivation, sourceId)
	}
	if httpErr != (model.HttpError{}) {
		return &httpErr
	}
	if source.EventId != eventId {
		return fmt.Errorf("%w: passphrase %d belongs to another event", model.ErrInvalidDerivation, sourceId)
	}
	if source.ValidUntil != nil && source.ValidUntil.Before(e.clock.Now()) {
		return fmt.Errorf("%w: passphrase %d to derive from has expired", model.ErrInvalidDerivation, sourceId)
	}
	return nil
}

func (e *Engine) findDerived(ctx context.Context, sourceId int, role model.Role) (derived model.Passphrase, found bool, err error) {
	children, httpErr := e.repo.GetDerivedPassphrases(ctx, sourceId)
	if httpErr != (model.HttpError{}) {
		return derived, false, &httpErr
	}
	for _, child := range children {
		if child.Role == role {
			return child, true, nil
		}
	}
	return derived, false, nil
}

// highest privileged secret-bearing passphrase allowed to derive the target, lowest id on ties
func selectSource(held []model.Passphrase, target model.Role) (source model.Passphrase, found bool) {
	for _, p := range held {
		if p.Secret == nil || p.DerivableFrom != nil || p.Role.Privilege().Level < target.RequiredToDerive() {
			continue
		}
		if !found || p.Role.Privilege().Level > source.Role.Privilege().Level {
			source, found = p, true
		}
	}
	return source, found
}

func contains(ids []int, id int) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
