package decision

import (
	"context"
	"errors"
	"time"

	"github.com/fiware/passphrase-pdp/model"
	"github.com/fiware/passphrase-pdp/passphrase"
	"github.com/fiware/passphrase-pdp/token"
)

/**
* Gate is the per-request authorization decision point. It also mints the tokens for login,
* logout and derivation, the only operations that change the id set a client holds.
 */
type Gate struct {
	tokens   *token.Manager
	repo     passphrase.PassphraseRepository
	resolver *Resolver
	engine   *Engine
	clock    Clock
}

func NewGate(tokens *token.Manager, repo passphrase.PassphraseRepository, clock Clock) *Gate {
	return &Gate{tokens: tokens, repo: repo, resolver: NewResolver(repo), engine: NewEngine(repo, clock), clock: clock}
}

func (g *Gate) Engine() *Engine {
	return g.engine
}

func (g *Gate) Authorize(ctx context.Context, rawToken string, eventId int, required model.Privilege) model.Decision {
	return g.AuthorizeAt(ctx, rawToken, eventId, required, g.clock.Now())
}

/**
* AuthorizeAt decodes, verifies and resolves the token, then checks the resolved privilege against
* the requirement. The reason of a deny is for logging only.
 */
func (g *Gate) AuthorizeAt(ctx context.Context, rawToken string, eventId int, required model.Privilege, now time.Time) model.Decision {
	ids, err := g.tokens.Parse(rawToken)
	if errors.Is(err, model.ErrMalformedToken) {
		logger.Debugf("Deny access to event %d: %v", eventId, err)
		return model.Deny(model.ReasonMalformedToken, model.PrivilegeNone)
	}
	if errors.Is(err, model.ErrInvalidSignature) {
		// resolve anyways, a forged token must cost the same as a genuine one
		g.resolver.Resolve(ctx, ids, eventId, now)
		logger.Debugf("Deny access to event %d: %v", eventId, err)
		return model.Deny(model.ReasonInvalidSignature, model.PrivilegeNone)
	}

	privilege, err := g.resolver.Resolve(ctx, ids, eventId, now)
	if err != nil {
		logger.Warnf("Deny access to event %d, privilege could not be resolved: %v", eventId, err)
		return model.Deny(model.ReasonRepositoryError, model.PrivilegeNone)
	}
	if !privilege.Satisfies(required) {
		logger.Debugf("Deny access to event %d: %s does not satisfy %s.", eventId, privilege, required)
		return model.Deny(model.ReasonInsufficientPrivilege, privilege)
	}
	return model.Allow(privilege)
}

/**
* Login adds the passphrase matching the secret to the ids of the existing token. An invalid existing
* token is replaced. Unknown, expired, not yet valid and derived-only passphrases are all reported
* as model.ErrUnknownSecret.
 */
func (g *Gate) Login(ctx context.Context, eventId int, secret string, existingToken string) (newToken string, err error) {
	ids := g.trustedIds(existingToken)

	p, httpErr := g.repo.FindBySecret(ctx, eventId, secret)
	if errors.Is(&httpErr, model.ErrUnknownSecret) {
		return "", model.ErrUnknownSecret
	}
	if httpErr != (model.HttpError{}) {
		return "", &httpErr
	}
	if !p.ValidAt(g.clock.Now()) || p.DerivableFrom != nil || !p.Role.Valid() {
		logger.Debugf("Passphrase %d is not usable for login.", p.Id)
		return "", model.ErrUnknownSecret
	}

	ids, err = g.existing(ctx, ids)
	if err != nil {
		return "", err
	}
	return g.tokens.Mint(append(ids, p.Id))
}

// Logout removes all ids of the event from the token. Other events stay authenticated.
func (g *Gate) Logout(ctx context.Context, eventId int, rawToken string) (newToken string, err error) {
	ids := g.trustedIds(rawToken)
	passphrases, err := g.resolver.load(ctx, ids)
	if err != nil {
		return "", err
	}
	remaining := []int{}
	for _, p := range passphrases {
		if p.EventId != eventId {
			remaining = append(remaining, p.Id)
		}
	}
	return g.tokens.Mint(remaining)
}

/**
* Derive mints a new token that only carries the passphrase of the target role derived from the
* token's passphrases for the event.
 */
func (g *Gate) Derive(ctx context.Context, rawToken string, eventId int, target model.Role) (newToken string, err error) {
	ids, err := g.tokens.Parse(rawToken)
	if err != nil {
		return "", err
	}
	derived, err := g.engine.Derive(ctx, ids, eventId, target)
	if err != nil {
		return "", err
	}
	return g.tokens.Mint([]int{derived.Id})
}

func (g *Gate) ShareableLink(ctx context.Context, rawToken string, eventId int) (newToken string, err error) {
	return g.Derive(ctx, rawToken, eventId, model.RoleShareableLink)
}

// Revoke expires the passphrase and all of its transitive derivatives.
func (g *Gate) Revoke(ctx context.Context, passphraseId int) (revoked []int, err error) {
	return g.engine.Revoke(ctx, passphraseId)
}

// Privilege resolves the token for one event. Invalid tokens resolve to model.PrivilegeNone.
func (g *Gate) Privilege(ctx context.Context, rawToken string, eventId int) (model.Privilege, error) {
	return g.resolver.Resolve(ctx, g.trustedIds(rawToken), eventId, g.clock.Now())
}

// Privileges resolves the token for every event it carries ids of.
func (g *Gate) Privileges(ctx context.Context, rawToken string) (map[int]model.Privilege, error) {
	return g.resolver.ResolveAll(ctx, g.trustedIds(rawToken), g.clock.Now())
}

func (g *Gate) trustedIds(rawToken string) []int {
	if rawToken == "" {
		return []int{}
	}
	ids, err := g.tokens.Parse(rawToken)
	if err != nil {
		logger.Debugf("Ignore the provided token: %v", err)
		return []int{}
	}
	return ids
}

// drops ids of deleted passphrases, ids are never reused
func (g *Gate) existing(ctx context.Context, ids []int) ([]int, error) {
	passphrases, err := g.resolver.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	existing := make([]int, 0, len(passphrases))
	for _, p := range passphrases {
		existing = append(existing, p.Id)
	}
	return existing, nil
}
