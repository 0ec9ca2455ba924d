package passphrase

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fiware/passphrase-pdp/model"
)

/**
* Quick in-memory implementation of the passphrase repository. Should only be used for dev and testing, does not have any persistence.
 */
type InMemoryRepo struct {
	mutex       sync.RWMutex
	passphrases map[int]model.Passphrase
	lastId      int
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{passphrases: map[int]model.Passphrase{}}
}

func (repo *InMemoryRepo) FindBySecret(ctx context.Context, eventId int, secret string) (passphrase model.Passphrase, httpErr model.HttpError) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	for _, p := range repo.passphrases {
		if p.EventId == eventId && p.Secret != nil && *p.Secret == secret {
			return p, httpErr
		}
	}
	return passphrase, model.HttpError{Status: http.StatusNotFound, Message: "Passphrase not found.", RootError: model.ErrUnknownSecret}
}

func (repo *InMemoryRepo) GetPassphrase(ctx context.Context, id int) (passphrase model.Passphrase, httpErr model.HttpError) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	passphrase, ok := repo.passphrases[id]
	if !ok {
		return passphrase, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Passphrase %d not found.", id), RootError: nil}
	}
	return passphrase, httpErr
}

func (repo *InMemoryRepo) GetPassphrases(ctx context.Context, ids []int) (passphrases []model.Passphrase, httpErr model.HttpError) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	passphrases = []model.Passphrase{}
	for _, id := range ids {
		if p, ok := repo.passphrases[id]; ok {
			passphrases = append(passphrases, p)
		}
	}
	sortById(passphrases)
	return passphrases, httpErr
}

func (repo *InMemoryRepo) GetEventPassphrases(ctx context.Context, eventId int) (passphrases []model.Passphrase, httpErr model.HttpError) {
	return repo.filter(func(p model.Passphrase) bool { return p.EventId == eventId }), httpErr
}

func (repo *InMemoryRepo) GetDerivedPassphrases(ctx context.Context, parentId int) (passphrases []model.Passphrase, httpErr model.HttpError) {
	return repo.filter(func(p model.Passphrase) bool { return p.DerivableFrom != nil && *p.DerivableFrom == parentId }), httpErr
}

func (repo *InMemoryRepo) CreatePassphrase(ctx context.Context, passphrase model.Passphrase) (created model.Passphrase, httpErr model.HttpError) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	for _, p := range repo.passphrases {
		if conflict := conflicts(p, passphrase); conflict != (model.HttpError{}) {
			logger.Debugf("Passphrase for event %d conflicts with %d.", passphrase.EventId, p.Id)
			return created, conflict
		}
	}
	if passphrase.DerivableFrom != nil {
		if _, ok := repo.passphrases[*passphrase.DerivableFrom]; !ok {
			return created, model.HttpError{Status: http.StatusConflict, Message: fmt.Sprintf("Passphrase %d to derive from does not exist.", *passphrase.DerivableFrom), RootError: nil}
		}
	}
	repo.lastId++
	passphrase.Id = repo.lastId
	repo.passphrases[passphrase.Id] = passphrase
	return passphrase, httpErr
}

func (repo *InMemoryRepo) UpdateDerivableFrom(ctx context.Context, id int, derivableFrom *int) (httpErr model.HttpError) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	passphrase, ok := repo.passphrases[id]
	if !ok {
		return model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Passphrase %d not found.", id), RootError: nil}
	}
	if derivableFrom != nil {
		if _, ok := repo.passphrases[*derivableFrom]; !ok {
			return model.HttpError{Status: http.StatusConflict, Message: fmt.Sprintf("Passphrase %d to derive from does not exist.", *derivableFrom), RootError: nil}
		}
	}
	passphrase.DerivableFrom = derivableFrom
	for _, p := range repo.passphrases {
		if p.Id == id {
			continue
		}
		if conflict := conflicts(p, passphrase); conflict != (model.HttpError{}) {
			return conflict
		}
	}
	repo.passphrases[id] = passphrase
	return httpErr
}

func (repo *InMemoryRepo) ExpirePassphrases(ctx context.Context, ids []int, now time.Time) (httpErr model.HttpError) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	for _, id := range ids {
		passphrase, ok := repo.passphrases[id]
		if !ok {
			continue
		}
		if passphrase.ValidUntil == nil || passphrase.ValidUntil.After(now) {
			expiry := now
			passphrase.ValidUntil = &expiry
			repo.passphrases[id] = passphrase
		}
	}
	return httpErr
}

func (repo *InMemoryRepo) DeletePassphrases(ctx context.Context, ids []int) (httpErr model.HttpError) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	for _, id := range ids {
		delete(repo.passphrases, id)
	}
	return httpErr
}

func (repo *InMemoryRepo) Ping(ctx context.Context) error {
	return nil
}

func (repo *InMemoryRepo) filter(include func(model.Passphrase) bool) (passphrases []model.Passphrase) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	passphrases = []model.Passphrase{}
	for _, p := range repo.passphrases {
		if include(p) {
			passphrases = append(passphrases, p)
		}
	}
	sortById(passphrases)
	return passphrases
}

// mirrors the unique indices of the passphrases table
func conflicts(existing model.Passphrase, candidate model.Passphrase) model.HttpError {
	if existing.Secret != nil && candidate.Secret != nil && existing.EventId == candidate.EventId && *existing.Secret == *candidate.Secret {
		return model.HttpError{Status: http.StatusConflict, Message: "Passphrase already exists for the event.", RootError: nil}
	}
	if existing.DerivableFrom != nil && candidate.DerivableFrom != nil && *existing.DerivableFrom == *candidate.DerivableFrom && existing.Role == candidate.Role {
		return model.HttpError{Status: http.StatusConflict, Message: "Derived passphrase already exists.", RootError: model.ErrDuplicateDerivation}
	}
	return model.HttpError{}
}

func sortById(passphrases []model.Passphrase) {
	sort.Slice(passphrases, func(i, j int) bool { return passphrases[i].Id < passphrases[j].Id })
}
