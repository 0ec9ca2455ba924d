package passphrase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rel/mysql"
	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"
	_ "github.com/go-sql-driver/mysql"

	"github.com/fiware/passphrase-pdp/model"
	dbModel "github.com/fiware/passphrase-pdp/sql"
)

const passphraseTable = "passphrases"

type SqlRepo struct {
	repo *rel.Repository
}

/**
* Opens the mysql adapter for the given go-sql-driver dsn.
 */
func GetMySqlRepository(dsn string) (rel.Repository, error) {
	adapter, err := mysql.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("was not able to connect to db: %w", err)
	}
	return rel.New(adapter), nil
}

func NewSqlRepository(repository rel.Repository) *SqlRepo {

	sqlRepo := new(SqlRepo)
	sqlRepo.repo = &repository
	return sqlRepo
}

func (sqlRepo SqlRepo) FindBySecret(ctx context.Context, eventId int, secret string) (passphrase model.Passphrase, httpErr model.HttpError) {
	var dbPassphrase dbModel.Passphrase
	err := (*sqlRepo.repo).Find(ctx, &dbPassphrase, where.Eq("event_id", eventId), where.Eq("secret", secret))
	if errors.Is(err, rel.ErrNotFound) {
		return passphrase, model.HttpError{Status: http.StatusNotFound, Message: "Passphrase not found.", RootError: model.ErrUnknownSecret}
	}
	if err != nil {
		return passphrase, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to query for the passphrase.", RootError: err}
	}
	return fromSqlPassphrase(dbPassphrase), httpErr
}

func (sqlRepo SqlRepo) GetPassphrase(ctx context.Context, id int) (passphrase model.Passphrase, httpErr model.HttpError) {
	var dbPassphrase dbModel.Passphrase
	err := (*sqlRepo.repo).Find(ctx, &dbPassphrase, where.Eq("id", id))
	if errors.Is(err, rel.ErrNotFound) {
		return passphrase, model.HttpError{Status: http.StatusNotFound, Message: fmt.Sprintf("Passphrase %d not found.", id), RootError: nil}
	}
	if err != nil {
		return passphrase, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to query for the passphrase.", RootError: err}
	}
	return fromSqlPassphrase(dbPassphrase), httpErr
}

func (sqlRepo SqlRepo) GetPassphrases(ctx context.Context, ids []int) (passphrases []model.Passphrase, httpErr model.HttpError) {
	if len(ids) == 0 {
		return []model.Passphrase{}, httpErr
	}
	return sqlRepo.findAll(ctx, where.In("id", toValues(ids)...))
}

func (sqlRepo SqlRepo) GetEventPassphrases(ctx context.Context, eventId int) (passphrases []model.Passphrase, httpErr model.HttpError) {
	return sqlRepo.findAll(ctx, where.Eq("event_id", eventId))
}

func (sqlRepo SqlRepo) GetDerivedPassphrases(ctx context.Context, parentId int) (passphrases []model.Passphrase, httpErr model.HttpError) {
	return sqlRepo.findAll(ctx, where.Eq("derivable_from", parentId))
}

func (sqlRepo SqlRepo) CreatePassphrase(ctx context.Context, passphrase model.Passphrase) (created model.Passphrase, httpErr model.HttpError) {
	dbPassphrase := toSqlPassphrase(passphrase)
	dbPassphrase.ID = 0
	err := (*sqlRepo.repo).Insert(ctx, &dbPassphrase)
	if err != nil {
		logger.Debugf("Was not able to insert the passphrase. Error was: %v", err)
		return created, constraintError(err, passphrase.DerivableFrom != nil, "Was not able to store passphrase.")
	}
	return fromSqlPassphrase(dbPassphrase), httpErr
}

func (sqlRepo SqlRepo) UpdateDerivableFrom(ctx context.Context, id int, derivableFrom *int) (httpErr model.HttpError) {
	var value interface{}
	if derivableFrom != nil {
		value = *derivableFrom
	}
	_, err := (*sqlRepo.repo).UpdateAny(ctx, rel.From(passphraseTable).Where(where.Eq("id", id)), rel.Set("derivable_from", value))
	if err != nil {
		return constraintError(err, derivableFrom != nil, fmt.Sprintf("Was not able to update passphrase %d.", id))
	}
	return httpErr
}

func (sqlRepo SqlRepo) ExpirePassphrases(ctx context.Context, ids []int, now time.Time) (httpErr model.HttpError) {
	if len(ids) == 0 {
		return httpErr
	}
	query := rel.From(passphraseTable).Where(
		where.In("id", toValues(ids)...),
		where.Or(where.Nil("valid_until"), where.Gt("valid_until", now)))
	expired, err := (*sqlRepo.repo).UpdateAny(ctx, query, rel.Set("valid_until", now))
	if err != nil {
		return model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to expire passphrases.", RootError: err}
	}
	logger.Debugf("Expired %d of %d passphrases.", expired, len(ids))
	return httpErr
}

func (sqlRepo SqlRepo) DeletePassphrases(ctx context.Context, ids []int) (httpErr model.HttpError) {
	if len(ids) == 0 {
		return httpErr
	}
	_, err := (*sqlRepo.repo).DeleteAny(ctx, rel.From(passphraseTable).Where(where.In("id", toValues(ids)...)))
	if err != nil {
		return model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to delete passphrases.", RootError: err}
	}
	return httpErr
}

func (sqlRepo SqlRepo) Ping(ctx context.Context) error {
	return (*sqlRepo.repo).Ping(ctx)
}

func (sqlRepo SqlRepo) findAll(ctx context.Context, filter rel.FilterQuery) (passphrases []model.Passphrase, httpErr model.HttpError) {
	var dbPassphrases []dbModel.Passphrase
	err := (*sqlRepo.repo).FindAll(ctx, &dbPassphrases, filter, rel.SortAsc("id"))
	if err != nil {
		return passphrases, model.HttpError{Status: http.StatusInternalServerError, Message: "Was not able to query for passphrases.", RootError: err}
	}
	passphrases = []model.Passphrase{}
	for _, dbPassphrase := range dbPassphrases {
		passphrases = append(passphrases, fromSqlPassphrase(dbPassphrase))
	}
	return passphrases, httpErr
}

func constraintError(err error, derivation bool, message string) model.HttpError {
	var constraintErr rel.ConstraintError
	if !errors.As(err, &constraintErr) {
		return model.HttpError{Status: http.StatusInternalServerError, Message: message, RootError: err}
	}
	if constraintErr.Type == rel.UniqueConstraint && derivation {
		return model.HttpError{Status: http.StatusConflict, Message: "Derived passphrase already exists.", RootError: model.ErrDuplicateDerivation}
	}
	return model.HttpError{Status: http.StatusConflict, Message: message, RootError: err}
}

func toValues(ids []int) []interface{} {
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return values
}

func toSqlPassphrase(passphrase model.Passphrase) dbModel.Passphrase {
	return dbModel.Passphrase{
		ID:            passphrase.Id,
		EventID:       passphrase.EventId,
		Role:          int(passphrase.Role),
		Secret:        passphrase.Secret,
		DerivableFrom: passphrase.DerivableFrom,
		ValidFrom:     passphrase.ValidFrom,
		ValidUntil:    passphrase.ValidUntil,
		Comment:       passphrase.Comment,
	}
}

func fromSqlPassphrase(dbPassphrase dbModel.Passphrase) model.Passphrase {
	return model.Passphrase{
		Id:            dbPassphrase.ID,
		EventId:       dbPassphrase.EventID,
		Role:          model.Role(dbPassphrase.Role),
		Secret:        dbPassphrase.Secret,
		DerivableFrom: dbPassphrase.DerivableFrom,
		ValidFrom:     dbPassphrase.ValidFrom,
		ValidUntil:    dbPassphrase.ValidUntil,
		Comment:       dbPassphrase.Comment,
	}
}
