package passphrase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"
	"github.com/go-rel/reltest"
	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"github.com/fiware/passphrase-pdp/logging"
	"github.com/fiware/passphrase-pdp/model"
	dbModel "github.com/fiware/passphrase-pdp/sql"
)

func secret(s string) *string {
	return &s
}

func ref(id int) *int {
	return &id
}

func getPassphrase(id int, eventId int, role model.Role, s *string, derivableFrom *int) model.Passphrase {
	return model.Passphrase{Id: id, EventId: eventId, Role: role, Secret: s, DerivableFrom: derivableFrom}
}

func getSqlMock() (dbMock *reltest.Repository, sqlRepo PassphraseRepository) {
	dbMock = reltest.New()
	sqlRepo = NewSqlRepository(dbMock)
	return
}

func fillInMemory(passphrases []model.Passphrase) *InMemoryRepo {
	inMemoryRepo := NewInMemoryRepo()
	for _, p := range passphrases {
		inMemoryRepo.passphrases[p.Id] = p
		if p.Id > inMemoryRepo.lastId {
			inMemoryRepo.lastId = p.Id
		}
	}
	return inMemoryRepo
}

type creationTest struct {
	testName          string
	dbPassphrases     []model.Passphrase
	testPassphrase    model.Passphrase
	expectedStatus    int
	expectedRootError error
}

func getCreationTests() []creationTest {
	return []creationTest{
		{"Successfully create a secret-bearing passphrase.", []model.Passphrase{}, getPassphrase(0, 1, model.RoleManage, secret("Buxtehude"), nil), 0, nil},
		{"Successfully create the same secret for another event.", []model.Passphrase{getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil)}, getPassphrase(0, 2, model.RoleManage, secret("Buxtehude"), nil), 0, nil},
		{"Successfully create a secret differing only in case.", []model.Passphrase{getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil)}, getPassphrase(0, 1, model.RoleReadOnly, secret("buxtehude"), nil), 0, nil},
		{"Successfully create a derived passphrase.", []model.Passphrase{getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil)}, getPassphrase(0, 1, model.RoleShareableLink, nil, ref(1)), 0, nil},
		{"Successfully create derived passphrases of different roles.",
			[]model.Passphrase{getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil), getPassphrase(2, 1, model.RoleShareableLink, nil, ref(1))},
			getPassphrase(0, 1, model.RoleReadOnly, nil, ref(1)), 0, nil},
		{"Fail on a duplicate secret for the event.", []model.Passphrase{getPassphrase(1, 1, model.RoleReadOnly, secret("Buxtehude"), nil)}, getPassphrase(0, 1, model.RoleManage, secret("Buxtehude"), nil), http.StatusConflict, nil},
		{"Fail on a duplicate derivation.",
			[]model.Passphrase{getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil), getPassphrase(2, 1, model.RoleShareableLink, nil, ref(1))},
			getPassphrase(0, 1, model.RoleShareableLink, nil, ref(1)), http.StatusConflict, model.ErrDuplicateDerivation},
		{"Fail on a non-existent derivation source.", []model.Passphrase{}, getPassphrase(0, 1, model.RoleShareableLink, nil, ref(7)), http.StatusConflict, nil},
	}
}

func TestCreatePassphraseInMemory(t *testing.T) {

	logging.Log().SetLevel(log.DebugLevel)

	for _, tc := range getCreationTests() {
		t.Run(tc.testName, func(t *testing.T) {
			inMemoryRepo := fillInMemory(tc.dbPassphrases)
			created, httpErr := inMemoryRepo.CreatePassphrase(context.Background(), tc.testPassphrase)
			if httpErr.Status != tc.expectedStatus {
				t.Errorf("%s: Unexpected error. Expected: %v, Actual: %v.", tc.testName, tc.expectedStatus, httpErr)
			}
			if tc.expectedRootError != nil && !errors.Is(&httpErr, tc.expectedRootError) {
				t.Errorf("%s: Unexpected root error. Expected: %v, Actual: %v.", tc.testName, tc.expectedRootError, httpErr.RootError)
			}
			if tc.expectedStatus != 0 {
				if len(inMemoryRepo.passphrases) != len(tc.dbPassphrases) {
					t.Errorf("%s: The passphrase should not be stored in error cases.", tc.testName)
				}
				return
			}
			if created.Id != len(tc.dbPassphrases)+1 {
				t.Errorf("%s: The passphrase should get the next id, but got %d.", tc.testName, created.Id)
			}
			stored := inMemoryRepo.passphrases[created.Id]
			if diff := cmp.Diff(created, stored); diff != "" {
				t.Errorf("%s: The passphrase was not stored as expected (-created +stored):\n%s", tc.testName, diff)
			}
		})
	}
}

func TestCreatePassphraseIdsAreNeverReused(t *testing.T) {
	inMemoryRepo := NewInMemoryRepo()
	first, _ := inMemoryRepo.CreatePassphrase(context.Background(), getPassphrase(0, 1, model.RoleManage, secret("first"), nil))
	inMemoryRepo.DeletePassphrases(context.Background(), []int{first.Id})
	second, _ := inMemoryRepo.CreatePassphrase(context.Background(), getPassphrase(0, 1, model.RoleManage, secret("second"), nil))
	if second.Id == first.Id {
		t.Errorf("The id %d of a deleted passphrase was reused.", first.Id)
	}
}

type lookupTest struct {
	testName           string
	dbPassphrases      []model.Passphrase
	eventId            int
	secret             string
	expectedPassphrase model.Passphrase
	expectedStatus     int
}

func getLookupTests() []lookupTest {
	manage := getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil)
	other := getPassphrase(2, 2, model.RoleReadOnly, secret("Buxtehude"), nil)
	return []lookupTest{
		{"Successfully find the passphrase.", []model.Passphrase{manage}, 1, "Buxtehude", manage, 0},
		{"Successfully find the passphrase of the requested event.", []model.Passphrase{manage, other}, 2, "Buxtehude", other, 0},
		{"Return not found for an unknown secret.", []model.Passphrase{manage}, 1, "Hamburg", model.Passphrase{}, http.StatusNotFound},
		{"Return not found for a secret of another event.", []model.Passphrase{manage}, 3, "Buxtehude", model.Passphrase{}, http.StatusNotFound},
		{"Return not found for a secret in other case.", []model.Passphrase{manage}, 1, "buxtehude", model.Passphrase{}, http.StatusNotFound},
		{"Return not found for a secret with other accents.", []model.Passphrase{manage}, 1, "BÜXTEHUDE", model.Passphrase{}, http.StatusNotFound},
	}
}

func TestFindBySecretInMemory(t *testing.T) {

	logging.Log().SetLevel(log.DebugLevel)

	for _, tc := range getLookupTests() {
		t.Run(tc.testName, func(t *testing.T) {
			inMemoryRepo := fillInMemory(tc.dbPassphrases)
			passphrase, httpErr := inMemoryRepo.FindBySecret(context.Background(), tc.eventId, tc.secret)
			if httpErr.Status != tc.expectedStatus {
				t.Errorf("%s: Unexpected error. Expected: %v, Actual: %v.", tc.testName, tc.expectedStatus, httpErr)
			}
			if diff := cmp.Diff(tc.expectedPassphrase, passphrase); diff != "" {
				t.Errorf("%s: Unexpected passphrase (-want +got):\n%s", tc.testName, diff)
			}
		})
	}
}

func TestFindBySecretSql(t *testing.T) {

	logging.Log().SetLevel(log.DebugLevel)

	for _, tc := range getLookupTests() {
		t.Run(tc.testName, func(t *testing.T) {
			dbMock, sqlRepo := getSqlMock()
			expectation := dbMock.ExpectFind(where.Eq("event_id", tc.eventId), where.Eq("secret", tc.secret))
			if tc.expectedStatus == 0 {
				expectation.Result(toSqlPassphrase(tc.expectedPassphrase))
			} else {
				expectation.NotFound()
			}

			passphrase, httpErr := sqlRepo.FindBySecret(context.Background(), tc.eventId, tc.secret)
			if httpErr.Status != tc.expectedStatus {
				t.Errorf("%s: Unexpected error. Expected: %v, Actual: %v.", tc.testName, tc.expectedStatus, httpErr)
			}
			if diff := cmp.Diff(tc.expectedPassphrase, passphrase); diff != "" {
				t.Errorf("%s: Unexpected passphrase (-want +got):\n%s", tc.testName, diff)
			}
			dbMock.AssertExpectations(t)
		})
	}
}

func TestFindBySecretSqlFailure(t *testing.T) {
	dbMock, sqlRepo := getSqlMock()
	dbMock.ExpectFind(where.Eq("event_id", 1), where.Eq("secret", "Buxtehude")).Error(errors.New("connection_lost"))

	_, httpErr := sqlRepo.FindBySecret(context.Background(), 1, "Buxtehude")
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("A storage failure should be an internal error, but was %v.", httpErr)
	}
}

func TestGetPassphrasesInMemory(t *testing.T) {
	inMemoryRepo := fillInMemory([]model.Passphrase{
		getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil),
		getPassphrase(2, 1, model.RoleShareableLink, nil, ref(1)),
		getPassphrase(3, 2, model.RoleReadOnly, secret("Hamburg"), nil),
	})

	passphrases, httpErr := inMemoryRepo.GetPassphrases(context.Background(), []int{3, 42, 1})
	if httpErr != (model.HttpError{}) {
		t.Fatalf("Unexpected error %v", httpErr)
	}
	if len(passphrases) != 2 || passphrases[0].Id != 1 || passphrases[1].Id != 3 {
		t.Errorf("Only the existing passphrases should be returned in id order, but was %v.", passphrases)
	}

	derived, _ := inMemoryRepo.GetDerivedPassphrases(context.Background(), 1)
	if len(derived) != 1 || derived[0].Id != 2 {
		t.Errorf("The derived passphrase should be returned, but was %v.", derived)
	}

	eventPassphrases, _ := inMemoryRepo.GetEventPassphrases(context.Background(), 1)
	if len(eventPassphrases) != 2 {
		t.Errorf("Both passphrases of event 1 should be returned, but was %v.", eventPassphrases)
	}
}

func TestGetPassphrasesSql(t *testing.T) {
	dbMock, sqlRepo := getSqlMock()
	stored := []dbModel.Passphrase{
		toSqlPassphrase(getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil)),
		toSqlPassphrase(getPassphrase(3, 2, model.RoleReadOnly, secret("Hamburg"), nil)),
	}
	dbMock.ExpectFindAll(where.In("id", 3, 42, 1), rel.SortAsc("id")).Result(stored)

	passphrases, httpErr := sqlRepo.GetPassphrases(context.Background(), []int{3, 42, 1})
	if httpErr != (model.HttpError{}) {
		t.Fatalf("Unexpected error %v", httpErr)
	}
	expected := []model.Passphrase{fromSqlPassphrase(stored[0]), fromSqlPassphrase(stored[1])}
	if diff := cmp.Diff(expected, passphrases); diff != "" {
		t.Errorf("Unexpected passphrases (-want +got):\n%s", diff)
	}
	dbMock.AssertExpectations(t)

	// no query for an empty token
	emptyMock, emptyRepo := getSqlMock()
	passphrases, httpErr = emptyRepo.GetPassphrases(context.Background(), []int{})
	if httpErr != (model.HttpError{}) || len(passphrases) != 0 {
		t.Errorf("An empty id set should resolve to no passphrases, but was %v - %v.", passphrases, httpErr)
	}
	emptyMock.AssertExpectations(t)
}

func TestCreatePassphraseSql(t *testing.T) {

	logging.Log().SetLevel(log.DebugLevel)

	type test struct {
		testName          string
		testPassphrase    model.Passphrase
		mockError         error
		expectedStatus    int
		expectedRootError error
	}

	tests := []test{
		{"Successfully insert the passphrase.", getPassphrase(0, 1, model.RoleManage, secret("Buxtehude"), nil), nil, 0, nil},
		{"Report a derivation conflict as duplicate derivation.", getPassphrase(0, 1, model.RoleShareableLink, nil, ref(1)), rel.ConstraintError{Key: "passphrases_derivation", Type: rel.UniqueConstraint}, http.StatusConflict, model.ErrDuplicateDerivation},
		{"Report a secret conflict.", getPassphrase(0, 1, model.RoleManage, secret("Buxtehude"), nil), rel.ConstraintError{Key: "passphrases_event_secret", Type: rel.UniqueConstraint}, http.StatusConflict, nil},
		{"Report a missing derivation source.", getPassphrase(0, 1, model.RoleShareableLink, nil, ref(7)), rel.ConstraintError{Key: "derivable_from", Type: rel.ForeignKeyConstraint}, http.StatusConflict, nil},
		{"Report storage failures.", getPassphrase(0, 1, model.RoleManage, secret("Buxtehude"), nil), errors.New("connection_lost"), http.StatusInternalServerError, nil},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			dbMock, sqlRepo := getSqlMock()
			expectation := dbMock.ExpectInsert().ForType("*sql.Passphrase")
			if tc.mockError != nil {
				expectation.Error(tc.mockError)
			}

			_, httpErr := sqlRepo.CreatePassphrase(context.Background(), tc.testPassphrase)
			if httpErr.Status != tc.expectedStatus {
				t.Errorf("%s: Unexpected error. Expected: %v, Actual: %v.", tc.testName, tc.expectedStatus, httpErr)
			}
			if tc.expectedRootError != nil && !errors.Is(&httpErr, tc.expectedRootError) {
				t.Errorf("%s: Unexpected root error. Expected: %v, Actual: %v.", tc.testName, tc.expectedRootError, httpErr.RootError)
			}
			dbMock.AssertExpectations(t)
		})
	}
}

func TestExpirePassphrasesInMemory(t *testing.T) {
	now := time.Unix(1643809425, 0)
	earlier := now.Add(-time.Hour)
	later := now.Add(time.Hour)

	bounded := getPassphrase(2, 1, model.RoleReadOnly, secret("Hamburg"), nil)
	bounded.ValidUntil = &earlier
	open := getPassphrase(3, 1, model.RoleShareableLink, nil, ref(1))
	open.ValidUntil = &later

	inMemoryRepo := fillInMemory([]model.Passphrase{getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil), bounded, open})
	httpErr := inMemoryRepo.ExpirePassphrases(context.Background(), []int{1, 2, 3, 99}, now)
	if httpErr != (model.HttpError{}) {
		t.Fatalf("Unexpected error %v", httpErr)
	}
	if !inMemoryRepo.passphrases[1].ValidUntil.Equal(now) {
		t.Errorf("An unbounded passphrase should expire now, but is valid until %v.", inMemoryRepo.passphrases[1].ValidUntil)
	}
	if !inMemoryRepo.passphrases[2].ValidUntil.Equal(earlier) {
		t.Errorf("An already expired passphrase should keep its expiry, but is valid until %v.", inMemoryRepo.passphrases[2].ValidUntil)
	}
	if !inMemoryRepo.passphrases[3].ValidUntil.Equal(now) {
		t.Errorf("A later expiry should be moved to now, but is %v.", inMemoryRepo.passphrases[3].ValidUntil)
	}
}

func TestExpirePassphrasesSql(t *testing.T) {
	now := time.Unix(1643809425, 0)
	dbMock, sqlRepo := getSqlMock()
	query := rel.From("passphrases").Where(
		where.In("id", 1, 2),
		where.Or(where.Nil("valid_until"), where.Gt("valid_until", now)))
	dbMock.ExpectUpdateAny(query, rel.Set("valid_until", now)).UpdatedCount(2)

	if httpErr := sqlRepo.ExpirePassphrases(context.Background(), []int{1, 2}, now); httpErr != (model.HttpError{}) {
		t.Errorf("Unexpected error %v", httpErr)
	}
	dbMock.AssertExpectations(t)
}

func TestUpdateDerivableFromInMemory(t *testing.T) {
	inMemoryRepo := fillInMemory([]model.Passphrase{
		getPassphrase(1, 1, model.RoleManage, secret("Buxtehude"), nil),
		getPassphrase(2, 1, model.RoleShareableLink, nil, ref(1)),
		getPassphrase(3, 1, model.RoleShareableLink, nil, nil),
		getPassphrase(4, 1, model.RoleReadOnly, secret("Hamburg"), nil),
	})

	if httpErr := inMemoryRepo.UpdateDerivableFrom(context.Background(), 3, ref(1)); httpErr.Status != http.StatusConflict {
		t.Errorf("A second link passphrase derived from 1 should conflict, but was %v.", httpErr)
	}
	if httpErr := inMemoryRepo.UpdateDerivableFrom(context.Background(), 3, ref(4)); httpErr != (model.HttpError{}) {
		t.Errorf("Unexpected error %v", httpErr)
	}
	if *inMemoryRepo.passphrases[3].DerivableFrom != 4 {
		t.Errorf("The passphrase should be derivable from 4, but was %v.", inMemoryRepo.passphrases[3].DerivableFrom)
	}
	if httpErr := inMemoryRepo.UpdateDerivableFrom(context.Background(), 3, ref(99)); httpErr.Status != http.StatusConflict {
		t.Errorf("A non-existent source should conflict, but was %v.", httpErr)
	}
	if httpErr := inMemoryRepo.UpdateDerivableFrom(context.Background(), 99, nil); httpErr.Status != http.StatusNotFound {
		t.Errorf("Updating a non-existent passphrase should be not found, but was %v.", httpErr)
	}
	if httpErr := inMemoryRepo.UpdateDerivableFrom(context.Background(), 2, nil); httpErr != (model.HttpError{}) || inMemoryRepo.passphrases[2].DerivableFrom != nil {
		t.Errorf("Unlinking should succeed, but was %v.", httpErr)
	}
}

func TestDeletePassphrasesSql(t *testing.T) {
	dbMock, sqlRepo := getSqlMock()
	dbMock.ExpectDeleteAny(rel.From("passphrases").Where(where.In("id", 1, 2))).DeletedCount(2)

	if httpErr := sqlRepo.DeletePassphrases(context.Background(), []int{1, 2}); httpErr != (model.HttpError{}) {
		t.Errorf("Unexpected error %v", httpErr)
	}
	dbMock.AssertExpectations(t)
}
