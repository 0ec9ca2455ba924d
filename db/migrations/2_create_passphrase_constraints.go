package migrations

import "github.com/go-rel/rel"

// null secrets and null derivable_from values do not collide in unique indices
func MigrateCreatePassphraseConstraints(schema *rel.Schema) {
	schema.CreateUniqueIndex("passphrases", "passphrases_event_secret", []string{"event_id", "secret"})
	schema.CreateUniqueIndex("passphrases", "passphrases_derivation", []string{"derivable_from", "role"})
	schema.CreateIndex("passphrases", "passphrases_event", []string{"event_id"})
}

func RollbackCreatePassphraseConstraints(schema *rel.Schema) {
	schema.DropIndex("passphrases", "passphrases_event")
	schema.DropIndex("passphrases", "passphrases_derivation")
	schema.DropIndex("passphrases", "passphrases_event_secret")
}
