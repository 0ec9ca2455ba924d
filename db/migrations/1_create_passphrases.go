package migrations

import "github.com/go-rel/rel"

// SecretCollation makes secret lookups and the unique index on secrets case and accent sensitive.
const SecretCollation = "COLLATE utf8mb4_bin"

func MigrateCreatePassphrases(schema *rel.Schema) {
	schema.CreateTable("passphrases", func(t *rel.Table) {
		t.ID("id")
		t.Int("event_id", rel.Required(true))
		t.SmallInt("role", rel.Required(true))
		t.String("secret", rel.Limit(255), rel.Options(SecretCollation))
		t.Int("derivable_from")
		t.DateTime("valid_from")
		t.DateTime("valid_until")
		t.Text("comment")
		t.ForeignKey("derivable_from", "passphrases", "id", rel.OnDelete("CASCADE"))
	})
}

func RollbackCreatePassphrases(schema *rel.Schema) {
	schema.DropTable("passphrases")
}
