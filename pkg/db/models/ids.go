package models

import "github.com/google/uuid"

// assignID fills a primary key before insert. Postgres also defaults ids with
// gen_random_uuid(), but sqlite has no equivalent.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
