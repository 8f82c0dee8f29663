// README: Identifier type for persisted aggregates.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// Valid reports whether id parses as a UUID.
func (id ID) Valid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}
