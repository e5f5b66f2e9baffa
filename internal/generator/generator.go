package generator

import (
	"github.com/google/uuid"
)

// Generator produces new values of type T: unique identifiers, lazy
// sequences, and the like.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDGenerator produces UUIDv4 strings. Used for playback job ids and
// stream session ids.
type UUIDGenerator struct{}

func (g *UUIDGenerator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDGenerator{}
