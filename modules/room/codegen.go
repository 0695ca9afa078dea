package room

import (
	"fmt"

	domain "github.com/example/study-rooms/domain/room"
	nanoid "github.com/jaevor/go-nanoid"
)

// codeAlphabet is the character set of room codes.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeAttempts bounds regeneration when a code collides with a live room.
const maxCodeAttempts = 10

// CodeGenerator returns a candidate room code. Callers must not assume
// uniqueness and retry against the store on collision.
type CodeGenerator func() string

// NewCodeGenerator returns a generator of 6-character [A-Z0-9] codes.
func NewCodeGenerator() (CodeGenerator, error) {
	gen, err := nanoid.CustomASCII(codeAlphabet, domain.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create room code generator: %w", err)
	}
	return CodeGenerator(gen), nil
}

// IsValidRoomCode checks that code is exactly 6 characters from [A-Z0-9].
func IsValidRoomCode(code string) bool {
	if len(code) != domain.CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
