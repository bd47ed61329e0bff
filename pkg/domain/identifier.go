package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "bizreg/pkg/domain-errors"
)

// IdentifierWidth is the fixed width of a national business identifier.
const IdentifierWidth = 8

// Identifier is the externally visible, zero-padded national business identifier.
type Identifier string

func (i Identifier) String() string { return string(i) }

// ParseIdentifier validates raw input and pads it to IdentifierWidth, so "123"
// and "00000123" name the same company.
func ParseIdentifier(raw string) (Identifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}
	if len(s) > IdentifierWidth {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identifier is too long")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "identifier must be numeric")
		}
	}
	return Identifier(strings.Repeat("0", IdentifierWidth-len(s)) + s), nil
}

// JobID identifies one import run.
type JobID uuid.UUID

func NewJobID() JobID { return JobID(uuid.New()) }

func (j JobID) String() string { return uuid.UUID(j).String() }

// ParseJobID parses a non-nil UUID job identifier.
func ParseJobID(s string) (JobID, error) {
	if s == "" {
		return JobID{}, dErrors.New(dErrors.CodeInvalidInput, "job id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return JobID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid job id")
	}
	if parsed == uuid.Nil {
		return JobID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid job id")
	}
	return JobID(parsed), nil
}
