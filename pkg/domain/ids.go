package domain

import (
	dErrors "citywalk/pkg/domain-errors"
)

// maxIDLength bounds identifiers accepted at trust boundaries.
const maxIDLength = 64

// Typed identifiers keep ownership, seal and user IDs from being swapped at call sites.
// The admin platform issues numeric and prefixed string IDs, so these wrap strings.
type (
	OwnershipID string
	SealID      string
	UserID      string
	JourneyID   string
)

func (id OwnershipID) String() string { return string(id) }
func (id SealID) String() string      { return string(id) }
func (id UserID) String() string      { return string(id) }
func (id JourneyID) String() string   { return string(id) }

func (id OwnershipID) IsNil() bool { return id == "" }
func (id SealID) IsNil() bool      { return id == "" }
func (id UserID) IsNil() bool      { return id == "" }
func (id JourneyID) IsNil() bool   { return id == "" }

// ParseOwnershipID validates a seal-ownership record identifier.
func ParseOwnershipID(s string) (OwnershipID, error) {
	v, err := parseID("ownership ID", s)
	return OwnershipID(v), err
}

// ParseSealID validates a seal identifier.
func ParseSealID(s string) (SealID, error) {
	v, err := parseID("seal ID", s)
	return SealID(v), err
}

// ParseUserID validates an app user identifier.
func ParseUserID(s string) (UserID, error) {
	v, err := parseID("user ID", s)
	return UserID(v), err
}

// ParseJourneyID validates a journey identifier. Journeys are optional, so an empty
// input yields the zero value without error.
func ParseJourneyID(s string) (JourneyID, error) {
	if s == "" {
		return "", nil
	}
	v, err := parseID("journey ID", s)
	return JourneyID(v), err
}

func parseID(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	for i := 0; i < len(s); i++ {
		if !isIDByte(s[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
		}
	}
	return s, nil
}

// isIDByte allows ASCII alphanumerics and the separators used by the admin platform.
func isIDByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == ':':
		return true
	}
	return false
}
