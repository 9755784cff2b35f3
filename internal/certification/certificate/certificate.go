// Package certificate builds the canonical, hashable record of a seal-earning fact.
//
// The serialized form is the input to every provider's digest, so its field order,
// timestamp formats and string normalisation are fixed here and must not change for
// certificates that have already been notarized:
//
//	version, type, sealId, userId, sealName, earnedTime, location?, journeyId?, timestamp, nonce
//
// earnedTime is rendered as UTC with millisecond precision (EarnedTimeLayout), timestamp
// is the mint instant in integer milliseconds, optional fields are omitted when empty,
// and strings are NFC-normalised without HTML escaping.
package certificate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
)

const (
	// Version of the canonical schema.
	Version = "1.0"
	// TypeSeal tags certificates minted for the seal domain.
	TypeSeal = "SEAL_CERTIFICATE"
	// EarnedTimeLayout renders earnedTime independent of locale and zone.
	EarnedTimeLayout = "2006-01-02T15:04:05.000Z"
	// NonceBytes is the number of random bytes in a nonce before hex encoding.
	NonceBytes = 16
)

// SealFact is the input to certification: user U earned seal S at time T.
type SealFact struct {
	SealID     id.SealID
	UserID     id.UserID
	SealName   string
	EarnedTime time.Time
	Location   string
	JourneyID  id.JourneyID
}

// Certificate is the canonical record derived from a SealFact plus minting metadata.
// Field declaration order is the canonical serialization order.
type Certificate struct {
	Version    string `json:"version"`
	Type       string `json:"type"`
	SealID     string `json:"sealId"`
	UserID     string `json:"userId"`
	SealName   string `json:"sealName"`
	EarnedTime string `json:"earnedTime"`
	Location   string `json:"location,omitempty"`
	JourneyID  string `json:"journeyId,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Nonce      string `json:"nonce"`
}

// MintedAt returns the mint instant encoded in Timestamp.
func (c *Certificate) MintedAt() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Builder mints certificates. The zero value is not usable; use NewBuilder.
type Builder struct {
	entropy io.Reader
}

// Option configures a Builder.
type Option func(*Builder)

// WithEntropy overrides the nonce source. Tests use it to pin nonces.
func WithEntropy(r io.Reader) Option {
	return func(b *Builder) {
		if r != nil {
			b.entropy = r
		}
	}
}

// NewBuilder returns a Builder drawing nonces from crypto/rand.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{entropy: rand.Reader}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var defaultBuilder = NewBuilder()

// Build mints a certificate with the package default Builder.
func Build(fact SealFact, mintTime time.Time) (*Certificate, error) {
	return defaultBuilder.Build(fact, mintTime)
}

// Build turns a seal fact and a mint instant into a certificate with a fresh nonce.
func (b *Builder) Build(fact SealFact, mintTime time.Time) (*Certificate, error) {
	if fact.SealID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "seal ID is required")
	}
	if fact.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user ID is required")
	}
	earned := fact.EarnedTime.UTC()
	if y := earned.Year(); y < 0 || y > 9999 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "earned time must fall within years 0000-9999")
	}

	nonce := make([]byte, NonceBytes)
	if _, err := io.ReadFull(b.entropy, nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate certificate nonce")
	}

	return &Certificate{
		Version:    Version,
		Type:       TypeSeal,
		SealID:     normalize(fact.SealID.String()),
		UserID:     normalize(fact.UserID.String()),
		SealName:   normalize(fact.SealName),
		EarnedTime: earned.Format(EarnedTimeLayout),
		Location:   normalize(fact.Location),
		JourneyID:  normalize(fact.JourneyID.String()),
		Timestamp:  mintTime.UnixMilli(),
		Nonce:      hex.EncodeToString(nonce),
	}, nil
}

// Validate checks the structural invariants a certificate must satisfy before it can
// be hashed for verification.
func (c *Certificate) Validate() error {
	if c == nil {
		return dErrors.New(dErrors.CodeInvalidCertificate, "certificate is required")
	}
	switch {
	case c.Version == "":
		return invalid("version is required")
	case c.Type != TypeSeal:
		return invalid(fmt.Sprintf("unexpected certificate type %q", c.Type))
	case c.SealID == "":
		return invalid("sealId is required")
	case c.UserID == "":
		return invalid("userId is required")
	case len(c.Nonce) < 2*NonceBytes:
		return invalid("nonce is too short")
	case c.Timestamp <= 0:
		return invalid("timestamp must be positive")
	}
	if _, err := hex.DecodeString(c.Nonce); err != nil {
		return invalid("nonce must be hex encoded")
	}
	if _, err := time.Parse(EarnedTimeLayout, c.EarnedTime); err != nil {
		return invalid("earnedTime is not in canonical format")
	}
	if field := c.firstNonNFC(); field != "" {
		return invalid(field + " is not NFC-normalized")
	}
	return nil
}

func invalid(msg string) error {
	return dErrors.New(dErrors.CodeInvalidCertificate, msg)
}
