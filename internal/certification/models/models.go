// Package models holds the seal-ownership aggregate and the certification views
// built from it.
package models

import (
	"time"

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/resolver"
	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
)

// ChainStatus is the certification state of an ownership record.
type ChainStatus string

const (
	ChainStatusUnchained ChainStatus = "unchained"
	ChainStatusChained   ChainStatus = "chained"
)

// SealOwnershipRecord records that a user earned a seal.
//
// Invariants:
//   - Chained transitions false to true exactly once and never back
//   - ProviderName, ReferenceID, Ordinal, NotarizedAt and Certificate are set
//     together with Chained and are empty while unchained
//   - Certificate holds the canonical bytes that were digested
type SealOwnershipRecord struct {
	ID         id.OwnershipID
	SealID     id.SealID
	UserID     id.UserID
	SealName   string
	EarnedTime time.Time
	Location   string
	JourneyID  id.JourneyID

	Chained      bool
	ProviderName string
	ReferenceID  string
	Ordinal      string
	NotarizedAt  time.Time
	Certificate  []byte
	UpdatedAt    time.Time
}

// Fact returns the seal-earning fact certificates are minted from.
func (r *SealOwnershipRecord) Fact() certificate.SealFact {
	return certificate.SealFact{
		SealID:     r.SealID,
		UserID:     r.UserID,
		SealName:   r.SealName,
		EarnedTime: r.EarnedTime,
		Location:   r.Location,
		JourneyID:  r.JourneyID,
	}
}

func (r *SealOwnershipRecord) Status() ChainStatus {
	if r.Chained {
		return ChainStatusChained
	}
	return ChainStatusUnchained
}

// CanChain reports whether the record may still be notarized.
func (r *SealOwnershipRecord) CanChain() error {
	if r.Chained {
		return dErrors.New(dErrors.CodeAlreadyChained, "seal ownership is already certified")
	}
	return nil
}

// ApplyChain records a notarization. Callers check CanChain first.
func (r *SealOwnershipRecord) ApplyChain(result ChainResult, now time.Time) {
	r.Chained = true
	r.ProviderName = result.ProviderName
	r.ReferenceID = result.ReferenceID
	r.Ordinal = result.Ordinal
	r.NotarizedAt = result.NotarizedAt
	r.Certificate = append([]byte(nil), result.Certificate...)
	r.UpdatedAt = now
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *SealOwnershipRecord) Clone() *SealOwnershipRecord {
	c := *r
	c.Certificate = append([]byte(nil), r.Certificate...)
	return &c
}

// ChainResult is the set of fields persisted atomically when a record is chained.
type ChainResult struct {
	ProviderName string
	ReferenceID  string
	Ordinal      string
	NotarizedAt  time.Time
	Certificate  []byte
}

// ChainStatusView is the stored chain state of one record.
type ChainStatusView struct {
	OwnershipID  id.OwnershipID
	Status       ChainStatus
	ProviderName string
	ReferenceID  string
	Ordinal      string
	NotarizedAt  time.Time
}

// ProviderInfo is the read-only provider diagnostics view.
type ProviderInfo struct {
	ActiveProvider           string
	ActiveProviderConfigured bool
	Providers                []resolver.ProviderDescriptor
}
