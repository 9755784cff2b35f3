package handler

import (
	"time"

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/models"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/resolver"
)

// NotarizationResponse is returned by POST .../chain.
type NotarizationResponse struct {
	ReferenceID  string                   `json:"referenceId"`
	Ordinal      string                   `json:"ordinal"`
	NotarizedAt  time.Time                `json:"notarizedAt"`
	ProviderName string                   `json:"providerName"`
	Certificate  *certificate.Certificate `json:"certificate"`
}

// VerificationResponse is returned by GET .../verify.
type VerificationResponse struct {
	Valid        bool                     `json:"valid"`
	ReferenceID  string                   `json:"referenceId"`
	Ordinal      string                   `json:"ordinal"`
	NotarizedAt  time.Time                `json:"notarizedAt"`
	ProviderName string                   `json:"providerName"`
	Certificate  *certificate.Certificate `json:"certificate"`
}

// StatusResponse is returned by GET .../chain. Chain fields are omitted while unchained.
type StatusResponse struct {
	OwnershipID  string     `json:"ownershipId"`
	Status       string     `json:"status"`
	Chained      bool       `json:"chained"`
	ProviderName string     `json:"providerName,omitempty"`
	ReferenceID  string     `json:"referenceId,omitempty"`
	Ordinal      string     `json:"ordinal,omitempty"`
	NotarizedAt  *time.Time `json:"notarizedAt,omitempty"`
}

// ProvidersResponse is returned by GET /admin/chain/providers.
type ProvidersResponse struct {
	ActiveProvider           string                        `json:"activeProvider"`
	ActiveProviderConfigured bool                          `json:"activeProviderConfigured"`
	Providers                []resolver.ProviderDescriptor `json:"providers"`
}

func FromNotarization(r *providers.NotarizationResult) *NotarizationResponse {
	return &NotarizationResponse{
		ReferenceID:  r.ReferenceID,
		Ordinal:      r.Ordinal,
		NotarizedAt:  r.NotarizedAt.UTC(),
		ProviderName: r.ProviderName,
		Certificate:  r.Certificate,
	}
}

func FromVerification(r *providers.VerificationResult) *VerificationResponse {
	return &VerificationResponse{
		Valid:        r.Valid,
		ReferenceID:  r.ReferenceID,
		Ordinal:      r.Ordinal,
		NotarizedAt:  r.NotarizedAt.UTC(),
		ProviderName: r.ProviderName,
		Certificate:  r.Certificate,
	}
}

func FromStatus(v *models.ChainStatusView) *StatusResponse {
	resp := &StatusResponse{
		OwnershipID: v.OwnershipID.String(),
		Status:      string(v.Status),
		Chained:     v.Status == models.ChainStatusChained,
	}
	if resp.Chained {
		at := v.NotarizedAt.UTC()
		resp.ProviderName = v.ProviderName
		resp.ReferenceID = v.ReferenceID
		resp.Ordinal = v.Ordinal
		resp.NotarizedAt = &at
	}
	return resp
}

func FromProviderInfo(info *models.ProviderInfo) *ProvidersResponse {
	list := info.Providers
	if list == nil {
		list = []resolver.ProviderDescriptor{}
	}
	return &ProvidersResponse{
		ActiveProvider:           info.ActiveProvider,
		ActiveProviderConfigured: info.ActiveProviderConfigured,
		Providers:                list,
	}
}
