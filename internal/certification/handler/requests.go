package handler

import (
	"strings"

	dErrors "citywalk/pkg/domain-errors"
)

// maxProviderLength bounds the provider name accepted from clients.
const maxProviderLength = 32

// ChainRequest is the body of POST /admin/seal-ownerships/{id}/chain.
// An empty provider selects the configured active provider.
type ChainRequest struct {
	Provider string `json:"provider"`
}

func (r *ChainRequest) Normalize() {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
}

func (r *ChainRequest) Validate() error {
	if len(r.Provider) > maxProviderLength {
		return dErrors.New(dErrors.CodeInvalidInput, "provider name too long")
	}
	return nil
}
