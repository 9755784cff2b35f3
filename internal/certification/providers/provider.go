package providers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"citywalk/internal/certification/certificate"
)

// Provider names as stored on seal-ownership records and in chain.provider.
const (
	NameLocal     = "local"
	NameTimestamp = "timestamp"
	NameAntChain  = "antchain"
	NameBSN       = "bsn"
	NamePolygon   = "polygon"
	NameZhixin    = "zhixin"
)

// Credentials holds the flat credential fields of one provider, keyed by field name
// (e.g. "appId"). Missing keys are treated as empty.
type Credentials map[string]string

// Complete reports whether every named field is non-empty.
func (c Credentials) Complete(fields []string) bool {
	for _, f := range fields {
		if c[f] == "" {
			return false
		}
	}
	return true
}

// NotarizationResult is what a provider returns for a certificate it notarized.
type NotarizationResult struct {
	ReferenceID  string                   `json:"referenceId"`
	Ordinal      string                   `json:"ordinal"`
	NotarizedAt  time.Time                `json:"notarizedAt"`
	ProviderName string                   `json:"providerName"`
	Certificate  *certificate.Certificate `json:"certificate"`
}

// VerifyRequest carries the stored notarization metadata back to the provider.
type VerifyRequest struct {
	ReferenceID string
	Ordinal     string
	NotarizedAt time.Time
	Certificate *certificate.Certificate
}

// VerificationResult echoes the stored metadata alongside the verdict.
type VerificationResult struct {
	Valid        bool                     `json:"valid"`
	ReferenceID  string                   `json:"referenceId"`
	Ordinal      string                   `json:"ordinal"`
	NotarizedAt  time.Time                `json:"notarizedAt"`
	ProviderName string                   `json:"providerName"`
	Certificate  *certificate.Certificate `json:"certificate"`
}

// Provider is the interface every notarization backend strategy implements.
type Provider interface {
	// Name returns the provider identifier stored on chained records.
	Name() string

	// Notarize hashes the certificate and produces a provider-namespaced reference.
	Notarize(ctx context.Context, cert *certificate.Certificate, creds Credentials) (*NotarizationResult, error)

	// Verify recomputes the reference from the supplied certificate and compares it
	// against the stored one. Stored metadata is echoed regardless of the verdict.
	Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error)
}

// Profile describes a provider for configuration and diagnostics.
type Profile struct {
	Name        string
	Label       string
	Description string

	// Fields lists the credential fields that must all be set for the provider
	// to be considered configured. Empty for providers that need none.
	Fields []string

	// EndpointField names the credential holding the backend base URL.
	EndpointField string

	// KeyIDField and SecretField name the credentials used to sign backend requests.
	KeyIDField  string
	SecretField string
}

// Registry maps provider names to strategies.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// NewDefaultRegistry registers all six built-in strategies with the given options.
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry()
	for _, p := range []Provider{
		NewLocal(opts...),
		NewTimestamp(opts...),
		NewAntChain(opts...),
		NewBSN(opts...),
		NewPolygon(opts...),
		NewZhixin(opts...),
	} {
		// names are distinct constants
		_ = r.Register(p)
	}
	return r
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) error {
	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profiles returns the built-in provider profiles in display order.
func Profiles() []Profile {
	return []Profile{
		localProfile,
		timestampProfile,
		antChainProfile,
		bsnProfile,
		polygonProfile,
		zhixinProfile,
	}
}

// LookupProfile returns the built-in profile for name.
func LookupProfile(name string) (Profile, bool) {
	for _, p := range Profiles() {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
