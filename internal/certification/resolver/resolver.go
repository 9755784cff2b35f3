// Package resolver reads the flat chain.* configuration namespace and decides which
// notarization provider is active and with which credentials.
//
// Configuration is captured into an immutable Snapshot per request. Resolve and
// DescribeAll are pure functions of a Snapshot, so repeated calls against the same
// snapshot always agree.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"citywalk/internal/certification/providers"
)

const (
	KeyProvider  = "chain.provider"
	KeyAutoChain = "chain.autoChain"

	defaultLoadTimeout = 5 * time.Second
)

// CredentialKey returns the flat key of one provider credential field.
func CredentialKey(provider, field string) string {
	return "chain." + provider + "." + field
}

// Keys lists every key the resolver reads.
func Keys() []string {
	keys := []string{KeyProvider, KeyAutoChain}
	for _, p := range providers.Profiles() {
		for _, f := range p.Fields {
			keys = append(keys, CredentialKey(p.Name, f))
		}
	}
	return keys
}

// Snapshot is a read-only view of configuration values.
type Snapshot struct {
	values map[string]string
}

// NewSnapshot copies values into a snapshot.
func NewSnapshot(values map[string]string) Snapshot {
	return Snapshot{values: maps.Clone(values)}
}

// Get returns the trimmed value for key, or "" when unset.
func (s Snapshot) Get(key string) string {
	return strings.TrimSpace(s.values[key])
}

// AutoChain reports whether seal-earned events should be chained automatically.
func (s Snapshot) AutoChain() bool {
	return strings.EqualFold(s.Get(KeyAutoChain), "true")
}

// ProviderDescriptor reports the configuration status of one provider.
type ProviderDescriptor struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	IsConfigured bool   `json:"isConfigured"`
	IsCurrent    bool   `json:"isCurrent"`
}

// ActiveProvider returns the configured provider name, defaulting to local.
func ActiveProvider(s Snapshot) string {
	name := strings.ToLower(s.Get(KeyProvider))
	if name == "" {
		return providers.NameLocal
	}
	return name
}

// Credentials collects the documented credential fields of provider. Providers
// without a profile get empty credentials.
func Credentials(s Snapshot, provider string) providers.Credentials {
	creds := providers.Credentials{}
	profile, ok := providers.LookupProfile(provider)
	if !ok {
		return creds
	}
	for _, f := range profile.Fields {
		creds[f] = s.Get(CredentialKey(provider, f))
	}
	return creds
}

// IsConfigured reports whether every documented credential of provider is set.
// Local needs none and is always configured.
func IsConfigured(s Snapshot, provider string) bool {
	profile, ok := providers.LookupProfile(provider)
	if !ok {
		return false
	}
	return Credentials(s, provider).Complete(profile.Fields)
}

// Resolve returns the active provider name and its credentials.
func Resolve(s Snapshot) (string, providers.Credentials) {
	active := ActiveProvider(s)
	return active, Credentials(s, active)
}

// DescribeAll reports every built-in provider in display order.
func DescribeAll(s Snapshot) []ProviderDescriptor {
	active := ActiveProvider(s)
	profiles := providers.Profiles()
	out := make([]ProviderDescriptor, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ProviderDescriptor{
			ID:           p.Name,
			Label:        p.Label,
			Description:  p.Description,
			IsConfigured: IsConfigured(s, p.Name),
			IsCurrent:    p.Name == active,
		})
	}
	return out
}

// ConfigSource reads single configuration values. Missing keys return "" and no error.
type ConfigSource interface {
	GetConfigValue(ctx context.Context, key string) (string, error)
}

// BatchSource is implemented by sources that can load many keys in one round trip.
type BatchSource interface {
	GetConfigValues(ctx context.Context, keys []string) (map[string]string, error)
}

// Resolver loads snapshots from a ConfigSource. Concurrent loads share one read.
type Resolver struct {
	source      ConfigSource
	logger      *slog.Logger
	loadTimeout time.Duration
	group       singleflight.Group
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLoadTimeout bounds a shared load, which outlives the caller that started it.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.loadTimeout = d
		}
	}
}

func New(source ConfigSource, opts ...Option) *Resolver {
	r := &Resolver{source: source, logger: slog.Default(), loadTimeout: defaultLoadTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot reads all chain keys from the source. The shared load is detached from
// the cancellation of whichever caller started it; each caller stops waiting when
// its own ctx ends.
func (r *Resolver) Snapshot(ctx context.Context) (Snapshot, error) {
	ch := r.group.DoChan("snapshot", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()
		return r.load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		if res.Shared {
			r.logger.DebugContext(ctx, "chain config load shared")
		}
		// each caller gets its own copy of the shared map
		return NewSnapshot(res.Val.(map[string]string)), nil
	}
}

func (r *Resolver) load(ctx context.Context) (map[string]string, error) {
	keys := Keys()
	if batch, ok := r.source.(BatchSource); ok {
		values, err := batch.GetConfigValues(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load chain config: %w", err)
		}
		return values, nil
	}
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		v, err := r.source.GetConfigValue(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load chain config %s: %w", key, err)
		}
		if v != "" {
			values[key] = v
		}
	}
	return values, nil
}

// Resolve loads a snapshot and resolves the active provider from it.
func (r *Resolver) Resolve(ctx context.Context) (string, providers.Credentials, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return "", nil, err
	}
	name, creds := Resolve(snap)
	return name, creds, nil
}

// DescribeAll loads a snapshot and describes every provider.
func (r *Resolver) DescribeAll(ctx context.Context) ([]ProviderDescriptor, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return DescribeAll(snap), nil
}
