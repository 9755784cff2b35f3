package providers

var localProfile = Profile{
	Name:        NameLocal,
	Label:       "Local ledger",
	Description: "Digest recorded by the platform itself. Needs no credentials.",
}

// NewLocal returns the provider whose ordinal is derived from the wall clock.
// Ordinals increase for mints more than a second apart; sub-second mints may share one.
func NewLocal(opts ...Option) *Strategy {
	return newLocalStrategy(localProfile, "0x", opts)
}
