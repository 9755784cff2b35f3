package providers

var timestampProfile = Profile{
	Name:          NameTimestamp,
	Label:         "Trusted timestamp",
	Description:   "RFC 3161 style timestamp authority reached over its HTTP API.",
	Fields:        []string{"apiUrl", "appId", "appSecret"},
	EndpointField: "apiUrl",
	KeyIDField:    "appId",
	SecretField:   "appSecret",
}

func NewTimestamp(opts ...Option) *Strategy {
	return newRemoteStrategy(timestampProfile, "ts_", ordinalBand{lo: 10_000_000, hi: 20_000_000}, opts)
}
