package providers

var zhixinProfile = Profile{
	Name:          NameZhixin,
	Label:         "Zhixin chain",
	Description:   "Zhixin evidence-preservation chain reached over its HTTP API.",
	Fields:        []string{"apiUrl", "appId", "appSecret"},
	EndpointField: "apiUrl",
	KeyIDField:    "appId",
	SecretField:   "appSecret",
}

func NewZhixin(opts ...Option) *Strategy {
	return newRemoteStrategy(zhixinProfile, "zx_", ordinalBand{lo: 50_000_000, hi: 60_000_000}, opts)
}
