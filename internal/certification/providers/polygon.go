package providers

var polygonProfile = Profile{
	Name:          NamePolygon,
	Label:         "Polygon",
	Description:   "Public chain anchoring through a contract call over JSON-RPC.",
	Fields:        []string{"rpcUrl", "contractAddress", "privateKey"},
	EndpointField: "rpcUrl",
	KeyIDField:    "contractAddress",
	SecretField:   "privateKey",
}

func NewPolygon(opts ...Option) *Strategy {
	return newRemoteStrategy(polygonProfile, "pg_", ordinalBand{lo: 40_000_000, hi: 50_000_000}, opts)
}
