package providers

var antChainProfile = Profile{
	Name:          NameAntChain,
	Label:         "AntChain",
	Description:   "Consortium chain notarization through the AntChain BaaS gateway.",
	Fields:        []string{"endpoint", "accessKeyId", "accessKeySecret", "bizId"},
	EndpointField: "endpoint",
	KeyIDField:    "accessKeyId",
	SecretField:   "accessKeySecret",
}

func NewAntChain(opts ...Option) *Strategy {
	return newRemoteStrategy(antChainProfile, "0x", ordinalBand{lo: 20_000_000, hi: 30_000_000}, opts)
}
