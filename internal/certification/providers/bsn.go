package providers

var bsnProfile = Profile{
	Name:          NameBSN,
	Label:         "BSN",
	Description:   "Blockchain-based Service Network node gateway.",
	Fields:        []string{"nodeGateway", "userCode", "appCode", "privateKey"},
	EndpointField: "nodeGateway",
	KeyIDField:    "userCode",
	SecretField:   "privateKey",
}

func NewBSN(opts ...Option) *Strategy {
	return newRemoteStrategy(bsnProfile, "0x", ordinalBand{lo: 30_000_000, hi: 40_000_000}, opts)
}
