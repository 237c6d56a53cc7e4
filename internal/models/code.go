package models

type RedeemCode struct {
	Code  string
	Value Amount
}

// IssuedCode is handed to the account owner once and never shown again
type IssuedCode struct {
	Code        string
	Amount      Amount
	Fingerprint string
	Balance     Amount // balance after the payout
}

// CatalogEntry describes a code without revealing it
type CatalogEntry struct {
	Fingerprint string `json:"fingerprint"`
	Value       Amount `json:"value"`
}
