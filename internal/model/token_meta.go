package model

// TokenMeta is the cached ERC20 metadata that normalization depends on.
// A wrong decimal count corrupts every scaled amount for the token, so
// entries are set explicitly or fetched once and cached.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
}
