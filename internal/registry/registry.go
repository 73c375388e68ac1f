package registry

import (
	"fmt"
	"strings"
)

// AssetDescriptor identifies a tradable asset on the quoting venue.
// Address is the venue-specific token address; Decimals is the number of
// fractional digits in the asset's smallest-unit representation.
type AssetDescriptor struct {
	Symbol   string
	Address  string
	Decimals int32
}

// Registry is the static set of assets to measure plus the reference
// currency every depth is denominated in. It is built once at startup and
// never mutated.
type Registry struct {
	Assets    []AssetDescriptor
	Reference AssetDescriptor
}

// New validates and assembles a registry.
func New(assets []AssetDescriptor, reference AssetDescriptor) (Registry, error) {
	if len(assets) == 0 {
		return Registry{}, fmt.Errorf("registry: at least one asset required")
	}
	if err := validate(reference); err != nil {
		return Registry{}, fmt.Errorf("registry: reference: %w", err)
	}

	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if err := validate(asset); err != nil {
			return Registry{}, fmt.Errorf("registry: %w", err)
		}
		if asset.Symbol == reference.Symbol {
			return Registry{}, fmt.Errorf("registry: %s is the reference currency and cannot be measured against itself", asset.Symbol)
		}
		if _, dup := seen[asset.Symbol]; dup {
			return Registry{}, fmt.Errorf("registry: duplicate symbol %s", asset.Symbol)
		}
		seen[asset.Symbol] = struct{}{}
	}

	return Registry{Assets: assets, Reference: reference}, nil
}

func validate(a AssetDescriptor) error {
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("asset symbol is empty")
	}
	if strings.TrimSpace(a.Address) == "" {
		return fmt.Errorf("asset %s: address is empty", a.Symbol)
	}
	if a.Decimals < 0 {
		return fmt.Errorf("asset %s: decimals must be non-negative", a.Symbol)
	}
	return nil
}

// Default returns the built-in Starknet token set measured against USDC.
func Default() Registry {
	return Registry{
		Assets: []AssetDescriptor{
			{Symbol: "ETH", Address: "0x049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7", Decimals: 18},
			{Symbol: "USDT", Address: "0x068f5c6a61780768455de69077e07e89787839bf8166decfbf92b645209c0fb8", Decimals: 6},
			{Symbol: "DAI", Address: "0x05574eb6b8789a91466f902c380d978e472db68170ff82a5b650b95a58ddf4ad", Decimals: 18},
			{Symbol: "WBTC", Address: "0x03fe2b97c1fd336e750087d68b9b867997fd64a2661ff3ca5a7c771641e8e7ac", Decimals: 8},
			{Symbol: "STRK", Address: "0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d", Decimals: 18},
			{Symbol: "EKUBO", Address: "0x075afe6402ad5a5c20dd25e10ec3b3986acaa647b77e4ae24b0cbc9a54a27a87", Decimals: 18},
		},
		Reference: AssetDescriptor{
			Symbol:   "USDC",
			Address:  "0x053c91253bc9682c04929ca02ed00b3e423f6710d2ee7e0d5ebb06f3ecf368a8",
			Decimals: 6,
		},
	}
}
