package pricing

import "strings"

// ZeroAddress stands for a chain's native token in Trading events.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NativeToken is the wrapped ERC-20 used to price a chain's native token,
// and the chain whose pools list it.
type NativeToken struct {
	Address string `yaml:"address"`
	ChainID int64  `yaml:"chain_id"`
}

// DefaultNetworks maps EVM chain ids to GeckoTerminal network ids.
func DefaultNetworks() map[int64]string {
	return map[int64]string{
		1:     "eth",
		10:    "optimism",
		100:   "xdai",
		250:   "ftm",
		324:   "zksync",
		1088:  "metis",
		8453:  "base",
		9001:  "evmos",
		42161: "arbitrum",
	}
}

// DefaultWrappedNative maps chain ids to their wrapped native token.
func DefaultWrappedNative() map[int64]NativeToken {
	return map[int64]NativeToken{
		1:     {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", ChainID: 1},
		10:    {Address: "0x4200000000000000000000000000000000000006", ChainID: 10},
		100:   {Address: "0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d", ChainID: 100},
		250:   {Address: "0x21be370D5312f44cB42ce377BC9b8a0cEF1A4C83", ChainID: 250},
		324:   {Address: "0x5AEa5775959fBC2557Cc8789bC1bf90A239D9a91", ChainID: 324},
		1088:  {Address: "0x75cb093E4D61d2A2e65D8e0BBb01DE8d89b53481", ChainID: 1088},
		8453:  {Address: "0x4200000000000000000000000000000000000006", ChainID: 8453},
		9001:  {Address: "0xD4949664cD82660AaE99bEdc034a0deA8A0bd517", ChainID: 9001},
		42161: {Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", ChainID: 42161},
	}
}

// IsNative reports whether currency is the native zero address.
func IsNative(currency string) bool {
	return strings.EqualFold(currency, ZeroAddress)
}
