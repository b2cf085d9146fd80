package market

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Asset describes one tracked symbol in the catalog.
type Asset struct {
	Symbol      string  `yaml:"symbol"`       // e.g. "BTC"
	CoinGeckoID string  `yaml:"coingecko_id"` // external identifier used by the oracle, may be empty
	Volatility  float64 `yaml:"volatility"`   // 0 means the policy default
}

// Catalog is the fixed, ordered set of tracked assets.
type Catalog []Asset

// Symbols returns the catalog symbols in order.
func (c Catalog) Symbols() []string {
	out := make([]string, len(c))
	for i, a := range c {
		out[i] = a.Symbol
	}
	return out
}

// Lookup returns the asset for symbol.
func (c Catalog) Lookup(symbol string) (Asset, bool) {
	for _, a := range c {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return Asset{}, false
}

// Validate checks that symbols are non-empty, uppercase and unique and that volatilities are in range.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalog is empty")
	}

	seen := make(map[string]bool, len(c))
	for i, a := range c {
		if a.Symbol == "" {
			return fmt.Errorf("catalog entry %d: empty symbol", i)
		}
		if a.Symbol != strings.ToUpper(a.Symbol) {
			return fmt.Errorf("catalog entry %d: symbol %q must be uppercase", i, a.Symbol)
		}
		if seen[a.Symbol] {
			return fmt.Errorf("catalog entry %d: duplicate symbol %q", i, a.Symbol)
		}
		if a.Volatility < 0 || a.Volatility > 1 {
			return fmt.Errorf("catalog entry %d: volatility %v for %s out of range [0,1]", i, a.Volatility, a.Symbol)
		}
		seen[a.Symbol] = true
	}
	return nil
}

type catalogFile struct {
	Assets Catalog `yaml:"assets"`
}

// LoadCatalogFile reads a YAML catalog of the form:
//
//	assets:
//	  - symbol: BTC
//	    coingecko_id: bitcoin
//	    volatility: 0.02
func LoadCatalogFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if err := f.Assets.Validate(); err != nil {
		return nil, err
	}
	return f.Assets, nil
}

// DefaultCatalog returns the built-in set of tracked assets.
func DefaultCatalog() Catalog {
	out := make(Catalog, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

var defaultCatalog = Catalog{
	{Symbol: "BTC", CoinGeckoID: "bitcoin", Volatility: 0.02},
	{Symbol: "ETH", CoinGeckoID: "ethereum", Volatility: 0.025},
	{Symbol: "LTC", CoinGeckoID: "litecoin"},
	{Symbol: "XRP", CoinGeckoID: "ripple"},
	{Symbol: "BCH", CoinGeckoID: "bitcoin-cash"},
	{Symbol: "USDC", CoinGeckoID: "usd-coin"},
	{Symbol: "XMR", CoinGeckoID: "monero"},
	{Symbol: "XLM", CoinGeckoID: "stellar"},
	{Symbol: "USDT", CoinGeckoID: "tether", Volatility: 0.001},
	{Symbol: "QCAD", CoinGeckoID: "qcad"},
	{Symbol: "DOGE", CoinGeckoID: "dogecoin", Volatility: 0.05},
	{Symbol: "LINK", CoinGeckoID: "chainlink"},
	{Symbol: "MATIC", CoinGeckoID: "matic-network"},
	{Symbol: "UNI", CoinGeckoID: "uniswap"},
	{Symbol: "COMP", CoinGeckoID: "compound-governance-token"},
	{Symbol: "AAVE", CoinGeckoID: "aave"},
	{Symbol: "DAI", CoinGeckoID: "dai"},
	{Symbol: "SUSHI", CoinGeckoID: "sushi"},
	{Symbol: "SNX", CoinGeckoID: "synthetix-network-token"},
	{Symbol: "CRV", CoinGeckoID: "curve-dao-token"},
	{Symbol: "DOT", CoinGeckoID: "polkadot"},
	{Symbol: "YFI", CoinGeckoID: "yearn-finance"},
	{Symbol: "MKR", CoinGeckoID: "maker"},
	{Symbol: "PAXG", CoinGeckoID: "pax-gold"},
	{Symbol: "ADA", CoinGeckoID: "cardano"},
	{Symbol: "BAT", CoinGeckoID: "basic-attention-token"},
	{Symbol: "ENJ", CoinGeckoID: "enjincoin"},
	{Symbol: "AXS", CoinGeckoID: "axie-infinity"},
	{Symbol: "DASH", CoinGeckoID: "dash"},
	{Symbol: "EOS", CoinGeckoID: "eos"},
	{Symbol: "BAL", CoinGeckoID: "balancer"},
	{Symbol: "KNC", CoinGeckoID: "kyber-network"},
	{Symbol: "ZRX", CoinGeckoID: "0x"},
	{Symbol: "SAND", CoinGeckoID: "the-sandbox"},
	{Symbol: "GRT", CoinGeckoID: "the-graph"},
	{Symbol: "QNT", CoinGeckoID: "quant-network"},
	{Symbol: "ETC", CoinGeckoID: "ethereum-classic"},
	{Symbol: "ETHW", CoinGeckoID: "ethereum-pow"},
	{Symbol: "1INCH", CoinGeckoID: "1inch"},
	{Symbol: "CHZ", CoinGeckoID: "chiliz"},
	{Symbol: "CHR", CoinGeckoID: "chromia"},
	{Symbol: "SUPER", CoinGeckoID: "superfarm"},
	{Symbol: "ELF", CoinGeckoID: "aelf"},
	{Symbol: "OMG", CoinGeckoID: "omisego"},
	{Symbol: "FTM", CoinGeckoID: "fantom"},
	{Symbol: "MANA", CoinGeckoID: "decentraland"},
	{Symbol: "SOL", CoinGeckoID: "solana", Volatility: 0.04},
	{Symbol: "ALGO", CoinGeckoID: "algorand"},
	{Symbol: "LUNC", CoinGeckoID: "terra-luna"},
	{Symbol: "UST", CoinGeckoID: "terrausd"},
	{Symbol: "ZEC", CoinGeckoID: "zcash"},
	{Symbol: "XTZ", CoinGeckoID: "tezos"},
	{Symbol: "AMP", CoinGeckoID: "amp-token"},
	{Symbol: "REN", CoinGeckoID: "ren"},
	{Symbol: "UMA", CoinGeckoID: "uma"},
	{Symbol: "SHIB", CoinGeckoID: "shiba-inu"},
	{Symbol: "LRC", CoinGeckoID: "loopring"},
	{Symbol: "ANKR", CoinGeckoID: "ankr"},
	{Symbol: "HBAR", CoinGeckoID: "hedera-hashgraph"},
	{Symbol: "EGLD", CoinGeckoID: "elrond"},
	{Symbol: "AVAX", CoinGeckoID: "avalanche-2"},
	{Symbol: "ONE", CoinGeckoID: "harmony"},
	{Symbol: "GALA", CoinGeckoID: "gala"},
	{Symbol: "ALICE", CoinGeckoID: "my-neighbor-alice"},
	{Symbol: "ATOM", CoinGeckoID: "cosmos"},
	{Symbol: "DYDX", CoinGeckoID: "dydx"},
	{Symbol: "CELO", CoinGeckoID: "celo"},
	{Symbol: "STORJ", CoinGeckoID: "storj"},
	{Symbol: "SKL", CoinGeckoID: "skale"},
	{Symbol: "CTSI", CoinGeckoID: "cartesi"},
	{Symbol: "BAND", CoinGeckoID: "band-protocol"},
	{Symbol: "ENS", CoinGeckoID: "ethereum-name-service"},
	{Symbol: "RNDR", CoinGeckoID: "render-token"},
	{Symbol: "MASK", CoinGeckoID: "mask-network"},
	{Symbol: "APE", CoinGeckoID: "apecoin"},
}
