package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// Universe describes the world the bot trades in: tokens, AMM venues with
// their seeded pools, the flash-loan lender and the candidate routes. It is
// loaded from a YAML file and resolved symbolically so routes name tokens
// and venues, not raw addresses.
type Universe struct {
	Tokens   []TokenDef  `yaml:"tokens"`
	Venues   []VenueDef  `yaml:"venues"`
	Lender   LenderDef   `yaml:"lender"`
	Accounts AccountsDef `yaml:"accounts"`
	Routes   []RouteDef  `yaml:"routes"`
}

type TokenDef struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

type VenueDef struct {
	Name     string    `yaml:"name"`
	Address  string    `yaml:"address"`
	Approved bool      `yaml:"approved"`
	Pools    []PoolDef `yaml:"pools"`
}

type PoolDef struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	ReserveA string `yaml:"reserve_a"`
	ReserveB string `yaml:"reserve_b"`
}

type LenderDef struct {
	Address    string         `yaml:"address"`
	PremiumBps uint16         `yaml:"premium_bps"`
	Liquidity  []LiquidityDef `yaml:"liquidity"`
}

type LiquidityDef struct {
	Token  string `yaml:"token"`
	Amount string `yaml:"amount"`
}

type AccountsDef struct {
	Orchestrator string `yaml:"orchestrator"`
	Owner        string `yaml:"owner"`
	Operator     string `yaml:"operator"`
}

type RouteDef struct {
	Asset    string   `yaml:"asset"`
	Venues   []string `yaml:"venues"`
	Path     []string `yaml:"path"`
	AmountIn string   `yaml:"amount_in"`
}

// LoadUniverse reads and validates a universe file.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe %s: %w", path, err)
	}
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to parse universe %s: %w", path, err)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("invalid universe %s: %w", path, err)
	}
	return &u, nil
}

// Validate checks that every symbolic reference resolves.
func (u *Universe) Validate() error {
	if len(u.Tokens) == 0 {
		return fmt.Errorf("no tokens defined")
	}
	seen := make(map[string]bool, len(u.Tokens))
	for _, t := range u.Tokens {
		if t.Symbol == "" || !common.IsHexAddress(t.Address) {
			return fmt.Errorf("token %q has no valid address", t.Symbol)
		}
		if seen[t.Symbol] {
			return fmt.Errorf("duplicate token symbol %q", t.Symbol)
		}
		seen[t.Symbol] = true
	}
	for _, v := range u.Venues {
		if v.Name == "" || !common.IsHexAddress(v.Address) {
			return fmt.Errorf("venue %q has no valid address", v.Name)
		}
		for _, p := range v.Pools {
			if _, err := u.TokenAddress(p.TokenA); err != nil {
				return fmt.Errorf("venue %s: %w", v.Name, err)
			}
			if _, err := u.TokenAddress(p.TokenB); err != nil {
				return fmt.Errorf("venue %s: %w", v.Name, err)
			}
			if _, err := ParseAmount(p.ReserveA); err != nil {
				return fmt.Errorf("venue %s pool %s/%s: %w", v.Name, p.TokenA, p.TokenB, err)
			}
			if _, err := ParseAmount(p.ReserveB); err != nil {
				return fmt.Errorf("venue %s pool %s/%s: %w", v.Name, p.TokenA, p.TokenB, err)
			}
		}
	}
	if !common.IsHexAddress(u.Lender.Address) {
		return fmt.Errorf("lender has no valid address")
	}
	for _, l := range u.Lender.Liquidity {
		if _, err := u.TokenAddress(l.Token); err != nil {
			return fmt.Errorf("lender liquidity: %w", err)
		}
		if _, err := ParseAmount(l.Amount); err != nil {
			return fmt.Errorf("lender liquidity %s: %w", l.Token, err)
		}
	}
	for _, a := range []string{u.Accounts.Orchestrator, u.Accounts.Owner, u.Accounts.Operator} {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("account %q is not a valid address", a)
		}
	}
	for i, r := range u.Routes {
		if _, err := u.TokenAddress(r.Asset); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		for _, sym := range r.Path {
			if _, err := u.TokenAddress(sym); err != nil {
				return fmt.Errorf("route %d: %w", i, err)
			}
		}
		for _, name := range r.Venues {
			if _, err := u.VenueAddress(name); err != nil {
				return fmt.Errorf("route %d: %w", i, err)
			}
		}
		// amount_in is optional; the process-level borrow amount applies
		// when a route does not size itself.
		if r.AmountIn != "" {
			if _, err := ParseAmount(r.AmountIn); err != nil {
				return fmt.Errorf("route %d: %w", i, err)
			}
		}
	}
	return nil
}

// TokenAddress resolves a token symbol.
func (u *Universe) TokenAddress(symbol string) (common.Address, error) {
	for _, t := range u.Tokens {
		if t.Symbol == symbol {
			return common.HexToAddress(t.Address), nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown token %q", symbol)
}

// VenueAddress resolves a venue name.
func (u *Universe) VenueAddress(name string) (common.Address, error) {
	for _, v := range u.Venues {
		if v.Name == name {
			return common.HexToAddress(v.Address), nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown venue %q", name)
}

// ParseAmount parses a base-unit amount. Amounts are YAML strings so token
// quantities never pass through a float.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}
