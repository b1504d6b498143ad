package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"github.com/vaultbridge/backend/internal/infrastructure/config"
	"github.com/vaultbridge/backend/internal/infrastructure/ledger"
)

// seedLedger deploys the configured tokens and vaults and mints the initial
// balances. Tokens go first since vaults reference them.
func seedLedger(ctx context.Context, l *ledger.Ledger, seed config.LedgerConfig) error {
	for i, t := range seed.Tokens {
		addr, err := valueobject.ParseAddress(t.Address)
		if err != nil {
			return fmt.Errorf("ledger.tokens[%d]: %w", i, err)
		}
		var opts []ledger.TokenOption
		if t.SoftFailures {
			opts = append(opts, ledger.WithSoftFailures())
		}
		if _, err := l.DeployToken(addr, t.Symbol, t.Decimals, opts...); err != nil {
			return fmt.Errorf("ledger.tokens[%d] %s: %w", i, t.Symbol, err)
		}
	}

	for i, v := range seed.Vaults {
		addrs, err := parseAll(append([]string{v.Address, v.Denomination, v.Shares}, v.Holdings...))
		if err != nil {
			return fmt.Errorf("ledger.vaults[%d]: %w", i, err)
		}
		if _, err := l.DeployVault(addrs[0], addrs[1], addrs[2], addrs[3:]...); err != nil {
			return fmt.Errorf("ledger.vaults[%d]: %w", i, err)
		}
	}

	for i, b := range seed.Balances {
		addrs, err := parseAll([]string{b.Token, b.Holder})
		if err != nil {
			return fmt.Errorf("ledger.balances[%d]: %w", i, err)
		}
		amount, err := decimal.NewFromString(b.Amount)
		if err != nil {
			return fmt.Errorf("ledger.balances[%d].amount: %w", i, err)
		}
		token, err := l.Token(addrs[0])
		if err != nil {
			return fmt.Errorf("ledger.balances[%d]: %w", i, err)
		}
		if err := token.Mint(ctx, addrs[1], amount); err != nil {
			return fmt.Errorf("ledger.balances[%d]: %w", i, err)
		}
	}
	return nil
}

func parseAll(raw []string) ([]valueobject.Address, error) {
	out := make([]valueobject.Address, 0, len(raw))
	for _, s := range raw {
		addr, err := valueobject.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
