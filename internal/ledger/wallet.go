package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAccount is returned when a wallet exposes no accounts.
var ErrNoAccount = errors.New("no wallet account available")

// Wallet is the account capability of an external wallet.
type Wallet interface {
	RequestAccounts(ctx context.Context) ([]string, error)
}

// StaticWallet exposes a fixed, configured account.
type StaticWallet struct {
	Account string
}

// RequestAccounts returns the configured account, or ErrNoAccount when unset.
func (w StaticWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.Account == "" {
		return nil, ErrNoAccount
	}
	return []string{w.Account}, nil
}

// PrimaryAccount returns the first valid account offered by w.
func PrimaryAccount(ctx context.Context, w Wallet) (string, error) {
	if w == nil {
		return "", ErrNoAccount
	}
	accounts, err := w.RequestAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoAccount, err)
	}
	if len(accounts) == 0 {
		return "", ErrNoAccount
	}
	if err := ValidateAddress(accounts[0]); err != nil {
		return "", err
	}
	return accounts[0], nil
}
