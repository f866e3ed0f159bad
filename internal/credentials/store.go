// Package credentials resolves account credentials for the exchange
// clients. Encryption-at-rest is the responsibility of the surrounding
// application; the engine only ever sees decrypted keys through this
// interface and never logs or persists them.
package credentials

import (
	"fmt"

	"binance-ai-trader/internal/models"
)

// Store resolves an account to its decrypted API key pair.
type Store interface {
	Resolve(account *models.Account) (apiKey, secretKey string, err error)
}

// AccountStore reads the keys stored on the account row. It stands in for
// the application's encrypted store in local and test setups.
type AccountStore struct{}

var _ Store = (*AccountStore)(nil)

// Resolve returns the account's key pair.
func (AccountStore) Resolve(account *models.Account) (string, string, error) {
	if account.ApiKey == "" || account.SecretKey == "" {
		return "", "", fmt.Errorf("account %d has no API credentials", account.ID)
	}
	return account.ApiKey, account.SecretKey, nil
}
