package secretchain

import (
	"context"

	"github.com/boternity/boternity/pkg/models"
)

// VaultProvider encrypts values with VaultCrypto before storing them,
// hex-encoded, in a SQLiteStore. It is the last (lowest-precedence)
// provider in the default chain, and the only one holding secrets at
// rest rather than reading them from the environment.
type VaultProvider struct {
	store  *SQLiteStore
	crypto *VaultCrypto
}

// NewVaultProvider composes a SQLiteStore and VaultCrypto into a Provider.
func NewVaultProvider(store *SQLiteStore, crypto *VaultCrypto) *VaultProvider {
	return &VaultProvider{store: store, crypto: crypto}
}

func (p *VaultProvider) Name() models.SecretProviderName { return models.SecretProviderVault }

func (p *VaultProvider) Get(ctx context.Context, key string, scope models.SecretScope) (string, bool, error) {
	hexValue, ok, err := p.store.get(ctx, key, scope)
	if err != nil || !ok {
		return "", ok, err
	}
	encrypted, err := hexDecode(hexValue)
	if err != nil {
		return "", false, err
	}
	plaintext, err := p.crypto.Decrypt(encrypted)
	if err != nil {
		return "", false, err
	}
	return string(plaintext), true, nil
}

func (p *VaultProvider) Set(ctx context.Context, key, value string, scope models.SecretScope) error {
	encrypted, err := p.crypto.Encrypt([]byte(value))
	if err != nil {
		return err
	}
	return p.store.set(ctx, key, hexEncode(encrypted), scope)
}

func (p *VaultProvider) Delete(ctx context.Context, key string, scope models.SecretScope) error {
	return p.store.delete(ctx, key, scope)
}

func (p *VaultProvider) List(ctx context.Context, scope models.SecretScope) ([]models.SecretEntry, error) {
	return p.store.list(ctx, scope)
}
