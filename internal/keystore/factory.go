package keystore

import (
	"fmt"

	"otpkeep/internal/config"
	"otpkeep/internal/keeper"
)

// NewStoreFromConfig creates a SecretStore based on the keystore config type.
// When cfg.Sealed is set the store is wrapped in a SealedStore using
// encryptor and unlock.
func NewStoreFromConfig(cfg config.KeyStoreConfig, encryptor keeper.Encryptor, unlock UnlockFunc) (keeper.SecretStore, error) {
	var store keeper.SecretStore
	switch cfg.Type {
	case "memory":
		store = NewMemoryStore()
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem keystore requires root to be set")
		}
		fsStore, err := NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		store = fsStore
	default:
		return nil, fmt.Errorf("unknown keystore type: %s", cfg.Type)
	}

	if !cfg.Sealed {
		return store, nil
	}
	if encryptor == nil {
		return nil, fmt.Errorf("sealed keystore requires an encryptor")
	}
	return NewSealedStore(store, encryptor, unlock), nil
}
