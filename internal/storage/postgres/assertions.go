package postgres

import "github.com/tinoosan/walletledger/internal/storage"

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
