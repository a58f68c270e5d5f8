package keeper

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoAccounts      = errors.New("no accounts")
)
