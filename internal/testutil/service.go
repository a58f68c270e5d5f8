package testutil

import (
	"testing"

	"otpkeep/internal/database"
	"otpkeep/internal/keeper"
	"otpkeep/internal/keystore"
)

// TestService bundles a keeper.Service with the stubs behind it so tests can
// inspect or drive them.
type TestService struct {
	*keeper.Service
	DB      *database.SQLiteDatabase
	Secrets *keystore.MemoryStore
	Clock   *StubClock
	IDs     *StubIDGenerator
}

// NewTestService wires a Service over an in-memory database, an in-memory
// secret store, FixedClock and sequential IDs.
func NewTestService(t *testing.T, opts keeper.Options) *TestService {
	t.Helper()
	ts := &TestService{
		DB:      NewTestDatabase(t),
		Secrets: NewTestStore(),
		Clock:   FixedClock(),
		IDs:     NewStubIDGenerator(),
	}
	ts.Service = keeper.NewService(ts.DB, ts.Secrets, keeper.NewNopLogger(), ts.Clock, ts.IDs, opts)
	return ts
}
