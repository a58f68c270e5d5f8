package keeper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"otpkeep/internal/account"
	"otpkeep/internal/export"
	"otpkeep/internal/migration"
	"otpkeep/internal/otp"
)

// Options tunes service behaviour that is read from configuration.
type Options struct {
	// FallbackIssuer is assigned to migrated accounts that carry no issuer.
	FallbackIssuer string
	// SealWorkFactor is the scrypt work factor for sealed exports.
	// Zero uses age's default.
	SealWorkFactor int
}

// Service is the orchestration layer that coordinates the database, the
// secret store and the pure OTP packages for the CLI.
type Service struct {
	database Database
	secrets  SecretStore
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	opts     Options
}

// NewService creates a Service with the provided dependencies.
// A nil logger, clock or idgen falls back to NopLogger, RealClock and
// UUIDGenerator.
func NewService(database Database, secrets SecretStore, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &Service{
		database: database,
		secrets:  secrets,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		opts:     opts,
	}
}

// CodeEntry is a generated code together with its validity window.
type CodeEntry struct {
	Account   *account.Account
	Code      string
	Remaining int64   // seconds until the code rolls over
	Progress  float64 // fraction of the period already elapsed
}

// Parameters are the code-generation settings of an account.
type Parameters struct {
	// Secret is base32 text. Empty keeps the current secret.
	Secret    string
	Algorithm otp.Algorithm
	Digits    int
	Period    int
}

// AddURI parses an otpauth:// URI and stores the account.
func (s *Service) AddURI(uri string) (*account.Account, error) {
	a, err := account.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing uri: %w", err)
	}
	return s.add(a)
}

// AddMigration decodes an otpauth-migration URI and stores every TOTP
// account in it. Returns the accounts added.
func (s *Service) AddMigration(uri string) ([]*account.Account, error) {
	decoded, err := migration.Decode(uri, migration.Options{
		Now:            s.clock.Now(),
		FallbackIssuer: s.opts.FallbackIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("decoding migration: %w", err)
	}
	added, err := s.addAll(decoded)
	if err != nil {
		return added, err
	}
	s.logger.Info("migration imported", "count", len(added))
	return added, nil
}

// Create stores a new account with a randomly generated secret.
func (s *Service) Create(issuer, accountName string, opts account.GenerateOpts) (*account.Account, error) {
	a, err := account.Generate(strings.TrimSpace(issuer), strings.TrimSpace(accountName), opts)
	if err != nil {
		return nil, err
	}
	return s.add(a)
}

// List returns all accounts in display order. Secrets are not loaded.
func (s *Service) List() ([]*account.Account, error) {
	accounts, err := s.database.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// Find returns the account without loading its secret.
func (s *Service) Find(id string) (*account.Account, error) {
	return s.find(id)
}

// Get returns the account with its secret.
func (s *Service) Get(id string) (*account.Account, error) {
	a, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := s.loadSecret(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Rename changes the issuer and account name.
func (s *Service) Rename(id, issuer, accountName string) (*account.Account, error) {
	a, err := s.find(id)
	if err != nil {
		return nil, err
	}
	a.Issuer = strings.TrimSpace(issuer)
	a.AccountName = strings.TrimSpace(accountName)
	if err := s.database.UpdateAccount(a); err != nil {
		return nil, fmt.Errorf("renaming account: %w", err)
	}
	s.logger.Info("account renamed", "id", id, "label", a.Label())
	return a, nil
}

// Update replaces the code-generation parameters of an account.
func (s *Service) Update(id string, p Parameters) (*account.Account, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	secret := p.Secret
	if secret == "" {
		secret = current.Secret
	}
	updated, err := account.New(current.Issuer, current.AccountName, secret, p.Algorithm, p.Digits, p.Period, current.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated.ID = current.ID
	updated.LastUsedAt = current.LastUsedAt

	secretChanged := updated.Secret != current.Secret
	if secretChanged {
		if err := s.secrets.Put(SecretKey(id), []byte(updated.Secret)); err != nil {
			return nil, fmt.Errorf("storing secret: %w", err)
		}
	}
	if err := s.database.UpdateAccount(&updated); err != nil {
		if secretChanged {
			if putErr := s.secrets.Put(SecretKey(id), []byte(current.Secret)); putErr != nil {
				s.logger.Warn("secret not restored after failed update", "id", id, "error", putErr)
			}
		}
		return nil, fmt.Errorf("updating account: %w", err)
	}
	s.logger.Info("account updated", "id", id, "algorithm", updated.Algorithm, "digits", updated.Digits, "period", updated.Period)
	return &updated, nil
}

// Remove deletes an account and its secret.
func (s *Service) Remove(id string) error {
	a, err := s.find(id)
	if err != nil {
		return err
	}
	if err := s.database.DeleteAccount(id); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	if err := s.secrets.Delete(SecretKey(id)); err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}
	s.logger.Info("account removed", "id", id, "label", a.Label())
	return nil
}

// Codes generates the current code for every account and records the use.
func (s *Service) Codes() ([]*CodeEntry, error) {
	accounts, err := s.List()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	entries := make([]*CodeEntry, 0, len(accounts))
	for _, a := range accounts {
		if err := s.loadSecret(a); err != nil {
			return nil, err
		}
		e, err := s.codeFor(a, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Code generates the current code for one account and records the use.
func (s *Service) Code(id string) (*CodeEntry, error) {
	a, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return s.codeFor(a, s.clock.Now())
}

// URI returns the otpauth:// URI of an account.
func (s *Service) URI(id string) (string, error) {
	a, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return a.URI(), nil
}

// MigrationURI encodes all accounts as a single otpauth-migration URI.
func (s *Service) MigrationURI() (string, error) {
	accounts, err := s.loadAll()
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", ErrNoAccounts
	}
	return migration.Encode(accounts, migration.Batch{})
}

// Export writes all accounts into a password-protected backup. Sealed
// selects age passphrase encryption over the legacy XOR container.
func (s *Service) Export(password string, sealed bool) ([]byte, error) {
	accounts, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	var blob []byte
	if sealed {
		blob, err = export.Seal(accounts, password, now, export.SealOptions{WorkFactor: s.opts.SealWorkFactor})
	} else {
		blob, err = export.Export(accounts, password, now)
	}
	if err != nil {
		return nil, fmt.Errorf("exporting accounts: %w", err)
	}
	s.logger.Info("accounts exported", "count", len(accounts), "sealed", sealed)
	return blob, nil
}

// Import restores accounts from a backup produced by Export. Imported
// accounts receive new IDs and are appended after existing ones.
func (s *Service) Import(blob []byte, password string, sealed bool) ([]*account.Account, error) {
	var (
		accounts []account.Account
		err      error
	)
	if sealed {
		accounts, _, err = export.Open(blob, password)
	} else {
		accounts, _, err = export.Import(blob, password)
	}
	if err != nil {
		return nil, fmt.Errorf("importing accounts: %w", err)
	}

	added, err := s.addAll(accounts)
	if err != nil {
		return added, err
	}
	s.logger.Info("accounts imported", "count", len(added), "sealed", sealed)
	return added, nil
}

// add stores a under a fresh ID. The secret is written before the metadata
// so a listed account always has a secret.
func (s *Service) add(a account.Account) (*account.Account, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ID = s.idgen.New()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now()
	}

	if err := s.secrets.Put(SecretKey(a.ID), []byte(a.Secret)); err != nil {
		return nil, fmt.Errorf("storing secret: %w", err)
	}
	if err := s.database.CreateAccount(&a); err != nil {
		if delErr := s.secrets.Delete(SecretKey(a.ID)); delErr != nil {
			s.logger.Warn("orphaned secret", "id", a.ID, "error", delErr)
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	s.logger.Info("account added", "id", a.ID, "label", a.Label())
	return &a, nil
}

func (s *Service) addAll(accounts []account.Account) ([]*account.Account, error) {
	added := make([]*account.Account, 0, len(accounts))
	for _, a := range accounts {
		stored, err := s.add(a)
		if err != nil {
			return added, fmt.Errorf("adding %s: %w", a.Label(), err)
		}
		added = append(added, stored)
	}
	return added, nil
}

func (s *Service) find(id string) (*account.Account, error) {
	a, err := s.database.FindAccount(id)
	if err != nil {
		return nil, fmt.Errorf("finding account: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a, nil
}

func (s *Service) loadSecret(a *account.Account) error {
	secret, err := s.secrets.Get(SecretKey(a.ID))
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return fmt.Errorf("account %s has no stored secret: %w", a.ID, err)
		}
		return fmt.Errorf("loading secret: %w", err)
	}
	a.Secret = string(secret)
	return nil
}

func (s *Service) loadAll() ([]account.Account, error) {
	accounts, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]account.Account, 0, len(accounts))
	for _, a := range accounts {
		if err := s.loadSecret(a); err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *Service) codeFor(a *account.Account, now time.Time) (*CodeEntry, error) {
	code, err := a.Code(now)
	if err != nil {
		return nil, fmt.Errorf("generating code for %s: %w", a.ID, err)
	}
	if err := s.database.TouchAccount(a.ID, now); err != nil {
		return nil, fmt.Errorf("recording use: %w", err)
	}
	used := now
	a.LastUsedAt = &used

	period, ts := int64(a.Period), now.Unix()
	return &CodeEntry{
		Account:   a,
		Code:      code,
		Remaining: otp.TimeRemaining(period, ts),
		Progress:  otp.Progress(period, ts),
	}, nil
}
