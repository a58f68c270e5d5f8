package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"otpkeep/internal/account"
	"otpkeep/internal/config"
	"otpkeep/internal/database"
	"otpkeep/internal/encryption"
	"otpkeep/internal/keeper"
	"otpkeep/internal/keystore"
)

var ErrKeysNotInitialized = errors.New("encryption keys not initialized (run `otpkeep keys init`)")

// Options carries the runtime collaborators that do not come from config.
type Options struct {
	Verbose  bool
	Prompter Prompter
	// Clock and IDs default to the real clock and UUIDs.
	Clock keeper.Clock
	IDs   keeper.IDGenerator
}

// OTPApp is the application layer between the CLI and keeper.Service.
// It constructs all dependencies from config, adds file handling for
// exports, and closes resources and logs the outcome on Close.
type OTPApp struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase
	service  *keeper.Service
	prompter Prompter
	clock    keeper.Clock
	op       *Operation
	logger   *slog.Logger
	logFile  *os.File
}

// NewOTPApp creates a fully wired OTPApp. operation names the CLI command
// being run. The caller must call Close when done.
func NewOTPApp(cfg *config.Config, operation string, opts Options) (*OTPApp, error) {
	clock := opts.Clock
	if clock == nil {
		clock = keeper.RealClock{}
	}
	prompter := opts.Prompter
	if prompter == nil {
		prompter = TerminalPrompter{}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if cfg.KeyStore.Sealed && !enc.IsConfigured() {
		return nil, ErrKeysNotInitialized
	}

	op := NewOperation(operation, clock.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	unlock := func() (keeper.DecryptionContext, error) {
		passphrase, err := prompter.Passphrase("Passphrase: ", false)
		if err != nil {
			return nil, err
		}
		return enc.Unlock(passphrase)
	}
	store, err := keystore.NewStoreFromConfig(cfg.KeyStore, enc, unlock)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating keystore: %w", err)
	}

	svc := keeper.NewService(db, store, &slogAdapter{l: logger}, clock, opts.IDs, keeper.Options{
		FallbackIssuer: cfg.Import.FallbackIssuer,
		SealWorkFactor: cfg.Encryption.ExportWorkFactor,
	})

	return &OTPApp{
		cfg:      cfg,
		db:       db,
		service:  svc,
		prompter: prompter,
		clock:    clock,
		op:       op,
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// InitKeys generates the key pair that seals stored secrets.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

// Config returns the configuration the app was built from.
func (a *OTPApp) Config() *config.Config {
	return a.cfg
}

func (a *OTPApp) AddURI(uri string) (*account.Account, error) {
	acct, err := a.service.AddURI(uri)
	return acct, a.track(err)
}

func (a *OTPApp) AddMigration(uri string) ([]*account.Account, error) {
	added, err := a.service.AddMigration(uri)
	return added, a.track(err)
}

func (a *OTPApp) Create(issuer, accountName string, opts account.GenerateOpts) (*account.Account, error) {
	acct, err := a.service.Create(issuer, accountName, opts)
	return acct, a.track(err)
}

func (a *OTPApp) List() ([]*account.Account, error) {
	accounts, err := a.service.List()
	return accounts, a.track(err)
}

func (a *OTPApp) Find(id string) (*account.Account, error) {
	acct, err := a.service.Find(id)
	return acct, a.track(err)
}

func (a *OTPApp) Get(id string) (*account.Account, error) {
	acct, err := a.service.Get(id)
	return acct, a.track(err)
}

func (a *OTPApp) Codes() ([]*keeper.CodeEntry, error) {
	entries, err := a.service.Codes()
	return entries, a.track(err)
}

func (a *OTPApp) Code(id string) (*keeper.CodeEntry, error) {
	entry, err := a.service.Code(id)
	return entry, a.track(err)
}

func (a *OTPApp) URI(id string) (string, error) {
	uri, err := a.service.URI(id)
	return uri, a.track(err)
}

func (a *OTPApp) MigrationURI() (string, error) {
	uri, err := a.service.MigrationURI()
	return uri, a.track(err)
}

func (a *OTPApp) Rename(id, issuer, accountName string) (*account.Account, error) {
	acct, err := a.service.Rename(id, issuer, accountName)
	return acct, a.track(err)
}

func (a *OTPApp) Update(id string, p keeper.Parameters) (*account.Account, error) {
	acct, err := a.service.Update(id, p)
	return acct, a.track(err)
}

func (a *OTPApp) Remove(id string) error {
	return a.track(a.service.Remove(id))
}

// ExportFile writes a password-protected backup to path. An existing file
// is never overwritten.
func (a *OTPApp) ExportFile(path string, sealed bool) (int, error) {
	password, err := a.prompter.Passphrase("Export password: ", true)
	if err != nil {
		return 0, a.track(err)
	}
	blob, err := a.service.Export(password, sealed)
	if err != nil {
		return 0, a.track(err)
	}

	if err := writeNewFile(path, blob); err != nil {
		return 0, a.track(err)
	}

	accounts, err := a.service.List()
	return len(accounts), a.track(err)
}

// createFile opens a new file for writing and fails if path exists.
// Tests replace it to simulate write failures.
var createFile = func(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
}

// writeNewFile writes data to a file that must not exist yet. A file left
// incomplete by a failed write is removed.
func writeNewFile(path string, data []byte) error {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing export file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing export file: %w", err)
	}
	return nil
}

// ImportFile restores accounts from a backup written by ExportFile.
func (a *OTPApp) ImportFile(path string, sealed bool) ([]*account.Account, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, a.track(fmt.Errorf("reading export file: %w", err))
	}
	password, err := a.prompter.Passphrase("Export password: ", false)
	if err != nil {
		return nil, a.track(err)
	}
	added, err := a.service.Import(blob, password, sealed)
	return added, a.track(err)
}

// Close logs the operation outcome and releases the database and log file.
func (a *OTPApp) Close() error {
	args := []any{
		"operation", a.op.Name,
		"status", a.op.Status(),
		"duration", a.clock.Now().Sub(a.op.Started).Truncate(time.Millisecond),
	}
	if a.op.Err != nil {
		args = append(args, "error", a.op.Err)
	}
	a.logger.Info("operation finished", args...)

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func (a *OTPApp) track(err error) error {
	if err != nil {
		a.op.Fail(err)
	}
	return err
}

// FormatCode splits a code into two groups for readability when group is
// set: "123456" becomes "123 456".
func FormatCode(code string, group bool) string {
	if !group || len(code) < 6 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + " " + code[mid:]
}
