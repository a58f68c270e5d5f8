package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"otpkeep/internal/account"
	"otpkeep/internal/app"
	"otpkeep/internal/config"
	"otpkeep/internal/keeper"
	"otpkeep/internal/otp"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an OTPApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AddURI", "Codes").
func newApp(operation string) (*app.OTPApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewOTPApp(cfg, operation, app.Options{
		Verbose:  verbose,
		Prompter: app.TerminalPrompter{},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

func printAccounts(accounts []*account.Account) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, acct := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s/%d/%ds\n", acct.ID, acct.Label(), acct.Algorithm, acct.Digits, acct.Period)
	}
	w.Flush()
}

var rootCmd = &cobra.Command{
	Use:          "otpkeep",
	Short:        "Time-based one-time password keeper",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Println("Run `otpkeep keys init` to create the key pair that seals secrets.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Host ID:   %s\n", cfg.HostID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Key Store: %s %s (sealed=%v)\n", cfg.KeyStore.Type, cfg.KeyStore.Root, cfg.KeyStore.Sealed)
		fmt.Printf("Keys:      %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the key pair that seals stored secrets",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		passphrase, err := app.TerminalPrompter{}.Passphrase("New passphrase: ", true)
		if err != nil {
			return err
		}
		if err := app.InitKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add URI",
	Short: "Add an account from an otpauth:// URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddURI")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.AddURI(args[0])
		if err != nil {
			return fmt.Errorf("adding account: %w", err)
		}
		fmt.Printf("Added %s (%s)\n", acct.Label(), acct.ID)
		return nil
	},
}

// new command
var newCmd = &cobra.Command{
	Use:   "new ISSUER NAME",
	Short: "Create an account with a random secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		alg, _ := cmd.Flags().GetString("algorithm")
		digits, _ := cmd.Flags().GetInt("digits")
		period, _ := cmd.Flags().GetInt("period")

		a, err := newApp("Create")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.Create(args[0], args[1], account.GenerateOpts{
			Algorithm: otp.ParseAlgorithm(alg),
			Digits:    digits,
			Period:    period,
		})
		if err != nil {
			return fmt.Errorf("creating account: %w", err)
		}
		fmt.Printf("Created %s (%s)\n", acct.Label(), acct.ID)
		fmt.Println(acct.URI())
		return nil
	},
}

// import-migration command
var importMigrationCmd = &cobra.Command{
	Use:   "import-migration URI",
	Short: "Import accounts from an otpauth-migration:// URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddMigration")
		if err != nil {
			return err
		}
		defer a.Close()

		added, err := a.AddMigration(args[0])
		if err != nil {
			return fmt.Errorf("importing migration: %w", err)
		}
		printAccounts(added)
		fmt.Printf("Imported %d account(s)\n", len(added))
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.List()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts.")
			return nil
		}
		printAccounts(accounts)
		return nil
	},
}

// code command
var codeCmd = &cobra.Command{
	Use:   "code [ID]",
	Short: "Show current codes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Codes")
		if err != nil {
			return err
		}
		defer a.Close()

		var entries []*keeper.CodeEntry
		if len(args) == 1 {
			entry, err := a.Code(args[0])
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		} else {
			entries, err = a.Codes()
			if err != nil {
				return err
			}
		}
		if len(entries) == 0 {
			fmt.Println("No accounts.")
			return nil
		}

		display := a.Config().Display
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			code := app.FormatCode(e.Code, display.GroupDigits)
			if display.ShowSeconds {
				fmt.Fprintf(w, "%s\t%s\t%ds\n", code, e.Account.Label(), e.Remaining)
			} else {
				fmt.Fprintf(w, "%s\t%s\n", code, e.Account.Label())
			}
		}
		return w.Flush()
	},
}

// uri command
var uriCmd = &cobra.Command{
	Use:   "uri ID",
	Short: "Print an account's otpauth:// URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("URI")
		if err != nil {
			return err
		}
		defer a.Close()

		uri, err := a.URI(args[0])
		if err != nil {
			return err
		}
		fmt.Println(uri)
		return nil
	},
}

// migration-uri command
var migrationURICmd = &cobra.Command{
	Use:   "migration-uri",
	Short: "Print all accounts as one otpauth-migration:// URI",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MigrationURI")
		if err != nil {
			return err
		}
		defer a.Close()

		uri, err := a.MigrationURI()
		if err != nil {
			return err
		}
		fmt.Println(uri)
		return nil
	},
}

// rename command
var renameCmd = &cobra.Command{
	Use:   "rename ID",
	Short: "Change an account's issuer or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Rename")
		if err != nil {
			return err
		}
		defer a.Close()

		current, err := a.Find(args[0])
		if err != nil {
			return err
		}
		issuer, name := current.Issuer, current.AccountName
		if cmd.Flags().Changed("issuer") {
			issuer, _ = cmd.Flags().GetString("issuer")
		}
		if cmd.Flags().Changed("name") {
			name, _ = cmd.Flags().GetString("name")
		}

		acct, err := a.Rename(args[0], issuer, name)
		if err != nil {
			return err
		}
		fmt.Printf("Renamed to %s\n", acct.Label())
		return nil
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change an account's secret or code parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Update")
		if err != nil {
			return err
		}
		defer a.Close()

		current, err := a.Find(args[0])
		if err != nil {
			return err
		}
		p := keeper.Parameters{
			Algorithm: current.Algorithm,
			Digits:    current.Digits,
			Period:    current.Period,
		}
		flags := cmd.Flags()
		if flags.Changed("secret") {
			p.Secret, _ = flags.GetString("secret")
		}
		if flags.Changed("algorithm") {
			alg, _ := flags.GetString("algorithm")
			p.Algorithm = otp.ParseAlgorithm(alg)
		}
		if flags.Changed("digits") {
			p.Digits, _ = flags.GetInt("digits")
		}
		if flags.Changed("period") {
			p.Period, _ = flags.GetInt("period")
		}

		acct, err := a.Update(args[0], p)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s (%s/%d/%ds)\n", acct.Label(), acct.Algorithm, acct.Digits, acct.Period)
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write a password-protected backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sealed, _ := cmd.Flags().GetBool("sealed")

		a, err := newApp("Export")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ExportFile(args[0], sealed)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Exported %d account(s) to %s\n", n, args[0])
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Restore accounts from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sealed, _ := cmd.Flags().GetBool("sealed")

		a, err := newApp("Import")
		if err != nil {
			return err
		}
		defer a.Close()

		added, err := a.ImportFile(args[0], sealed)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		printAccounts(added)
		fmt.Printf("Imported %d account(s)\n", len(added))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Also log to stderr at debug level")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	newCmd.Flags().StringP("algorithm", "a", "SHA1", "HMAC algorithm (SHA1, SHA256, SHA512)")
	newCmd.Flags().IntP("digits", "d", otp.DefaultDigits, "Code length")
	newCmd.Flags().IntP("period", "p", otp.DefaultPeriod, "Code period in seconds")

	renameCmd.Flags().String("issuer", "", "New issuer")
	renameCmd.Flags().String("name", "", "New account name")

	updateCmd.Flags().String("secret", "", "New base32 secret")
	updateCmd.Flags().StringP("algorithm", "a", "SHA1", "HMAC algorithm (SHA1, SHA256, SHA512)")
	updateCmd.Flags().IntP("digits", "d", otp.DefaultDigits, "Code length")
	updateCmd.Flags().IntP("period", "p", otp.DefaultPeriod, "Code period in seconds")

	exportCmd.Flags().Bool("sealed", false, "Encrypt with age instead of the legacy XOR container")
	importCmd.Flags().Bool("sealed", false, "Read an age-encrypted backup")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(importMigrationCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(codeCmd)
	rootCmd.AddCommand(uriCmd)
	rootCmd.AddCommand(migrationURICmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
