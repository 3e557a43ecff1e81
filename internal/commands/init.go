package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harambee-dev/harambee/internal/accounts"
	"github.com/harambee-dev/harambee/internal/config"
	"github.com/harambee-dev/harambee/internal/store"
)

func newInitCommand() *cobra.Command {
	var name string
	var currency string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Harambee data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(absDir, name, currency)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "society name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&currency, "currency", "KES", "ledger currency code")

	return cmd
}

func runInit(dir, name, currency string) error {
	dirs := []string{
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfg := config.Default(name)
	cfg.Sacco.Currency = currency
	cfg.Database.Path = filepath.Join(dir, "harambee.db")
	if err := config.Save(filepath.Join(dir, "harambee.yaml"), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer st.Close()

	if err := accounts.NewService(st).SeedDefaultChart(); err != nil {
		return fmt.Errorf("seeding chart of accounts: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "import", ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	fmt.Printf("Initialized Harambee data directory at %s\n", dir)
	return nil
}
