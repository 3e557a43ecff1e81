package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harambee-dev/harambee/internal/accounts"
	"github.com/harambee-dev/harambee/internal/config"
	"github.com/harambee-dev/harambee/internal/importer"
	"github.com/harambee-dev/harambee/internal/journal"
	"github.com/harambee-dev/harambee/internal/loans"
	"github.com/harambee-dev/harambee/internal/logging"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/store"
)

func newImportCommand() *cobra.Command {
	var configPath string
	var format string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Record repayments from a settlement export",
		Long: "Parses a settlement CSV and records each completed payment as a\n" +
			"repayment on the loan named by its account reference. Without a file\n" +
			"argument every CSV in the import/ directory is processed and moved to\n" +
			"import/processed/ on success.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) > 0 {
				file = args[0]
			}
			return runImport(configPath, format, file)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "harambee.yaml", "path to config file")
	cmd.Flags().StringVar(&format, "format", "mpesa", "settlement file format")

	return cmd
}

func runImport(configPath, format, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	parser := importer.DefaultRegistry().Get(format)
	if parser == nil {
		return fmt.Errorf("unknown settlement format %q", format)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	dataDir := filepath.Dir(configPath)
	acc := accounts.NewService(st)
	jn := journal.NewService(st, log)
	ln := loans.NewService(st, jn, acc, cfg.Ledger, cfg.Arrears, dataDir, log)

	if file != "" {
		applied, skipped, err := importFile(ln, parser, file)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d payments recorded, %d skipped\n", filepath.Base(file), applied, skipped)
		return nil
	}

	files, err := importer.Scan(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("nothing to import")
		return nil
	}

	for _, f := range files {
		applied, skipped, err := importFile(ln, parser, f.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		if err := importer.MarkProcessed(dataDir, f.Name); err != nil {
			return err
		}
		fmt.Printf("%s: %d payments recorded, %d skipped\n", f.Name, applied, skipped)
	}
	return nil
}

// importFile records every parsed settlement row, skipping rows whose loan
// reference does not resolve. Receipts double as idempotency references, so
// re-running an already-imported file records nothing twice.
func importFile(ln *loans.Service, parser importer.Parser, path string) (applied, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := parser.Parse(f)
	if err != nil {
		return 0, 0, err
	}

	for _, row := range rows {
		if err := importRow(ln, row); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", row.Receipt, err)
			skipped++
			continue
		}
		applied++
	}
	return applied, skipped, nil
}

func importRow(ln *loans.Service, row model.SettlementRow) error {
	loan, err := ln.GetByReference(row.LoanRef)
	if err != nil {
		return fmt.Errorf("loan %q: %w", row.LoanRef, err)
	}
	_, err = ln.RecordRepayment(loans.RepaymentParams{
		LoanID:    loan.ID,
		Amount:    row.Amount,
		Method:    row.Method,
		Reference: row.Receipt,
		AsOf:      row.CompletedAt,
		Actor:     "import",
	})
	return err
}
