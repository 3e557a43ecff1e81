package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level harambee.yaml configuration.
type Config struct {
	Sacco    SaccoConfig    `yaml:"sacco"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Arrears  ArrearsConfig  `yaml:"arrears"`
	LogLevel string         `yaml:"log_level"`
}

// SaccoConfig identifies the society operating the ledger.
type SaccoConfig struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig controls the HTTP boundary.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LedgerConfig maps engine posting categories to chart-of-accounts codes.
type LedgerConfig struct {
	Cash            int `yaml:"cash"`
	Bank            int `yaml:"bank"`
	MpesaClearing   int `yaml:"mpesa_clearing"`
	LoansReceivable int `yaml:"loans_receivable"`
	InterestIncome  int `yaml:"interest_income"`
	PenaltyIncome   int `yaml:"penalty_income"`
	InsuranceIncome int `yaml:"insurance_income"`
	FeeIncome       int `yaml:"fee_income"`
}

// ArrearsConfig controls the overdue sweep.
type ArrearsConfig struct {
	// DefaultAfterDays flags a loan as defaulted once an instalment is
	// overdue this long. 0 disables automatic default classification.
	DefaultAfterDays int `yaml:"default_after_days"`
	// LatePenaltyRate is charged once on an instalment's unpaid balance
	// when the sweep flips it to overdue. 0 disables penalties.
	LatePenaltyRate float64 `yaml:"late_penalty_rate"`
}

// Load reads a harambee.yaml file from disk, then applies .env and
// environment overrides (HARAMBEE_DB, HARAMBEE_ADDR, HARAMBEE_LOG_LEVEL).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// .env is optional; missing file is not an error.
	_ = godotenv.Load()
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HARAMBEE_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HARAMBEE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("HARAMBEE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new deployment.
// Ledger codes follow the default chart of accounts.
func Default(saccoName string) *Config {
	return &Config{
		Sacco: SaccoConfig{
			Name:     saccoName,
			Currency: "KES",
		},
		Database: DatabaseConfig{
			Path: "harambee.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Ledger: LedgerConfig{
			Cash:            1010,
			Bank:            1020,
			MpesaClearing:   1030,
			LoansReceivable: 1210,
			InterestIncome:  4010,
			PenaltyIncome:   4020,
			InsuranceIncome: 4030,
			FeeIncome:       4040,
		},
		Arrears: ArrearsConfig{
			DefaultAfterDays: 90,
			LatePenaltyRate:  0.05,
		},
		LogLevel: "info",
	}
}

// ReceivingAccountCode maps a payment/disbursement method to the ledger
// account that holds the money movement.
func (l LedgerConfig) ReceivingAccountCode(method string) int {
	switch method {
	case "cash":
		return l.Cash
	case "mpesa":
		return l.MpesaClearing
	default:
		return l.Bank
	}
}
