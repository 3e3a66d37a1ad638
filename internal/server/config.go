package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address     string `hcl:"address,optional"`
	Port        int    `hcl:"port,optional"`
	LogLevel    string `hcl:"log_level,optional"`
	DatabaseURL string `hcl:"database_url,optional"` // Postgres DSN; empty runs in-memory
	RakeAccount string `hcl:"rake_account,optional"`
}

// TableConfig defines one table opened at startup
type TableConfig struct {
	Name       string      `hcl:"name,label"`
	MaxSeats   int         `hcl:"max_seats,optional"`
	SmallBlind int         `hcl:"small_blind"`
	BigBlind   int         `hcl:"big_blind"`
	BuyInMin   int         `hcl:"buy_in_min,optional"`
	BuyInMax   int         `hcl:"buy_in_max,optional"`
	Timeout    string      `hcl:"action_timeout,optional"` // duration string, e.g. "15s"
	AutoStart  bool        `hcl:"auto_start,optional"`
	Rake       *RakeConfig `hcl:"rake,block"`

	actionTimeout time.Duration
}

// RakeConfig configures the house cut for a table
type RakeConfig struct {
	Percent      float64 `hcl:"percent"`
	Cap          int     `hcl:"cap,optional"`
	Threshold    int     `hcl:"threshold,optional"`
	NoFlopNoDrop bool    `hcl:"no_flop_no_drop,optional"`
}

// ActionTimeout returns the parsed per-action deadline
func (t *TableConfig) ActionTimeout() time.Duration {
	return t.actionTimeout
}

// DefaultConfig returns the configuration used when no file is provided
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerSettings{
			Address:     "localhost",
			Port:        8080,
			LogLevel:    "info",
			RakeAccount: "house:rake",
		},
		Tables: []TableConfig{
			{
				Name:       "main",
				SmallBlind: 5,
				BigBlind:   10,
				AutoStart:  true,
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	applyDefaults(&cfg)
	for i := range cfg.Tables {
		t := &cfg.Tables[i]
		if t.SmallBlind <= 0 || t.BigBlind < t.SmallBlind {
			return nil, fmt.Errorf("table %q: invalid blinds %d/%d", t.Name, t.SmallBlind, t.BigBlind)
		}
		if t.Rake != nil && (t.Rake.Percent < 0 || t.Rake.Percent >= 1) {
			return nil, fmt.Errorf("table %q: rake percent %v out of range", t.Name, t.Rake.Percent)
		}
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.RakeAccount == "" {
		cfg.Server.RakeAccount = "house:rake"
	}

	for i := range cfg.Tables {
		t := &cfg.Tables[i]
		if t.MaxSeats == 0 {
			t.MaxSeats = 9
		}
		// Buy-in bounds default to 50 and 200 big blinds
		if t.BuyInMin == 0 {
			t.BuyInMin = t.BigBlind * 50
		}
		if t.BuyInMax == 0 {
			t.BuyInMax = t.BigBlind * 200
		}
		t.actionTimeout = 30 * time.Second
		if t.Timeout != "" {
			if d, err := time.ParseDuration(t.Timeout); err == nil && d > 0 {
				t.actionTimeout = d
			}
		}
	}
}
