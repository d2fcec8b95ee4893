// Package sqlite provides options for the SQLite index backend.
package sqlite

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains SQLite configuration.
type Options struct {
	// Path is the database file path.
	Path string `json:"path" mapstructure:"path"`

	// MaxOpenConnections caps the connection pool.
	MaxOpenConnections int `json:"max-open-connections" mapstructure:"max-open-connections"`

	// LogLevel is the gorm log level (silent, error, warn, info).
	LogLevel string `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Path:               "_output/index/docqa.db",
		MaxOpenConnections: 4,
		LogLevel:           "silent",
	}
}

// AddFlags adds flags for SQLite options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Path, p+"sqlite.path", o.Path, "SQLite database file.")
	fs.IntVar(&o.MaxOpenConnections, p+"sqlite.max-open-connections", o.MaxOpenConnections, "Maximum open connections.")
	fs.StringVar(&o.LogLevel, p+"sqlite.log-level", o.LogLevel, "GORM log level (silent, error, warn, info).")
}

// Validate validates the SQLite options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("sqlite.path is required"))
	}
	if o.MaxOpenConnections <= 0 {
		errs = append(errs, fmt.Errorf("sqlite.max-open-connections must be positive"))
	}
	switch o.LogLevel {
	case "silent", "error", "warn", "info":
	default:
		errs = append(errs, fmt.Errorf("sqlite.log-level must be one of silent, error, warn, info"))
	}
	return errs
}
