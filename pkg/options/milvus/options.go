// Package milvusopts provides options for Milvus client configuration.
package milvusopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Milvus client configuration.
type Options struct {
	// Address is the Milvus server address (host:port).
	Address string `json:"address" mapstructure:"address"`

	// Database is the database name to use.
	Database string `json:"database" mapstructure:"database"`

	// Username for authentication.
	Username string `json:"username" mapstructure:"username"`

	// Password for authentication.
	Password string `json:"-" mapstructure:"password"`

	// Timeout for connection and operations.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Alias is the stable collection alias queries go through.
	Alias string `json:"alias" mapstructure:"alias"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:  "localhost:19530",
		Database: "default",
		Timeout:  30 * time.Second,
		Alias:    "docqa",
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Address, p+"milvus.address", o.Address, "Milvus server address (host:port).")
	fs.StringVar(&o.Database, p+"milvus.database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, p+"milvus.username", o.Username, "Milvus username for authentication.")
	fs.StringVar(&o.Password, p+"milvus.password", o.Password, "Milvus password for authentication.")
	fs.DurationVar(&o.Timeout, p+"milvus.timeout", o.Timeout, "Connection and operation timeout.")
	fs.StringVar(&o.Alias, p+"milvus.alias", o.Alias, "Collection alias that always points at the live index.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus timeout must be positive"))
	}
	if o.Alias == "" {
		errs = append(errs, fmt.Errorf("milvus alias is required"))
	}
	return errs
}
