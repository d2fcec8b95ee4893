// Package index provides vector index backend options.
package index

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMilvus = "milvus"
)

// Options selects and configures the vector index backend.
type Options struct {
	// Backend is one of file, sqlite, milvus.
	Backend string `json:"backend" mapstructure:"backend"`

	// Path is the directory holding the file snapshot.
	Path string `json:"path" mapstructure:"path"`

	// Watch enables detection of external removal of the file snapshot.
	Watch bool `json:"watch" mapstructure:"watch"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend: BackendFile,
		Path:    "_output/index",
		Watch:   true,
	}
}

// AddFlags adds flags for index options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Backend, p+"index.backend", o.Backend, "Vector index backend (file, sqlite, milvus).")
	fs.StringVar(&o.Path, p+"index.path", o.Path, "Directory of the file index snapshot.")
	fs.BoolVar(&o.Watch, p+"index.watch", o.Watch, "Watch the file snapshot for external deletion.")
}

// Validate validates the index options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendFile:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("index.path is required for the file backend"))
		}
	case BackendSQLite, BackendMilvus:
	default:
		errs = append(errs, fmt.Errorf("index.backend must be one of file, sqlite, milvus, got %q", o.Backend))
	}
	return errs
}
