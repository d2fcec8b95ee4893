// Package app defines the contract between a command's options and the
// application runner in pkg/infra/app.
package app

import "github.com/kart-io/docqa/pkg/app/cliflag"

// CliOptions is the interface for CLI options.
// Any options struct implementing this interface can be used with App.
type CliOptions interface {
	// Flags returns the options' flags grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete completes the options with defaults.
	Complete() error
	// Validate validates the options.
	Validate() error
}
