// Package cors provides cross-origin request options.
package cors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options defines CORS middleware options.
type Options struct {
	Enabled          bool          `json:"enabled" mapstructure:"enabled"`
	AllowOrigins     []string      `json:"allow-origins" mapstructure:"allow-origins"`
	AllowMethods     []string      `json:"allow-methods" mapstructure:"allow-methods"`
	AllowHeaders     []string      `json:"allow-headers" mapstructure:"allow-headers"`
	ExposeHeaders    []string      `json:"expose-headers" mapstructure:"expose-headers"`
	AllowCredentials bool          `json:"allow-credentials" mapstructure:"allow-credentials"`
	MaxAge           time.Duration `json:"max-age" mapstructure:"max-age"`
}

// NewOptions creates default CORS options. 默认允许任意来源。
func NewOptions() *Options {
	return &Options{
		Enabled:       true,
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Accept-Language", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
}

// AllowAll reports whether the wildcard origin is configured.
func (o *Options) AllowAll() bool {
	for _, origin := range o.AllowOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// AddFlags adds flags for CORS options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cors."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Enable CORS headers.")
	fs.StringSliceVar(&o.AllowOrigins, p+"allow-origins", o.AllowOrigins, "CORS allowed origins, '*' allows any origin.")
	fs.StringSliceVar(&o.AllowMethods, p+"allow-methods", o.AllowMethods, "CORS allowed methods.")
	fs.StringSliceVar(&o.AllowHeaders, p+"allow-headers", o.AllowHeaders, "CORS allowed headers.")
	fs.StringSliceVar(&o.ExposeHeaders, p+"expose-headers", o.ExposeHeaders, "CORS exposed headers.")
	fs.BoolVar(&o.AllowCredentials, p+"allow-credentials", o.AllowCredentials, "CORS allow credentials.")
	fs.DurationVar(&o.MaxAge, p+"max-age", o.MaxAge, "CORS preflight max age.")
}

// Validate validates the CORS options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if len(o.AllowOrigins) == 0 {
		errs = append(errs, errors.New("cors: allow-origins must not be empty"))
	}
	for _, origin := range o.AllowOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("cors: invalid origin %q, must include http:// or https://", origin))
		}
	}
	// RFC 6454: 通配来源不能与凭证同时使用
	if o.AllowAll() && o.AllowCredentials {
		errs = append(errs, errors.New("cors: wildcard origin cannot be used with allow-credentials"))
	}
	if o.MaxAge < 0 {
		errs = append(errs, errors.New("cors: max-age must not be negative"))
	}
	return errs
}

// Complete completes the CORS options with defaults.
func (o *Options) Complete() error {
	if len(o.AllowMethods) == 0 {
		o.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	return nil
}
