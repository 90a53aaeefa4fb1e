// Package auth provides API key options for the HTTP surface.
package auth

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options holds the bearer key required by the chat routes.
type Options struct {
	// APIKey is compared against "Authorization: Bearer <key>". Empty
	// disables the check.
	APIKey string `json:"-" mapstructure:"api-key"`

	// SkipPaths are served without a key.
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		SkipPaths: []string{"/", "/health", "/metrics"},
	}
}

// AddFlags adds flags for auth options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "auth."
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Bearer API key for the chat routes (prefer the API_KEY env var). Empty disables auth.")
	fs.StringSliceVar(&o.SkipPaths, p+"skip-paths", o.SkipPaths, "Paths served without an API key.")
}

// Validate validates the auth options.
func (o *Options) Validate() []error {
	return nil
}

// Complete falls back to the API_KEY environment variable.
func (o *Options) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("API_KEY")
	}
	return nil
}

// Enabled reports whether requests must carry a key.
func (o *Options) Enabled() bool {
	return o != nil && o.APIKey != ""
}
