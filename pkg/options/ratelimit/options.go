// Package ratelimit provides per-client rate limiting options.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the per-client token bucket.
type Options struct {
	// Enabled toggles the limiter.
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Limit is the number of requests allowed per Window.
	Limit int `json:"limit" mapstructure:"limit"`
	// Window is the refill period of Limit tokens.
	Window time.Duration `json:"window" mapstructure:"window"`
	// Burst is the bucket size. Zero uses Limit.
	Burst int `json:"burst" mapstructure:"burst"`
	// IdleTTL is how long an idle client's bucket is kept.
	IdleTTL time.Duration `json:"idle-ttl" mapstructure:"idle-ttl"`
}

// NewOptions creates new Options with defaults: 5 requests per minute.
func NewOptions() *Options {
	return &Options{
		Enabled: true,
		Limit:   5,
		Window:  time.Minute,
		IdleTTL: 10 * time.Minute,
	}
}

// AddFlags adds flags for rate limit options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "ratelimit."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Enable per-client rate limiting on the chat routes.")
	fs.IntVar(&o.Limit, p+"limit", o.Limit, "Requests allowed per window.")
	fs.DurationVar(&o.Window, p+"window", o.Window, "Rate limit window.")
	fs.IntVar(&o.Burst, p+"burst", o.Burst, "Bucket size. Zero uses the limit.")
	fs.DurationVar(&o.IdleTTL, p+"idle-ttl", o.IdleTTL, "How long an idle client's bucket is kept.")
}

// Validate validates the rate limit options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.Limit <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.limit must be positive"))
	}
	if o.Window <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.window must be positive"))
	}
	if o.Burst < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.burst must not be negative"))
	}
	return errs
}

// Complete completes the rate limit options.
func (o *Options) Complete() error {
	if o.Burst == 0 {
		o.Burst = o.Limit
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = 10 * time.Minute
	}
	return nil
}
