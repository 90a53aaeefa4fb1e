// Package options defines the option set contract shared by every
// configurable component and the helpers used to build flag names.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when the
// result is non-empty, so that Join("embedding")+"provider" yields
// "embedding.provider" and Join()+"provider" yields "provider".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" && !strings.HasSuffix(joined, ".") {
		joined += "."
	}
	return joined
}

// IOptions defines methods to implement a generic options.
type IOptions interface {
	// Validate validates all the required options.
	Validate() []error

	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// CompletableOptions is implemented by options that fill derived defaults
// after flags and config have been applied.
type CompletableOptions interface {
	IOptions
	Complete() error
}
