// Package milvusopts provides options for Milvus client configuration.
package milvusopts

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

var collectionPrefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

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

	// CollectionPrefix names the per-video collections: {prefix}_{video id}.
	CollectionPrefix string `json:"collection-prefix" mapstructure:"collection-prefix"`

	// Dim is the embedding dimension of the vector field.
	Dim int `json:"dim" mapstructure:"dim"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:          "localhost:19530",
		Database:         "default",
		Timeout:          30 * time.Second,
		CollectionPrefix: "videoqa",
		Dim:              384, // all-MiniLM-L6-v2
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus server address (host:port).")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus username for authentication.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password for authentication.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Connection and operation timeout.")
	fs.StringVar(&o.CollectionPrefix, p+"collection-prefix", o.CollectionPrefix, "Prefix of the per-video collections.")
	fs.IntVar(&o.Dim, p+"dim", o.Dim, "Embedding vector dimension.")
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
	if !collectionPrefixPattern.MatchString(o.CollectionPrefix) {
		errs = append(errs, fmt.Errorf("milvus collection-prefix %q is not a valid collection name", o.CollectionPrefix))
	}
	if o.Dim <= 0 {
		errs = append(errs, fmt.Errorf("milvus dim must be positive"))
	}
	return errs
}

// Complete completes the options.
func (o *Options) Complete() error {
	return nil
}
