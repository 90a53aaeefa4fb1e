// Package pool provides worker pool options.
package pool

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/infra/pool"
	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 工作池配置。
type Options struct {
	// EmbeddingCapacity 向量化池容量，限制进程内同时进行的向量化请求数。
	EmbeddingCapacity int `json:"embedding-capacity" mapstructure:"embedding-capacity"`

	// BackgroundCapacity 后台池容量。
	BackgroundCapacity int `json:"background-capacity" mapstructure:"background-capacity"`

	// Expiry 空闲 worker 回收时间。
	Expiry time.Duration `json:"expiry" mapstructure:"expiry"`
}

// NewOptions 创建默认工作池配置。
func NewOptions() *Options {
	return &Options{
		EmbeddingCapacity:  pool.EmbeddingPoolConfig().Capacity,
		BackgroundCapacity: pool.BackgroundPoolConfig().Capacity,
		Expiry:             30 * time.Second,
	}
}

// AddFlags adds flags for pool options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pool."
	fs.IntVar(&o.EmbeddingCapacity, p+"embedding-capacity", o.EmbeddingCapacity, "Maximum concurrent embedding requests across the process.")
	fs.IntVar(&o.BackgroundCapacity, p+"background-capacity", o.BackgroundCapacity, "Maximum concurrent background tasks.")
	fs.DurationVar(&o.Expiry, p+"expiry", o.Expiry, "Idle worker expiry.")
}

// Validate validates the pool options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.EmbeddingCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.embedding-capacity must be positive"))
	}
	if o.BackgroundCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.background-capacity must be positive"))
	}
	return errs
}

// Complete completes the pool options.
func (o *Options) Complete() error {
	if o.Expiry <= 0 {
		o.Expiry = 30 * time.Second
	}
	return nil
}

// EmbeddingConfig 返回向量化池配置。
func (o *Options) EmbeddingConfig() *pool.Config {
	cfg := pool.EmbeddingPoolConfig()
	cfg.Capacity = o.EmbeddingCapacity
	cfg.ExpiryDuration = o.Expiry
	return cfg
}

// BackgroundConfig 返回后台池配置。
func (o *Options) BackgroundConfig() *pool.Config {
	cfg := pool.BackgroundPoolConfig()
	cfg.Capacity = o.BackgroundCapacity
	cfg.ExpiryDuration = o.Expiry
	return cfg
}
