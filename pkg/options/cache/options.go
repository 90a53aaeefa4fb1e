// Package cache provides pipeline cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Eviction policies of the in-process cache.
const (
	PolicyUnbounded = "unbounded"
	PolicyLRU       = "lru"
)

// Options 管道缓存配置。
type Options struct {
	// Policy 进程内缓存策略（unbounded, lru）。
	Policy string `json:"policy" mapstructure:"policy"`

	// Capacity lru 策略下每个映射的最大条目数，0 表示不限。
	Capacity int `json:"capacity" mapstructure:"capacity"`

	// TTL lru 策略下条目的过期时间，0 表示不过期。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// Redis 是否启用 Redis 二级缓存（字幕与向量），连接参数见 redis 配置。
	Redis bool `json:"redis" mapstructure:"redis"`

	// KeyPrefix Redis 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// TranscriptTTL 字幕在 Redis 中的过期时间。
	TranscriptTTL time.Duration `json:"transcript-ttl" mapstructure:"transcript-ttl"`

	// EmbeddingCache 是否在 Redis 中缓存向量。
	EmbeddingCache bool `json:"embedding-cache" mapstructure:"embedding-cache"`

	// EmbeddingTTL 向量在 Redis 中的过期时间。
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Policy:         PolicyUnbounded,
		KeyPrefix:      "videoqa:",
		TranscriptTTL:  24 * time.Hour,
		EmbeddingCache: true,
		EmbeddingTTL:   7 * 24 * time.Hour,
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.StringVar(&o.Policy, p+"policy", o.Policy, "In-process cache policy (unbounded, lru).")
	fs.IntVar(&o.Capacity, p+"capacity", o.Capacity, "Maximum entries per mapping under the lru policy.")
	fs.DurationVar(&o.TTL, p+"ttl", o.TTL, "Entry lifetime under the lru policy.")
	fs.BoolVar(&o.Redis, p+"redis", o.Redis, "Enable the redis second-level cache.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Redis cache key prefix.")
	fs.DurationVar(&o.TranscriptTTL, p+"transcript-ttl", o.TranscriptTTL, "Lifetime of cached transcripts in redis.")
	fs.BoolVar(&o.EmbeddingCache, p+"embedding-cache", o.EmbeddingCache, "Cache embeddings in redis.")
	fs.DurationVar(&o.EmbeddingTTL, p+"embedding-ttl", o.EmbeddingTTL, "Lifetime of cached embeddings in redis.")
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Policy {
	case PolicyUnbounded:
	case PolicyLRU:
		if o.Capacity <= 0 && o.TTL <= 0 {
			errs = append(errs, fmt.Errorf("lru policy requires capacity or ttl"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache policy %q", o.Policy))
	}
	if o.Capacity < 0 {
		errs = append(errs, fmt.Errorf("capacity must not be negative"))
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "videoqa:"
	}
	return nil
}
