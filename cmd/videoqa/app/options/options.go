// Package options contains flags and options for initializing the video QA server.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	videoqa "github.com/kart-io/videoqa/internal/videoqa"
	"github.com/kart-io/videoqa/pkg/infra/app"
	authopts "github.com/kart-io/videoqa/pkg/options/auth"
	cacheopts "github.com/kart-io/videoqa/pkg/options/cache"
	llmopts "github.com/kart-io/videoqa/pkg/options/llm"
	logopts "github.com/kart-io/videoqa/pkg/options/logger"
	milvusopts "github.com/kart-io/videoqa/pkg/options/milvus"
	poolopts "github.com/kart-io/videoqa/pkg/options/pool"
	pgopts "github.com/kart-io/videoqa/pkg/options/postgres"
	ratelimitopts "github.com/kart-io/videoqa/pkg/options/ratelimit"
	redisopts "github.com/kart-io/videoqa/pkg/options/redis"
	httpopts "github.com/kart-io/videoqa/pkg/options/server/http"
	tracingopts "github.com/kart-io/videoqa/pkg/options/tracing"
	videoqaopts "github.com/kart-io/videoqa/pkg/options/videoqa"
	youtubeopts "github.com/kart-io/videoqa/pkg/options/youtube"
)

var _ app.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// VideoQAOptions contains pipeline configuration.
	VideoQAOptions *videoqaopts.Options `json:"videoqa" mapstructure:"videoqa"`

	// CacheOptions contains cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// RedisOptions contains the Redis connection used by the caches.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// MilvusOptions contains Milvus configuration for the milvus backend.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// PostgresOptions contains PostgreSQL configuration for the pgvector backend.
	PostgresOptions *pgopts.Options `json:"postgres" mapstructure:"postgres"`

	// PoolOptions contains worker pool configuration.
	PoolOptions *poolopts.Options `json:"pool" mapstructure:"pool"`

	// AuthOptions contains API key configuration.
	AuthOptions *authopts.Options `json:"auth" mapstructure:"auth"`

	// RateLimitOptions contains rate limit configuration.
	RateLimitOptions *ratelimitopts.Options `json:"ratelimit" mapstructure:"ratelimit"`

	// YouTubeOptions contains YouTube client configuration.
	YouTubeOptions *youtubeopts.Options `json:"youtube" mapstructure:"youtube"`

	// TracingOptions contains OpenTelemetry tracing configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		VideoQAOptions:   videoqaopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		PostgresOptions:  pgopts.NewOptions(),
		PoolOptions:      poolopts.NewOptions(),
		AuthOptions:      authopts.NewOptions(),
		RateLimitOptions: ratelimitopts.NewOptions(),
		YouTubeOptions:   youtubeopts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		ShutdownTimeout:  30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat")
	o.VideoQAOptions.AddFlags(fss.FlagSet("videoqa"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.PostgresOptions.AddFlags(fss.FlagSet("postgres"))
	o.PoolOptions.AddFlags(fss.FlagSet("pool"))
	o.AuthOptions.AddFlags(fss.FlagSet("auth"))
	o.RateLimitOptions.AddFlags(fss.FlagSet("ratelimit"))
	o.YouTubeOptions.AddFlags(fss.FlagSet("youtube"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	completers := []struct {
		name string
		fn   func() error
	}{
		{"http", o.HTTPOptions.Complete},
		{"log", o.LogOptions.Complete},
		{"embedding", o.EmbeddingOptions.Complete},
		{"chat", o.ChatOptions.Complete},
		{"videoqa", o.VideoQAOptions.Complete},
		{"cache", o.CacheOptions.Complete},
		{"redis", o.RedisOptions.Complete},
		{"milvus", o.MilvusOptions.Complete},
		{"postgres", o.PostgresOptions.Complete},
		{"pool", o.PoolOptions.Complete},
		{"auth", o.AuthOptions.Complete},
		{"ratelimit", o.RateLimitOptions.Complete},
		{"youtube", o.YouTubeOptions.Complete},
		{"tracing", o.TracingOptions.Complete},
	}
	for _, c := range completers {
		if err := c.fn(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid. Store
// connections are only checked when the selected backend or cache uses them.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, prefixed("embedding", o.EmbeddingOptions.Validate())...)
	errs = append(errs, prefixed("chat", o.ChatOptions.Validate())...)
	errs = append(errs, o.VideoQAOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.PoolOptions.Validate()...)
	errs = append(errs, o.AuthOptions.Validate()...)
	errs = append(errs, o.RateLimitOptions.Validate()...)
	errs = append(errs, o.YouTubeOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)

	if o.CacheOptions.Redis || o.CacheOptions.EmbeddingCache {
		errs = append(errs, o.RedisOptions.Validate()...)
	}
	switch o.VideoQAOptions.IndexBackend {
	case videoqaopts.BackendMilvus:
		errs = append(errs, o.MilvusOptions.Validate()...)
	case videoqaopts.BackendPGVector:
		errs = append(errs, o.PostgresOptions.Validate()...)
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

func prefixed(prefix string, errs []error) []error {
	for i, err := range errs {
		errs[i] = fmt.Errorf("%s: %w", prefix, err)
	}
	return errs
}

// Config builds a videoqa.Config based on ServerOptions.
func (o *ServerOptions) Config() (*videoqa.Config, error) {
	return &videoqa.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		VideoQAOptions:   o.VideoQAOptions,
		CacheOptions:     o.CacheOptions,
		RedisOptions:     o.RedisOptions,
		MilvusOptions:    o.MilvusOptions,
		PostgresOptions:  o.PostgresOptions,
		PoolOptions:      o.PoolOptions,
		AuthOptions:      o.AuthOptions,
		RateLimitOptions: o.RateLimitOptions,
		YouTubeOptions:   o.YouTubeOptions,
		TracingOptions:   o.TracingOptions,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}
