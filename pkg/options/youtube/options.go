// Package youtube provides transcript and metadata client options.
package youtube

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
	"github.com/kart-io/videoqa/pkg/youtube"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the YouTube clients.
type Options struct {
	BaseURL         string        `json:"base-url" mapstructure:"base-url"`
	OEmbedURL       string        `json:"oembed-url" mapstructure:"oembed-url"`
	ThumbnailURL    string        `json:"thumbnail-url" mapstructure:"thumbnail-url"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MetadataTimeout time.Duration `json:"metadata-timeout" mapstructure:"metadata-timeout"`
	UserAgent       string        `json:"user-agent" mapstructure:"user-agent"`
	ClientVersion   string        `json:"client-version" mapstructure:"client-version"`
}

// NewOptions creates new Options with the production endpoints.
func NewOptions() *Options {
	d := youtube.DefaultConfig()
	return &Options{
		BaseURL:         d.BaseURL,
		OEmbedURL:       d.OEmbedURL,
		ThumbnailURL:    d.ThumbnailURL,
		Timeout:         d.Timeout,
		MetadataTimeout: 10 * time.Second,
		UserAgent:       d.UserAgent,
		ClientVersion:   d.ClientVersion,
	}
}

// AddFlags adds flags for YouTube options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "youtube."
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "YouTube site root.")
	fs.StringVar(&o.OEmbedURL, p+"oembed-url", o.OEmbedURL, "oEmbed endpoint.")
	fs.StringVar(&o.ThumbnailURL, p+"thumbnail-url", o.ThumbnailURL, "Fallback thumbnail pattern; %s is the video id.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Transcript request timeout.")
	fs.DurationVar(&o.MetadataTimeout, p+"metadata-timeout", o.MetadataTimeout, "Metadata request timeout.")
	fs.StringVar(&o.UserAgent, p+"user-agent", o.UserAgent, "User agent for watch page requests.")
	fs.StringVar(&o.ClientVersion, p+"client-version", o.ClientVersion, "Innertube ANDROID client version.")
}

// Validate validates the YouTube options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("youtube.base-url is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("youtube.timeout must be positive"))
	}
	if o.MetadataTimeout <= 0 {
		errs = append(errs, fmt.Errorf("youtube.metadata-timeout must be positive"))
	}
	return errs
}

// Complete completes the YouTube options.
func (o *Options) Complete() error {
	return nil
}

// TranscriptConfig builds the transcript client config.
func (o *Options) TranscriptConfig(languages []string) *youtube.Config {
	return &youtube.Config{
		BaseURL:       o.BaseURL,
		OEmbedURL:     o.OEmbedURL,
		ThumbnailURL:  o.ThumbnailURL,
		Languages:     languages,
		Timeout:       o.Timeout,
		UserAgent:     o.UserAgent,
		ClientVersion: o.ClientVersion,
	}
}

// MetadataConfig builds the metadata client config.
func (o *Options) MetadataConfig() *youtube.Config {
	cfg := o.TranscriptConfig(nil)
	cfg.Timeout = o.MetadataTimeout
	return cfg
}
