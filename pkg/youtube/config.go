// Package youtube fetches transcripts and display metadata for YouTube videos.
//
// Transcripts are resolved through the public watch page and the innertube
// player endpoint: the page yields an API key, the player response lists the
// caption tracks, and the chosen track's timed-text XML holds the segments.
// Metadata comes from the oEmbed endpoint.
package youtube

import "time"

// DefaultLanguages is the caption language preference order.
var DefaultLanguages = []string{"en", "hi", "te", "ta", "ml", "kn", "bn", "mr", "gu", "pa"}

// Config configures the transcript and metadata clients.
type Config struct {
	// BaseURL is the site root used for the watch page and innertube calls.
	BaseURL string
	// OEmbedURL is the oEmbed endpoint.
	OEmbedURL string
	// ThumbnailURL is the fallback thumbnail pattern; %s is the video id.
	ThumbnailURL string
	// Languages is the caption language preference order.
	Languages []string
	// Timeout bounds every outbound request.
	Timeout time.Duration
	// UserAgent is sent with watch page requests.
	UserAgent string
	// ClientVersion is the innertube ANDROID client version.
	ClientVersion string
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://www.youtube.com",
		OEmbedURL:     "https://www.youtube.com/oembed",
		ThumbnailURL:  "https://i.ytimg.com/vi/%s/hqdefault.jpg",
		Languages:     append([]string(nil), DefaultLanguages...),
		Timeout:       120 * time.Second,
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		ClientVersion: "20.10.38",
	}
}

func (c *Config) complete() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = d.BaseURL
	}
	if out.OEmbedURL == "" {
		out.OEmbedURL = d.OEmbedURL
	}
	if out.ThumbnailURL == "" {
		out.ThumbnailURL = d.ThumbnailURL
	}
	if len(out.Languages) == 0 {
		out.Languages = d.Languages
	}
	if out.Timeout <= 0 {
		out.Timeout = d.Timeout
	}
	if out.UserAgent == "" {
		out.UserAgent = d.UserAgent
	}
	if out.ClientVersion == "" {
		out.ClientVersion = d.ClientVersion
	}
	return &out
}
