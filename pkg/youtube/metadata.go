package youtube

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/pkg/utils/httpclient"
	"github.com/kart-io/videoqa/pkg/utils/json"
)

// Metadata is the display information for a video. Title is nil when the
// oEmbed lookup failed.
type Metadata struct {
	Title        *string `json:"title"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

// MetadataClient looks up video metadata through oEmbed.
type MetadataClient struct {
	cfg    *Config
	client *httpclient.Client
}

// NewMetadataClient creates a metadata client. A nil cfg uses DefaultConfig.
func NewMetadataClient(cfg *Config) *MetadataClient {
	cfg = cfg.complete()
	return &MetadataClient{
		cfg:    cfg,
		client: httpclient.NewClient(cfg.Timeout, 0),
	}
}

// Fetch never fails: any lookup error degrades to a nil title and the
// default thumbnail.
func (c *MetadataClient) Fetch(ctx context.Context, videoID string) Metadata {
	fallback := c.DefaultThumbnail(videoID)

	watchURL := fmt.Sprintf("%s/watch?v=%s", c.cfg.BaseURL, videoID)
	reqURL := fmt.Sprintf("%s?url=%s&format=json", c.cfg.OEmbedURL, url.QueryEscape(watchURL))

	body, err := c.client.Get(ctx, reqURL, nil)
	if err != nil {
		logger.Debugw("oembed lookup failed", "video_id", videoID, "error", err)
		return Metadata{ThumbnailURL: &fallback}
	}

	var data struct {
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		logger.Debugw("oembed payload invalid", "video_id", videoID, "error", err)
		return Metadata{ThumbnailURL: &fallback}
	}

	md := Metadata{ThumbnailURL: &fallback}
	if data.Title != "" {
		md.Title = &data.Title
	}
	if data.ThumbnailURL != "" {
		md.ThumbnailURL = &data.ThumbnailURL
	}
	return md
}

// DefaultThumbnail returns the static thumbnail URL for videoID.
func (c *MetadataClient) DefaultThumbnail(videoID string) string {
	return fmt.Sprintf(c.cfg.ThumbnailURL, videoID)
}
