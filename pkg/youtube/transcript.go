package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/utils/httpclient"
)

const providerName = "youtube"

var (
	apiKeyPattern = regexp.MustCompile(`"INNERTUBE_API_KEY":\s*"([a-zA-Z0-9_-]+)"`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
)

// Segment is one timed caption line.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript is a fetched caption track.
type Transcript struct {
	VideoID      string    `json:"video_id"`
	Language     string    `json:"language"`
	LanguageCode string    `json:"language_code"`
	Generated    bool      `json:"generated"`
	Segments     []Segment `json:"segments"`
}

// Text joins every segment with a single space.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// TranscriptClient fetches caption tracks.
type TranscriptClient struct {
	cfg    *Config
	client *httpclient.Client
}

// NewTranscriptClient creates a transcript client. A nil cfg uses DefaultConfig.
func NewTranscriptClient(cfg *Config) *TranscriptClient {
	cfg = cfg.complete()
	return &TranscriptClient{
		cfg:    cfg,
		client: httpclient.NewClient(cfg.Timeout, 0),
	}
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
}

func (c captionTrack) displayName() string {
	if c.Name.SimpleText != "" {
		return c.Name.SimpleText
	}
	if len(c.Name.Runs) > 0 {
		return c.Name.Runs[0].Text
	}
	return c.LanguageCode
}

func (c captionTrack) generated() bool {
	return c.Kind == "asr"
}

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		Renderer *struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type timedText struct {
	Texts []struct {
		Start    float64 `xml:"start,attr"`
		Duration float64 `xml:"dur,attr"`
		Body     string  `xml:",chardata"`
	} `xml:"text"`
}

// Fetch returns the preferred caption track for videoID.
//
// Errors are ErrTranscriptsDisabled when the video has no captions,
// ErrNoTranscriptFound when none of the configured languages is available,
// and ErrTranscriptTransport (or ErrUpstreamTimeout) for everything else.
func (c *TranscriptClient) Fetch(ctx context.Context, videoID string) (*Transcript, error) {
	apiKey, err := c.fetchAPIKey(ctx, videoID)
	if err != nil {
		return nil, err
	}

	tracks, err := c.fetchCaptionTracks(ctx, videoID, apiKey)
	if err != nil {
		return nil, err
	}

	track, ok := selectTrack(tracks, c.cfg.Languages)
	if !ok {
		return nil, errors.ErrNoTranscriptFound.WithCause(
			fmt.Errorf("no caption track for languages %v", c.cfg.Languages))
	}

	segments, err := c.fetchSegments(ctx, track.BaseURL)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, errors.ErrNoTranscriptFound.WithCause(fmt.Errorf("caption track for %s is empty", track.LanguageCode))
	}

	logger.Debugw("transcript fetched",
		"video_id", videoID,
		"language", track.LanguageCode,
		"generated", track.generated(),
		"segments", len(segments),
	)

	return &Transcript{
		VideoID:      videoID,
		Language:     track.displayName(),
		LanguageCode: track.LanguageCode,
		Generated:    track.generated(),
		Segments:     segments,
	}, nil
}

func (c *TranscriptClient) fetchAPIKey(ctx context.Context, videoID string) (string, error) {
	watchURL := fmt.Sprintf("%s/watch?v=%s", c.cfg.BaseURL, url.QueryEscape(videoID))
	page, err := c.client.Get(ctx, watchURL, map[string]string{
		"Accept-Language": "en-US",
		"User-Agent":      c.cfg.UserAgent,
	})
	if err != nil {
		return "", errors.Transport(errors.ErrTranscriptTransport, providerName, err)
	}

	body := html.UnescapeString(string(page))
	if strings.Contains(body, `class="g-recaptcha"`) {
		return "", errors.ErrTranscriptTransport.WithMessage("Transcript provider request failed: youtube is blocking requests")
	}
	m := apiKeyPattern.FindStringSubmatch(body)
	if m == nil {
		return "", errors.ErrTranscriptTransport.WithMessage("Transcript provider request failed: player api key not found")
	}
	return m[1], nil
}

func (c *TranscriptClient) fetchCaptionTracks(ctx context.Context, videoID, apiKey string) ([]captionTrack, error) {
	playerURL := fmt.Sprintf("%s/youtubei/v1/player?key=%s", c.cfg.BaseURL, url.QueryEscape(apiKey))
	req := map[string]interface{}{
		"context": map[string]interface{}{
			"client": map[string]string{
				"clientName":    "ANDROID",
				"clientVersion": c.cfg.ClientVersion,
			},
		},
		"videoId": videoID,
	}

	var resp playerResponse
	if err := c.client.PostJSON(ctx, playerURL, nil, req, &resp); err != nil {
		return nil, errors.Transport(errors.ErrTranscriptTransport, providerName, err)
	}

	if status := resp.PlayabilityStatus.Status; status != "" && status != "OK" {
		reason := resp.PlayabilityStatus.Reason
		if reason == "" {
			reason = status
		}
		return nil, errors.ErrTranscriptTransport.WithMessagef("Transcript provider request failed: video is not playable: %s", reason)
	}

	if resp.Captions == nil || resp.Captions.Renderer == nil || len(resp.Captions.Renderer.CaptionTracks) == 0 {
		return nil, errors.ErrTranscriptsDisabled
	}
	return resp.Captions.Renderer.CaptionTracks, nil
}

func (c *TranscriptClient) fetchSegments(ctx context.Context, trackURL string) ([]Segment, error) {
	trackURL = strings.Replace(trackURL, "&fmt=srv3", "", 1)
	if strings.HasPrefix(trackURL, "/") {
		trackURL = c.cfg.BaseURL + trackURL
	}

	raw, err := c.client.Get(ctx, trackURL, nil)
	if err != nil {
		return nil, errors.Transport(errors.ErrTranscriptTransport, providerName, err)
	}
	return parseTimedText(raw)
}

// parseTimedText decodes the timed-text XML format. Entities are unescaped
// twice because caption bodies are themselves HTML-escaped inside the XML.
func parseTimedText(raw []byte) ([]Segment, error) {
	var doc timedText
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.ErrTranscriptTransport.WithMessage("Transcript provider request failed: malformed caption payload").WithCause(err)
	}

	segments := make([]Segment, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		text := tagPattern.ReplaceAllString(html.UnescapeString(t.Body), "")
		if text == "" {
			continue
		}
		segments = append(segments, Segment{Text: text, Start: t.Start, Duration: t.Duration})
	}
	return segments, nil
}

// selectTrack walks the language preference order and returns the first
// manually created track, falling back to a generated one for the same
// language before moving on.
func selectTrack(tracks []captionTrack, languages []string) (captionTrack, bool) {
	for _, lang := range languages {
		var generated *captionTrack
		for i := range tracks {
			if tracks[i].LanguageCode != lang {
				continue
			}
			if !tracks[i].generated() {
				return tracks[i], true
			}
			if generated == nil {
				generated = &tracks[i]
			}
		}
		if generated != nil {
			return *generated, true
		}
	}
	return captionTrack{}, false
}
