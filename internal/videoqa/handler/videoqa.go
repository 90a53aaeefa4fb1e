// Package handler provides HTTP handlers for the video QA service.
package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/kart-io/version"

	"github.com/kart-io/videoqa/internal/videoqa/biz"
	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/pkg/infra/middleware"
	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/utils/response"
	"github.com/kart-io/videoqa/pkg/utils/validator"
)

// 流式响应附带的元数据头。
const (
	HeaderVideoTitle   = "X-Video-Title"
	HeaderThumbnailURL = "X-Thumbnail-URL"
)

// metricsNamespace Prometheus 指标前缀。
const metricsNamespace = "videoqa"

// VideoQAHandler handles video QA HTTP requests.
type VideoQAHandler struct {
	service biz.Service
	metrics *metrics.Metrics
	version string
}

// NewVideoQAHandler creates a new VideoQAHandler. A nil m uses the process
// wide metrics.
func NewVideoQAHandler(service biz.Service, m *metrics.Metrics) *VideoQAHandler {
	if m == nil {
		m = metrics.Default()
	}
	return &VideoQAHandler{service: service, metrics: m, version: version.Get().GitVersion}
}

// ChatRequest represents a chat request.
type ChatRequest struct {
	VideoURL string `json:"video_url" binding:"required_without=YouTubeURL"`
	// YouTubeURL 兼容旧字段名，仅在 video_url 为空时使用。
	YouTubeURL string `json:"youtube_url"`
	Question   string `json:"question" binding:"notblank"`
}

// Reference returns the video link, preferring video_url.
func (r *ChatRequest) Reference() string {
	if r.VideoURL != "" {
		return r.VideoURL
	}
	return r.YouTubeURL
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// WelcomeResponse is served at the root path.
type WelcomeResponse struct {
	Message string `json:"message"`
}

// Welcome greets clients probing the root path.
func (h *VideoQAHandler) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, WelcomeResponse{Message: "Welcome to the YouTube AI Chatbot API"})
}

// Health reports liveness.
func (h *VideoQAHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "API is up and running",
		Version: h.version,
	})
}

// Chat answers a question about a video.
func (h *VideoQAHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}

	answer, err := h.service.Ask(c.Request.Context(), req.Reference(), req.Question)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// ChatStream answers a question as a plain-text token stream. Errors raised
// before the first byte are written as JSON; later failures arrive as an
// in-band error token.
func (h *VideoQAHandler) ChatStream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}

	resp, err := h.service.AskStream(c.Request.Context(), req.Reference(), req.Question)
	if err != nil {
		writeError(c, err)
		return
	}

	if resp.Title != nil {
		c.Header(HeaderVideoTitle, url.QueryEscape(*resp.Title))
	}
	if resp.ThumbnailURL != nil {
		c.Header(HeaderThumbnailURL, *resp.ThumbnailURL)
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for tok := range resp.Tokens {
		if _, err := c.Writer.WriteString(tok.Text); err != nil {
			logger.Debugw("stream client gone",
				"request_id", middleware.GetRequestID(c),
				"error", err,
			)
			// 排空剩余 token，让生成协程退出
			for range resp.Tokens {
			}
			return
		}
		c.Writer.Flush()
	}
}

// Stats returns cache and pipeline statistics.
func (h *VideoQAHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats())
}

// Metrics exposes pipeline counters in Prometheus text format.
func (h *VideoQAHandler) Metrics(c *gin.Context) {
	stats := h.service.Stats()
	body := h.metrics.Export(metricsNamespace, "", cacheSamples(stats.Cache)...)
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(body))
}

func cacheSamples(s biz.CacheStats) []metrics.Sample {
	out := make([]metrics.Sample, 0, 10)
	for _, m := range []struct {
		name  string
		stats biz.MappingStats
	}{
		{"transcripts", s.Transcripts},
		{"indexes", s.Indexes},
	} {
		prefix := "cache_" + m.name
		out = append(out,
			metrics.Sample{Name: prefix + "_entries", Help: "Cached " + m.name + ".", Type: "gauge", Value: float64(m.stats.Entries)},
			metrics.Sample{Name: prefix + "_hits_total", Help: "Cache hits for " + m.name + ".", Type: "counter", Value: float64(m.stats.Hits)},
			metrics.Sample{Name: prefix + "_misses_total", Help: "Cache misses for " + m.name + ".", Type: "counter", Value: float64(m.stats.Misses)},
			metrics.Sample{Name: prefix + "_computes_total", Help: "Computations of " + m.name + ".", Type: "counter", Value: float64(m.stats.Computes)},
			metrics.Sample{Name: prefix + "_evictions_total", Help: "Evicted " + m.name + ".", Type: "counter", Value: float64(m.stats.Evictions)},
		)
	}
	return out
}

// bindError maps a binding failure to the errno of the offending field.
func bindError(err error) error {
	verrs, ok := validator.AsValidationErrors(err)
	if !ok {
		return errors.ErrInvalidParam.WithCause(err)
	}
	switch {
	case verrs.HasField("video_url"):
		return errors.ErrVideoInvalidReference.WithCause(verrs)
	case verrs.HasField("question"):
		return errors.ErrEmptyQuestion.WithCause(verrs)
	default:
		return errors.ErrInvalidParam.WithCause(verrs)
	}
}

func writeError(c *gin.Context, err error) {
	e := errors.FromError(err)
	if e.HTTPStatus() >= http.StatusInternalServerError {
		logger.Errorw("request failed",
			"request_id", middleware.GetRequestID(c),
			"path", c.Request.URL.Path,
			"code", e.Code,
			"error", err,
		)
	}
	resp := response.Err(e).WithRequestID(middleware.GetRequestID(c))
	c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
}
