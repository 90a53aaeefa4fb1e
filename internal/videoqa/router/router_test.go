package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kart-io/videoqa/internal/videoqa/biz"
	"github.com/kart-io/videoqa/internal/videoqa/handler"
	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/pkg/infra/middleware"
	authopts "github.com/kart-io/videoqa/pkg/options/auth"
	ratelimitopts "github.com/kart-io/videoqa/pkg/options/ratelimit"
	"github.com/kart-io/videoqa/pkg/utils/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.BindGin(validator.Global())
}

type okService struct{}

func (okService) Ask(context.Context, string, string) (*biz.Answer, error) {
	return &biz.Answer{Answer: "ok"}, nil
}

func (okService) AskStream(context.Context, string, string) (*biz.StreamResponse, error) {
	ch := make(chan biz.Token)
	close(ch)
	return &biz.StreamResponse{Tokens: ch}, nil
}

func (okService) Stats() *biz.Stats { return &biz.Stats{} }

func newRouter(cfg Config) *gin.Engine {
	r := gin.New()
	Register(r, handler.NewVideoQAHandler(okService{}, metrics.New()), cfg)
	return r
}

func chat(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"video_url":"https://youtu.be/abc","question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_Auth(t *testing.T) {
	auth := authopts.NewOptions()
	auth.APIKey = "secret"
	r := newRouter(Config{Auth: auth})

	assert.Equal(t, http.StatusUnauthorized, chat(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, chat(r, "wrong").Code)
	assert.Equal(t, http.StatusOK, chat(r, "secret").Code)

	for _, path := range []string{"/", "/health", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_RateLimitOnlyOnChat(t *testing.T) {
	opts := ratelimitopts.NewOptions()
	opts.Limit = 2
	opts.Window = time.Hour
	r := newRouter(Config{Limiter: middleware.NewMemoryRateLimiter(opts)})

	assert.Equal(t, http.StatusOK, chat(r, "").Code)
	assert.Equal(t, http.StatusOK, chat(r, "").Code)

	w := chat(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRegister_RecoversAndTagsRequests(t *testing.T) {
	r := newRouter(Config{})
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}
