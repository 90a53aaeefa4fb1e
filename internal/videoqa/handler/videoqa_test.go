package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/internal/videoqa/biz"
	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/pkg/infra/middleware"
	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/utils/json"
	"github.com/kart-io/videoqa/pkg/utils/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.BindGin(validator.Global())
}

type fakeService struct {
	answer   *biz.Answer
	err      error
	tokens   []biz.Token
	stats    *biz.Stats
	lastURL  string
	lastQ    string
	askCalls int
}

func (s *fakeService) Ask(_ context.Context, reference, question string) (*biz.Answer, error) {
	s.askCalls++
	s.lastURL, s.lastQ = reference, question
	if s.err != nil {
		return nil, s.err
	}
	return s.answer, nil
}

func (s *fakeService) AskStream(_ context.Context, reference, question string) (*biz.StreamResponse, error) {
	s.lastURL, s.lastQ = reference, question
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan biz.Token, len(s.tokens))
	for _, tok := range s.tokens {
		ch <- tok
	}
	close(ch)
	title := "Capitals of Europe"
	return &biz.StreamResponse{Title: &title, Tokens: ch}, nil
}

func (s *fakeService) Stats() *biz.Stats {
	if s.stats != nil {
		return s.stats
	}
	return &biz.Stats{}
}

type errorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func newEngine(svc biz.Service) *gin.Engine {
	h := NewVideoQAHandler(svc, metrics.New())
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", h.Welcome)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics)
	r.GET("/v1/stats", h.Stats)
	r.POST("/chat", h.Chat)
	r.POST("/chat/stream", h.ChatStream)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine(&fakeService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "API is up and running", body.Message)
	assert.Equal(t, version.Get().GitVersion, body.Version)
}

func TestWelcome(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine(&fakeService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Welcome to the YouTube AI Chatbot API"}`, w.Body.String())
}

func TestChat_Success(t *testing.T) {
	title := "Capitals of Europe"
	svc := &fakeService{answer: &biz.Answer{Answer: "Paris is the capital of France.", Title: &title}}

	w := post(newEngine(svc), "/chat", `{"video_url":"https://youtu.be/abc","question":"Capital of France?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"answer":"Paris is the capital of France.","title":"Capitals of Europe","thumbnail_url":null}`, w.Body.String())
	assert.Equal(t, "https://youtu.be/abc", svc.lastURL)
	assert.Equal(t, "Capital of France?", svc.lastQ)
}

func TestChat_AcceptsLegacyURLField(t *testing.T) {
	svc := &fakeService{answer: &biz.Answer{Answer: "ok"}}

	w := post(newEngine(svc), "/chat", `{"youtube_url":"https://youtu.be/legacy","question":"q"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://youtu.be/legacy", svc.lastURL)

	w = post(newEngine(svc), "/chat", `{"video_url":"https://youtu.be/new","youtube_url":"https://youtu.be/legacy","question":"q"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://youtu.be/new", svc.lastURL)
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"invalid reference", errors.ErrVideoInvalidReference, http.StatusBadRequest, errors.ErrVideoInvalidReference.Code},
		{"disabled", errors.ErrTranscriptsDisabled, http.StatusForbidden, errors.ErrTranscriptsDisabled.Code},
		{"not found", errors.ErrNoTranscriptFound.WithCause(assert.AnError), http.StatusNotFound, errors.ErrNoTranscriptFound.Code},
		{"embedding", errors.ErrEmbedding, http.StatusBadGateway, errors.ErrEmbedding.Code},
		{"timeout", errors.ErrUpstreamTimeout, http.StatusGatewayTimeout, errors.ErrUpstreamTimeout.Code},
		{"plain", assert.AnError, http.StatusInternalServerError, errors.ErrInternal.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newEngine(&fakeService{err: tt.err}), "/chat", `{"video_url":"x","question":"q"}`)
			assert.Equal(t, tt.status, w.Code)
			e := decodeError(t, w)
			assert.Equal(t, tt.code, e.Code)
			assert.NotEmpty(t, e.RequestID)
			assert.Equal(t, w.Header().Get(middleware.HeaderXRequestID), e.RequestID)
		})
	}
}

func TestChat_BindingErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing url", `{"question":"q"}`, errors.ErrVideoInvalidReference.Code},
		{"empty url", `{"video_url":"","question":"q"}`, errors.ErrVideoInvalidReference.Code},
		{"blank question", `{"video_url":"https://youtu.be/abc","question":"   "}`, errors.ErrEmptyQuestion.Code},
		{"malformed", `{"video_url":`, errors.ErrInvalidParam.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			w := post(newEngine(svc), "/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
			assert.Zero(t, svc.askCalls)
		})
	}
}

func TestChatStream(t *testing.T) {
	svc := &fakeService{tokens: []biz.Token{{Text: "Paris "}, {Text: "is "}, {Text: "the "}, {Text: "capital "}}}

	w := post(newEngine(svc), "/chat/stream", `{"video_url":"https://youtu.be/abc","question":"q"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Paris is the capital ", w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "Capitals+of+Europe", w.Header().Get(HeaderVideoTitle))
	assert.True(t, w.Flushed)
}

func TestChatStream_InBandError(t *testing.T) {
	svc := &fakeService{tokens: []biz.Token{
		{Text: "Paris "},
		{Text: biz.ErrorTokenPrefix + "errno 2150001: Answer generation failed", Err: errors.ErrGeneration},
	}}

	w := post(newEngine(svc), "/chat/stream", `{"video_url":"https://youtu.be/abc","question":"q"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Paris \n[ERROR]: errno 2150001: Answer generation failed", w.Body.String())
}

func TestChatStream_SetupErrorIsJSON(t *testing.T) {
	w := post(newEngine(&fakeService{err: errors.ErrTranscriptsDisabled}), "/chat/stream", `{"video_url":"x","question":"q"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errors.ErrTranscriptsDisabled.Code, decodeError(t, w).Code)
}

func TestStatsAndMetrics(t *testing.T) {
	stats := &biz.Stats{Cache: biz.CacheStats{Transcripts: biz.MappingStats{Entries: 2, Hits: 5}}}
	r := newEngine(&fakeService{stats: stats})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got biz.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Cache.Transcripts.Entries)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "# TYPE videoqa_asks_total counter")
	assert.Contains(t, body, "videoqa_cache_transcripts_entries 2\n")
	assert.Contains(t, body, "videoqa_cache_transcripts_hits_total 5\n")
}
