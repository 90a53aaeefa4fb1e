package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/pkg/utils/json"
)

func newTestProvider(url string) *Provider {
	return NewProviderWithConfig(&Config{BaseURL: url, EmbedModel: "e", ChatModel: "c", Timeout: time.Second, Temperature: 0.7})
}

func TestProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		_, _ = w.Write([]byte(`{"embeddings":[[1,2],[3,4]]}`))
	}))
	defer srv.Close()

	got, err := newTestProvider(srv.URL).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, got)
}

func TestProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.InDelta(t, 0.7, req.Options.Temperature, 1e-9)
		_, _ = w.Write([]byte(`{"response":"Paris","done":true}`))
	}))
	defer srv.Close()

	got, err := newTestProvider(srv.URL).Generate(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "Paris", got)
}

func TestProvider_GenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, piece := range []string{"Paris", " is", " the capital"} {
			_, _ = fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", piece)
		}
		_, _ = fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	out, errc := newTestProvider(srv.URL).GenerateStream(context.Background(), "q", "")
	var parts []string
	for s := range out {
		parts = append(parts, s)
	}
	assert.NoError(t, <-errc)
	assert.Equal(t, "Paris is the capital", strings.Join(parts, ""))
}

func TestProvider_GenerateStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"response":"Paris","done":false}`)
		_, _ = fmt.Fprintln(w, `{"error":"model crashed"}`)
	}))
	defer srv.Close()

	out, errc := newTestProvider(srv.URL).GenerateStream(context.Background(), "q", "")
	var parts []string
	for s := range out {
		parts = append(parts, s)
	}
	assert.Equal(t, []string{"Paris"}, parts)
	assert.ErrorContains(t, <-errc, "model crashed")
}

func TestProvider_GenerateStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"response":"Paris","done":false}`)
	}))
	defer srv.Close()

	out, errc := newTestProvider(srv.URL).GenerateStream(context.Background(), "q", "")
	for range out {
	}
	assert.Error(t, <-errc)
}
