package response

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/utils/json"
)

func TestErr(t *testing.T) {
	tests := []struct {
		name   string
		errno  *errors.Errno
		status int
		msg    string
	}{
		{"invalid reference", errors.ErrVideoInvalidReference, http.StatusBadRequest, "Invalid YouTube URL"},
		{"disabled", errors.ErrTranscriptsDisabled, http.StatusForbidden, "Transcripts disabled"},
		{"not found", errors.ErrNoTranscriptFound, http.StatusNotFound, "No transcript found"},
		{"unauthorized", errors.ErrUnauthorized, http.StatusUnauthorized, "Invalid API key"},
		{"timeout", errors.ErrUpstreamTimeout, http.StatusGatewayTimeout, "Upstream provider timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Err(tt.errno)
			assert.Equal(t, tt.errno.Code, r.Code)
			assert.Equal(t, tt.status, r.HTTPStatus())
			assert.Equal(t, tt.msg, r.Message)
			assert.False(t, r.IsSuccess())
		})
	}
}

func TestFromError(t *testing.T) {
	r := FromError(stderrors.New("boom"))
	assert.Equal(t, errors.ErrInternal.Code, r.Code)
	assert.Equal(t, http.StatusInternalServerError, r.HTTPStatus())

	r = FromError(nil)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, http.StatusOK, r.HTTPStatus())
}

func TestErrWithLang(t *testing.T) {
	r := ErrWithLang(errors.ErrNoTranscriptFound, "zh")
	assert.Equal(t, "未找到字幕", r.Message)
}

func TestResponse_JSONShape(t *testing.T) {
	data, err := json.Marshal(Err(errors.ErrTooManyRequests).WithRequestID("rid-1"))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"code":6000,"message":"Too many requests","request_id":"rid-1"}`, string(data))
}

func TestHTTPStatus_CategoryFallback(t *testing.T) {
	r := &Response{Code: errors.MakeCode(99, errors.CategoryNetwork, 999)}
	assert.Equal(t, http.StatusBadGateway, r.HTTPStatus())
}
