package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/pkg/utils/errors"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		want      VideoID
		wantErr   bool
	}{
		{name: "watch url", reference: "https://www.youtube.com/watch?v=abc123", want: "abc123"},
		{name: "short url", reference: "https://youtu.be/XYZ", want: "XYZ"},
		{name: "query passes through", reference: "https://www.youtube.com/watch?v=abc&t=10s", want: "abc&t=10s"},
		{name: "last marker wins", reference: "watch?v=one watch?v=two", want: "two"},
		{name: "watch checked first", reference: "https://youtu.be/a?watch?v=b", want: "b"},
		{name: "empty suffix", reference: "https://www.youtube.com/watch?v=", wantErr: true},
		{name: "no marker", reference: "not-a-youtube-link", wantErr: true},
		{name: "empty", reference: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.reference)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrVideoInvalidReference.Code))
				assert.Equal(t, 400, errors.FromError(err).HTTPStatus())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractVideoIDStrict(t *testing.T) {
	got, err := ExtractVideoIDStrict("https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42")
	require.NoError(t, err)
	assert.Equal(t, VideoID("dQw4w9WgXcQ"), got)

	got, err = ExtractVideoIDStrict("https://youtu.be/dQw4w9WgXcQ?si=share")
	require.NoError(t, err)
	assert.Equal(t, VideoID("dQw4w9WgXcQ"), got)

	for _, ref := range []string{
		"https://www.youtube.com/watch?v=abc123",
		"https://youtu.be/dQw4w9WgXc!",
		"https://youtu.be/?v=dQw4w9WgXcQ",
	} {
		_, err := ExtractVideoIDStrict(ref)
		assert.True(t, errors.IsCode(err, errors.ErrVideoInvalidReference.Code), ref)
	}
}
