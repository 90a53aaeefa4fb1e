package biz

import (
	"context"
	"strings"

	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/youtube"
)

// TranscriptDocument 一个视频的字幕全文。
type TranscriptDocument struct {
	VideoID  VideoID
	Language string
	Text     string
}

// TranscriptSource 拉取视频字幕。
//
// 失败时返回 ErrTranscriptsDisabled、ErrNoTranscriptFound 或传输类错误。
type TranscriptSource interface {
	Fetch(ctx context.Context, id VideoID) (*TranscriptDocument, error)
}

// YouTubeTranscriptSource 基于 youtube.TranscriptClient 的字幕源。
type YouTubeTranscriptSource struct {
	client *youtube.TranscriptClient
}

// NewYouTubeTranscriptSource 创建字幕源。
func NewYouTubeTranscriptSource(client *youtube.TranscriptClient) *YouTubeTranscriptSource {
	return &YouTubeTranscriptSource{client: client}
}

// Fetch 拉取字幕并以单个空格拼接所有片段。
func (s *YouTubeTranscriptSource) Fetch(ctx context.Context, id VideoID) (*TranscriptDocument, error) {
	tr, err := s.client.Fetch(ctx, string(id))
	if err != nil {
		return nil, err
	}

	text := tr.Text()
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrNoTranscriptFound
	}
	return &TranscriptDocument{
		VideoID:  id,
		Language: tr.LanguageCode,
		Text:     text,
	}, nil
}
