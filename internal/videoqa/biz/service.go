package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/videoqa/internal/pkg/textutil"
	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/pkg/infra/middleware/common"
	"github.com/kart-io/videoqa/pkg/infra/pool"
	"github.com/kart-io/videoqa/pkg/infra/tracing"
	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/youtube"
)

// Answer 问答结果。Title 与 ThumbnailURL 为空时序列化为 null。
type Answer struct {
	Answer       string  `json:"answer"`
	Title        *string `json:"title"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

// StreamResponse 流式问答结果，元数据先于 token 返回。
type StreamResponse struct {
	Title        *string
	ThumbnailURL *string
	Tokens       <-chan Token
}

// Stats 服务统计信息。
type Stats struct {
	Cache   CacheStats       `json:"cache"`
	Metrics metrics.Snapshot `json:"metrics"`
}

// Service 定义视频问答服务接口。
type Service interface {
	// Ask 针对视频字幕回答问题。
	Ask(ctx context.Context, reference, question string) (*Answer, error)
	// AskStream 以 token 流回答问题。准备阶段的错误直接返回，
	// 生成阶段的错误以终止 token 形式出现在流中。
	AskStream(ctx context.Context, reference, question string) (*StreamResponse, error)
	// Stats 返回缓存与指标统计。
	Stats() *Stats
}

// MetadataSource 查询视频展示信息，失败时返回默认值。
type MetadataSource interface {
	Fetch(ctx context.Context, videoID string) youtube.Metadata
	DefaultThumbnail(videoID string) string
}

// ServiceConfig 视频问答服务配置。
type ServiceConfig struct {
	// StrictVideoID 要求视频 ID 为 11 位 URL 安全字符。
	StrictVideoID bool
	// TopK 检索段落数，<= 0 时使用索引默认值。
	TopK int
	// MetadataWait 生成完成后等待元数据的最长时间。
	MetadataWait time.Duration
	// StreamMetadataWait 流式回答在首个 token 前等待元数据的最长时间。
	StreamMetadataWait time.Duration
}

// Components 服务依赖的组件。
type Components struct {
	Source    TranscriptSource
	Metadata  MetadataSource
	Chunker   *Chunker
	Indexer   *Indexer
	Generator *Generator
	Cache     *PipelineCache
	// Background 运行元数据查询，为 nil 时使用独立 goroutine。
	Background *pool.Pool
	Metrics    *metrics.Metrics
}

// VideoQAService 组合各组件提供完整的问答流程。
type VideoQAService struct {
	source     TranscriptSource
	metadata   MetadataSource
	chunker    *Chunker
	indexer    *Indexer
	generator  *Generator
	cache      *PipelineCache
	background *pool.Pool
	metrics    *metrics.Metrics
	config     *ServiceConfig
}

var _ Service = (*VideoQAService)(nil)

// NewVideoQAService 创建视频问答服务实例。
func NewVideoQAService(c Components, config *ServiceConfig) *VideoQAService {
	if config == nil {
		config = &ServiceConfig{MetadataWait: 2 * time.Second, StreamMetadataWait: 300 * time.Millisecond}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Default()
	}
	return &VideoQAService{
		source:     c.Source,
		metadata:   c.Metadata,
		chunker:    c.Chunker,
		indexer:    c.Indexer,
		generator:  c.Generator,
		cache:      c.Cache,
		background: c.Background,
		metrics:    c.Metrics,
		config:     config,
	}
}

// Ask 依次执行：解析 ID、获取字幕、获取索引、检索、生成。
// 元数据在解析 ID 后并发查询，不阻塞回答路径。
func (s *VideoQAService) Ask(ctx context.Context, reference, question string) (answer *Answer, err error) {
	defer func() { s.metrics.RecordAsk(err) }()

	id, err := s.parse(reference, question)
	if err != nil {
		return nil, err
	}
	meta := s.startMetadata(ctx, id)

	passages, err := s.prepare(ctx, id, question)
	if err != nil {
		return nil, err
	}

	genCtx, span := tracing.StartSpan(ctx, "videoqa.generate", attribute.Int("passages", len(passages)))
	text, err := s.generator.Generate(genCtx, passages, question)
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}

	md := meta.await(s.config.MetadataWait)
	logger.Infow("question answered", append(questionFields(question),
		"request_id", common.GetRequestID(ctx),
		"trace_id", tracing.TraceID(ctx),
		"video_id", id,
		"passages", len(passages),
		"answer_length", len(text),
	)...)
	return &Answer{Answer: text, Title: md.Title, ThumbnailURL: md.ThumbnailURL}, nil
}

// AskStream 与 Ask 的准备阶段相同，随后返回 token 流。
func (s *VideoQAService) AskStream(ctx context.Context, reference, question string) (*StreamResponse, error) {
	id, err := s.parse(reference, question)
	if err != nil {
		s.metrics.RecordAsk(err)
		return nil, err
	}
	meta := s.startMetadata(ctx, id)

	passages, err := s.prepare(ctx, id, question)
	if err != nil {
		s.metrics.RecordAsk(err)
		return nil, err
	}
	md := meta.await(s.config.StreamMetadataWait)

	logger.Infow("answer streaming", append(questionFields(question),
		"request_id", common.GetRequestID(ctx),
		"trace_id", tracing.TraceID(ctx),
		"video_id", id,
		"passages", len(passages),
	)...)

	tokens := s.generator.GenerateStream(ctx, passages, question)
	done := s.metrics.StreamStarted()
	out := make(chan Token)
	go func() {
		defer close(out)
		defer done()

		var streamErr error
		defer func() { s.metrics.RecordAsk(streamErr) }()
		for tok := range tokens {
			if tok.Err != nil {
				streamErr = tok.Err
			}
			select {
			case out <- tok:
			case <-ctx.Done():
				streamErr = ctx.Err()
				return
			}
		}
	}()

	return &StreamResponse{Title: md.Title, ThumbnailURL: md.ThumbnailURL, Tokens: out}, nil
}

// Stats 返回缓存与指标统计。
func (s *VideoQAService) Stats() *Stats {
	return &Stats{Cache: s.cache.Stats(), Metrics: s.metrics.Snapshot()}
}

// logQuestionRunes 日志中保留的问题长度。
const logQuestionRunes = 80

// questionFields 日志只记录截断后的问题，question_sha256 用于关联完整问题。
func questionFields(question string) []interface{} {
	return []interface{}{
		"question", textutil.TruncateString(question, logQuestionRunes),
		"question_sha256", textutil.HashString(question),
	}
}

func (s *VideoQAService) parse(reference, question string) (VideoID, error) {
	extract := ExtractVideoID
	if s.config.StrictVideoID {
		extract = ExtractVideoIDStrict
	}
	id, err := extract(reference)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(question) == "" {
		return "", errors.ErrEmptyQuestion
	}
	return id, nil
}

// prepare 获取字幕与索引并检索，各步骤严格按序执行。
func (s *VideoQAService) prepare(ctx context.Context, id VideoID, question string) (RetrievalResult, error) {
	doc, err := s.cache.Transcript(ctx, id, func(ctx context.Context) (doc *TranscriptDocument, err error) {
		ctx, span := tracing.StartSpan(ctx, "videoqa.transcript.fetch", attribute.String("video_id", string(id)))
		defer func() { tracing.End(span, err) }()

		doc, err = s.source.Fetch(ctx, id)
		s.metrics.RecordTranscriptFetch(err)
		if err != nil {
			logger.Warnw("transcript fetch failed", "video_id", id, "error", err)
			return nil, err
		}
		logger.Infow("transcript fetched", "video_id", id, "language", doc.Language, "length", len(doc.Text))
		return doc, nil
	})
	if err != nil {
		return nil, err
	}

	idx, err := s.cache.Index(ctx, id, func(ctx context.Context) (idx *Index, err error) {
		passages := s.chunker.Split(doc.Text)
		ctx, span := tracing.StartSpan(ctx, "videoqa.index.build",
			attribute.String("video_id", string(id)),
			attribute.Int("passages", len(passages)),
		)
		defer func() { tracing.End(span, err) }()
		return s.indexer.Build(ctx, id, passages)
	})
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "videoqa.retrieve", attribute.Int("top_k", s.config.TopK))
	result, err := idx.Retrieve(ctx, question, s.config.TopK)
	tracing.End(span, err)
	return result, err
}

type pendingMetadata struct {
	s  *VideoQAService
	id VideoID
	ch chan youtube.Metadata
}

// startMetadata 在后台池中查询元数据。
func (s *VideoQAService) startMetadata(ctx context.Context, id VideoID) *pendingMetadata {
	p := &pendingMetadata{s: s, id: id, ch: make(chan youtube.Metadata, 1)}
	task := func() { p.ch <- s.metadata.Fetch(ctx, string(id)) }

	if s.background == nil {
		go task()
		return p
	}
	if err := s.background.SubmitWithContext(ctx, task); err != nil {
		logger.Warnw("metadata lookup not scheduled", "video_id", id, "error", err)
		thumb := s.metadata.DefaultThumbnail(string(id))
		p.ch <- youtube.Metadata{ThumbnailURL: &thumb}
	}
	return p
}

// await 最多等待 wait，超时返回默认缩略图。
func (p *pendingMetadata) await(wait time.Duration) youtube.Metadata {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case md := <-p.ch:
		if md.Title == nil {
			p.s.metrics.RecordMetadataFallback()
		}
		return md
	case <-timer.C:
		p.s.metrics.RecordMetadataFallback()
		thumb := p.s.metadata.DefaultThumbnail(string(p.id))
		return youtube.Metadata{ThumbnailURL: &thumb}
	}
}
