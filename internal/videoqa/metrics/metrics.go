// Package metrics 提供视频问答服务的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics 视频问答服务业务指标。
type Metrics struct {
	// 问答指标
	asksTotal   atomic.Uint64 // 问答请求总数
	asksErrors  atomic.Uint64 // 问答失败次数
	streamsOpen atomic.Int64  // 正在输出的流式回答数

	// 字幕指标
	transcriptFetches     atomic.Uint64 // 字幕拉取次数（不含缓存命中）
	transcriptFetchErrors atomic.Uint64 // 字幕拉取失败次数
	transcriptStoreHits   atomic.Uint64 // Redis 二级缓存命中次数
	metadataFallbacks     atomic.Uint64 // 元数据降级次数

	// 索引指标
	indexBuilds      atomic.Uint64 // 索引构建次数
	indexBuildErrors atomic.Uint64 // 索引构建失败次数
	passagesIndexed  atomic.Uint64 // 已索引段落数
	indexBuildNanos  atomic.Int64  // 索引构建总耗时

	// 检索指标
	retrievalTotal  atomic.Uint64
	retrievalErrors atomic.Uint64
	retrievalNanos  atomic.Int64

	// LLM 调用指标
	llmCallsTotal  atomic.Uint64
	llmCallsErrors atomic.Uint64
	llmCallsNanos  atomic.Int64

	startTime time.Time
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// New 创建独立的指标实例。
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Default 获取全局指标实例。
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// RecordAsk 记录一次问答。
func (m *Metrics) RecordAsk(err error) {
	m.asksTotal.Add(1)
	if err != nil {
		m.asksErrors.Add(1)
	}
}

// StreamStarted 记录流式回答开始，返回的函数在流结束时调用。
func (m *Metrics) StreamStarted() func() {
	m.streamsOpen.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { m.streamsOpen.Add(-1) })
	}
}

// RecordTranscriptFetch 记录一次字幕拉取。
func (m *Metrics) RecordTranscriptFetch(err error) {
	m.transcriptFetches.Add(1)
	if err != nil {
		m.transcriptFetchErrors.Add(1)
	}
}

// RecordTranscriptStoreHit 记录二级缓存命中。
func (m *Metrics) RecordTranscriptStoreHit() {
	m.transcriptStoreHits.Add(1)
}

// RecordMetadataFallback 记录元数据降级为默认缩略图。
func (m *Metrics) RecordMetadataFallback() {
	m.metadataFallbacks.Add(1)
}

// RecordIndexBuild 记录一次索引构建。
func (m *Metrics) RecordIndexBuild(duration time.Duration, passages int, err error) {
	m.indexBuilds.Add(1)
	if err != nil {
		m.indexBuildErrors.Add(1)
		return
	}
	m.indexBuildNanos.Add(int64(duration))
	m.passagesIndexed.Add(uint64(passages))
}

// RecordRetrieval 记录检索操作。
func (m *Metrics) RecordRetrieval(duration time.Duration, err error) {
	m.retrievalTotal.Add(1)
	if err != nil {
		m.retrievalErrors.Add(1)
		return
	}
	m.retrievalNanos.Add(int64(duration))
}

// RecordLLMCall 记录 LLM 调用。
func (m *Metrics) RecordLLMCall(duration time.Duration, err error) {
	m.llmCallsTotal.Add(1)
	if err != nil {
		m.llmCallsErrors.Add(1)
		return
	}
	m.llmCallsNanos.Add(int64(duration))
}

// Sample 是一条附加导出的指标。
type Sample struct {
	Name  string
	Help  string
	Type  string // counter 或 gauge
	Value float64
}

// Export 导出 Prometheus 文本格式指标，extra 追加在末尾。
func (m *Metrics) Export(namespace, subsystem string, extra ...Sample) string {
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	samples := []Sample{
		{"asks_total", "Total number of questions asked.", "counter", float64(m.asksTotal.Load())},
		{"asks_errors_total", "Number of failed questions.", "counter", float64(m.asksErrors.Load())},
		{"streams_in_flight", "Number of answers currently streaming.", "gauge", float64(m.streamsOpen.Load())},
		{"transcript_fetches_total", "Number of transcript provider fetches.", "counter", float64(m.transcriptFetches.Load())},
		{"transcript_fetch_errors_total", "Number of failed transcript fetches.", "counter", float64(m.transcriptFetchErrors.Load())},
		{"transcript_store_hits_total", "Number of transcripts served by the redis store.", "counter", float64(m.transcriptStoreHits.Load())},
		{"metadata_fallbacks_total", "Number of metadata lookups that fell back to defaults.", "counter", float64(m.metadataFallbacks.Load())},
		{"index_builds_total", "Total number of index builds.", "counter", float64(m.indexBuilds.Load())},
		{"index_build_errors_total", "Number of failed index builds.", "counter", float64(m.indexBuildErrors.Load())},
		{"index_build_duration_seconds_total", "Total index build duration.", "counter", seconds(m.indexBuildNanos.Load())},
		{"passages_indexed_total", "Total passages indexed.", "counter", float64(m.passagesIndexed.Load())},
		{"retrieval_total", "Total number of retrievals.", "counter", float64(m.retrievalTotal.Load())},
		{"retrieval_errors_total", "Number of retrieval errors.", "counter", float64(m.retrievalErrors.Load())},
		{"retrieval_duration_seconds_total", "Total retrieval duration.", "counter", seconds(m.retrievalNanos.Load())},
		{"llm_calls_total", "Total number of LLM calls.", "counter", float64(m.llmCallsTotal.Load())},
		{"llm_calls_errors_total", "Number of LLM call errors.", "counter", float64(m.llmCallsErrors.Load())},
		{"llm_calls_duration_seconds_total", "Total LLM call duration.", "counter", seconds(m.llmCallsNanos.Load())},
		{"uptime_seconds", "Service uptime in seconds.", "gauge", time.Since(m.startTime).Seconds()},
	}
	samples = append(samples, extra...)

	var sb strings.Builder
	for _, s := range samples {
		name := prefix + "_" + s.Name
		fmt.Fprintf(&sb, "# HELP %s %s\n", name, s.Help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", name, s.Type)
		fmt.Fprintf(&sb, "%s %s\n\n", name, formatValue(s.Value))
	}
	return sb.String()
}

func seconds(nanos int64) float64 {
	return time.Duration(nanos).Seconds()
}

func formatValue(v float64) string {
	if v == float64(uint64(v)) {
		return fmt.Sprintf("%d", uint64(v))
	}
	return fmt.Sprintf("%.6f", v)
}

// Snapshot 当前统计信息（用于 API）。
type Snapshot struct {
	Asks struct {
		Total           uint64 `json:"total"`
		Errors          uint64 `json:"errors"`
		StreamsInFlight int64  `json:"streams_in_flight"`
	} `json:"asks"`
	Transcripts struct {
		Fetches           uint64 `json:"fetches"`
		Errors            uint64 `json:"errors"`
		StoreHits         uint64 `json:"store_hits"`
		MetadataFallbacks uint64 `json:"metadata_fallbacks"`
	} `json:"transcripts"`
	Indexing struct {
		Builds          uint64  `json:"builds"`
		Errors          uint64  `json:"errors"`
		Passages        uint64  `json:"passages"`
		AvgDurationSecs float64 `json:"avg_duration_secs"`
	} `json:"indexing"`
	Retrieval struct {
		Total           uint64  `json:"total"`
		Errors          uint64  `json:"errors"`
		AvgDurationSecs float64 `json:"avg_duration_secs"`
	} `json:"retrieval"`
	LLM struct {
		Calls           uint64  `json:"calls"`
		Errors          uint64  `json:"errors"`
		AvgDurationSecs float64 `json:"avg_duration_secs"`
	} `json:"llm"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Snapshot 返回当前统计信息。平均耗时只计算成功的调用。
func (m *Metrics) Snapshot() Snapshot {
	var s Snapshot
	s.Asks.Total = m.asksTotal.Load()
	s.Asks.Errors = m.asksErrors.Load()
	s.Asks.StreamsInFlight = m.streamsOpen.Load()

	s.Transcripts.Fetches = m.transcriptFetches.Load()
	s.Transcripts.Errors = m.transcriptFetchErrors.Load()
	s.Transcripts.StoreHits = m.transcriptStoreHits.Load()
	s.Transcripts.MetadataFallbacks = m.metadataFallbacks.Load()

	s.Indexing.Builds = m.indexBuilds.Load()
	s.Indexing.Errors = m.indexBuildErrors.Load()
	s.Indexing.Passages = m.passagesIndexed.Load()
	s.Indexing.AvgDurationSecs = average(m.indexBuildNanos.Load(), s.Indexing.Builds-s.Indexing.Errors)

	s.Retrieval.Total = m.retrievalTotal.Load()
	s.Retrieval.Errors = m.retrievalErrors.Load()
	s.Retrieval.AvgDurationSecs = average(m.retrievalNanos.Load(), s.Retrieval.Total-s.Retrieval.Errors)

	s.LLM.Calls = m.llmCallsTotal.Load()
	s.LLM.Errors = m.llmCallsErrors.Load()
	s.LLM.AvgDurationSecs = average(m.llmCallsNanos.Load(), s.LLM.Calls-s.LLM.Errors)

	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

func average(nanos int64, n uint64) float64 {
	if n == 0 {
		return 0
	}
	return seconds(nanos) / float64(n)
}
