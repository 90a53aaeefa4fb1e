package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/pkg/llm"
	"github.com/kart-io/videoqa/pkg/utils/errors"
)

// FallbackAnswer 是提示词要求模型在上下文中找不到答案时给出的原文。
const FallbackAnswer = "The transcript does not contain this information."

// ErrorTokenPrefix 流式输出中错误 token 的前缀。
const ErrorTokenPrefix = "\n[ERROR]: "

const promptTemplate = `You are an expert AI assistant.
Answer the user using ONLY the transcript context below.
If the answer is not found, say:
"` + FallbackAnswer + `"

CONTEXT:
{context}

QUESTION:
{question}
`

// BuildContext 按检索顺序以空行拼接段落。
func BuildContext(passages []Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// BuildPrompt 填充提示词模板。单次替换，上下文中的占位符原样保留。
func BuildPrompt(contextText, question string) string {
	return strings.NewReplacer("{context}", contextText, "{question}", question).Replace(promptTemplate)
}

// Token 流式输出的一个片段。Err 非空时为终止 token。
type Token struct {
	Text string
	Err  error
}

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// Incremental 供应商支持流式生成时直接转发其输出。
	Incremental bool
}

// Generator 负责答案生成。
type Generator struct {
	chat    llm.ChatProvider
	config  *GeneratorConfig
	metrics *metrics.Metrics
}

// NewGenerator 创建生成器实例。
func NewGenerator(chat llm.ChatProvider, config *GeneratorConfig, m *metrics.Metrics) *Generator {
	if config == nil {
		config = &GeneratorConfig{}
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Generator{chat: chat, config: config, metrics: m}
}

// Generate 根据检索结果生成完整答案。
func (g *Generator) Generate(ctx context.Context, passages RetrievalResult, question string) (string, error) {
	prompt := BuildPrompt(BuildContext(passages), question)

	start := time.Now()
	answer, err := g.chat.Generate(ctx, prompt, "")
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.ErrGeneration.WithMessagef("%s: %s returned an empty response", errors.ErrGeneration.MessageEN, g.chat.Name())
	}
	g.metrics.RecordLLMCall(time.Since(start), err)
	if err != nil {
		logger.Errorw("answer generation failed", "provider", g.chat.Name(), "error", err)
		return "", g.wrap(err)
	}

	logger.Debugw("answer generated", "provider", g.chat.Name(), "length", len(answer), "duration_ms", time.Since(start).Milliseconds())
	return answer, nil
}

func (g *Generator) wrap(err error) error {
	return errors.Transport(errors.ErrGeneration, g.chat.Name(), err)
}

// GenerateStream 以 token 序列输出答案。channel 有限、不可重放，
// 输出最后一个 token 后关闭。失败时输出一个以 ErrorTokenPrefix 开头的终止 token，
// 已输出的 token 保持不变。ctx 取消后停止输出。
func (g *Generator) GenerateStream(ctx context.Context, passages RetrievalResult, question string) <-chan Token {
	out := make(chan Token)

	go func() {
		defer close(out)

		if s, ok := llm.AsStreaming(g.chat); ok && g.config.Incremental {
			g.streamIncremental(ctx, s, passages, question, out)
			return
		}

		answer, err := g.Generate(ctx, passages, question)
		if err != nil {
			emit(ctx, out, errorToken(err))
			return
		}
		for _, field := range strings.Fields(answer) {
			if !emit(ctx, out, Token{Text: field + " "}) {
				return
			}
		}
	}()

	return out
}

func (g *Generator) streamIncremental(ctx context.Context, s llm.StreamingChatProvider, passages RetrievalResult, question string, out chan<- Token) {
	prompt := BuildPrompt(BuildContext(passages), question)

	start := time.Now()
	textc, errc := s.GenerateStream(ctx, prompt, "")

	emitted := false
	for text := range textc {
		if text == "" {
			continue
		}
		emitted = true
		if !emit(ctx, out, Token{Text: text}) {
			g.metrics.RecordLLMCall(time.Since(start), ctx.Err())
			return
		}
	}

	err := <-errc
	if err == nil && !emitted {
		err = errors.ErrGeneration.WithMessagef("%s: %s returned an empty response", errors.ErrGeneration.MessageEN, s.Name())
	}
	g.metrics.RecordLLMCall(time.Since(start), err)
	if err != nil {
		logger.Errorw("streaming generation failed", "provider", s.Name(), "error", err)
		emit(ctx, out, errorToken(g.wrap(err)))
	}
}

func errorToken(err error) Token {
	return Token{Text: ErrorTokenPrefix + err.Error(), Err: err}
}

// emit 发送 token，ctx 取消时返回 false。
func emit(ctx context.Context, out chan<- Token, tok Token) bool {
	select {
	case out <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}
