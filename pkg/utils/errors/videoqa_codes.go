package errors

import "net/http"

// 视频问答服务代码: 21
// 错误码格式: AABBCCC
// - AA: 21 (videoqa 服务)
// - BB: 类别代码
// - CCC: 序号

var (
	// 请求错误 (类别 01)
	ErrVideoInvalidReference = NewRequestErr(ServiceVideoQA, 1, "Invalid YouTube URL", "无效的 YouTube 链接")
	ErrEmptyQuestion         = NewRequestErr(ServiceVideoQA, 2, "Question must not be empty", "问题不能为空")

	// 字幕不可用 (类别 03 / 04)
	ErrTranscriptsDisabled = NewPermissionErr(ServiceVideoQA, 1, "Transcripts disabled", "该视频已禁用字幕")
	ErrNoTranscriptFound   = NewNotFoundErr(ServiceVideoQA, 1, "No transcript found", "未找到字幕")

	// 内部错误 (类别 07)
	ErrGeneration = NewInternalErr(ServiceVideoQA, 1, "Answer generation failed", "答案生成失败")
	ErrIndexBuild = NewInternalErr(ServiceVideoQA, 2, "Index build failed", "索引构建失败")

	// 上游传输错误 (类别 10)
	ErrTranscriptTransport = NewNetworkErr(ServiceVideoQA, 1, http.StatusBadGateway, "Transcript provider request failed", "字幕服务请求失败")
	ErrEmbedding           = NewNetworkErr(ServiceVideoQA, 2, http.StatusBadGateway, "Embedding provider request failed", "向量服务请求失败")
	ErrVectorStore         = NewNetworkErr(ServiceVideoQA, 3, http.StatusBadGateway, "Vector store request failed", "向量库请求失败")

	// 超时 (类别 11)
	ErrUpstreamTimeout = NewTimeoutErr(ServiceVideoQA, 1, "Upstream provider timeout", "上游服务超时")
)
