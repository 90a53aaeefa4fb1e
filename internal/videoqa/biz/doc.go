// Package biz 提供视频问答服务的业务逻辑层。
//
// 该包将一次提问拆分为以下组件：
//   - ExtractVideoID: 从视频链接解析视频 ID
//   - TranscriptSource: 拉取字幕全文
//   - Chunker: 将字幕切分为重叠段落
//   - Indexer: 段落向量化并建立索引，提供检索
//   - Generator: 组装提示词并调用 LLM 生成（批量或流式）
//   - PipelineCache: 按视频 ID 缓存字幕与索引，同一 ID 至多计算一次
//   - VideoQAService: 组合以上组件，提供统一的服务接口
package biz
