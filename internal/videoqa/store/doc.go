// Package store 提供视频问答服务的数据存储层。
//
// 该包定义了段落向量索引的接口抽象及三种实现：
//   - memory: 进程内暴力余弦检索（默认）
//   - milvus: 每个视频一个集合
//   - pgvector: 所有视频共享一张表
//
// 以及基于 Redis 的字幕二级缓存 TranscriptStore。
package store
