// Package biz 提供 docqa 的业务逻辑层。
//
// 组件划分：
//   - Retriever: 问题嵌入 + 向量检索
//   - Generator: 构建提示词（BuildPrompt）与调用生成模型（Synthesize）
//   - Lifecycle: 串行化索引重建，判断索引是否存在
//   - QueryCache: 按索引代际缓存答案（Redis）
//   - DocQAService: 组合以上组件，提供 Ingest / Ask / Status
package biz
