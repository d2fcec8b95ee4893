// Package store 提供单文档向量索引的存储层。
//
// 索引只有一个（无集合名），每次重建整体替换，替换对查询方是原子的：
//   - file: 同目录临时文件 + rename
//   - sqlite: 单事务删除并重新写入
//   - milvus: 每代一个集合，重建完成后切换别名
package store
