// Package types 定义 mdnsd 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何内部包。
// 资源记录、问题、消息直接使用 miekg/dns 的值类型，本包补充 mDNS 语义。
//
// # 文件组织
//
//   - enums.go         - Family, Section, PublicationCause
//   - reply_address.go - ReplyAddress（多播/单播目的地，可作 map key）
//   - record.go        - 记录辅助函数（缓存刷新位、TTL、构造、比较）
//   - names.go         - mDNS 名称构造、匹配、转义与校验
//   - publication.go   - Publication, ServiceInstance, HostAddresses
//   - interface.go     - Interface, InboundMessage
//   - errors.go        - 公共错误定义
package types
