package types

import (
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

// 记录模型直接使用 miekg/dns 的值类型：
//   - dns.RR        资源记录（名称、类型、类、TTL + 按类型区分的数据）
//   - dns.Question  问题
//   - dns.Msg       消息；头部计数由 Pack 在序列化前根据各段重新计算
//
// 本文件提供 mDNS 语义相关的辅助函数。

const (
	// CacheFlushBit 资源记录 class 最高位：缓存刷新标志（RFC 6762 §10.2）
	CacheFlushBit uint16 = 1 << 15

	// UnicastResponseBit 问题 class 最高位：请求单播应答（RFC 6762 §5.4）
	UnicastResponseBit uint16 = 1 << 15

	// ShortTTL 主机地址与 SRV 记录的 TTL（秒）
	ShortTTL uint32 = 120

	// LongTTL PTR 与 TXT 记录的 TTL（秒）
	LongTTL uint32 = 75 * 60
)

// RecordKey 按 (名称, 类型) 标识一组记录
type RecordKey struct {
	Name string
	Type uint16
}

// KeyOf 返回记录的 RecordKey，名称规范化为小写 FQDN
func KeyOf(rr dns.RR) RecordKey {
	hdr := rr.Header()
	return RecordKey{Name: dns.CanonicalName(hdr.Name), Type: hdr.Rrtype}
}

// String 返回可读表示
func (k RecordKey) String() string {
	return k.Name + "/" + dns.TypeToString[k.Type]
}

// NameEqual 比较两个域名（大小写不敏感，忽略末尾点）
func NameEqual(a, b string) bool {
	return strings.EqualFold(dns.Fqdn(a), dns.Fqdn(b))
}

// IsGoodbye TTL 为 0 的记录表示删除
func IsGoodbye(rr dns.RR) bool {
	return rr.Header().Ttl == 0
}

// CacheFlush 返回记录的缓存刷新标志
func CacheFlush(rr dns.RR) bool {
	return rr.Header().Class&CacheFlushBit != 0
}

// SetCacheFlush 设置记录的缓存刷新标志
func SetCacheFlush(rr dns.RR, flush bool) {
	hdr := rr.Header()
	if flush {
		hdr.Class |= CacheFlushBit
	} else {
		hdr.Class &^= CacheFlushBit
	}
}

// RecordClass 返回去掉缓存刷新标志后的 class
func RecordClass(rr dns.RR) uint16 {
	return rr.Header().Class &^ CacheFlushBit
}

// WithTTL 返回 TTL 被替换后的记录副本
func WithTTL(rr dns.RR, ttl uint32) dns.RR {
	c := dns.Copy(rr)
	c.Header().Ttl = ttl
	return c
}

// SameData 判断两条记录除 TTL 与缓存刷新标志外是否相同
func SameData(a, b dns.RR) bool {
	if a.Header().Rrtype != b.Header().Rrtype {
		return false
	}
	if CacheFlush(a) != CacheFlush(b) {
		a = dns.Copy(a)
		b = dns.Copy(b)
		SetCacheFlush(a, false)
		SetCacheFlush(b, false)
	}
	return dns.IsDuplicate(a, b)
}

// ============================================================================
//                              问题
// ============================================================================

// NewQuestion 创建 IN 类问题
func NewQuestion(name string, qtype uint16, unicast bool) dns.Question {
	q := dns.Question{Name: dns.Fqdn(name), Qtype: qtype, Qclass: dns.ClassINET}
	if unicast {
		q.Qclass |= UnicastResponseBit
	}
	return q
}

// IsUnicastQuestion 问题是否请求单播应答
func IsUnicastQuestion(q dns.Question) bool {
	return q.Qclass&UnicastResponseBit != 0
}

// QuestionMatches 判断问题类型是否覆盖 rrtype（含 ANY）
func QuestionMatches(q dns.Question, rrtype uint16) bool {
	return q.Qtype == rrtype || q.Qtype == dns.TypeANY
}

// ============================================================================
//                              记录构造
// ============================================================================

func header(name string, rrtype uint16, ttl uint32, flush bool) dns.RR_Header {
	hdr := dns.RR_Header{Name: dns.Fqdn(name), Rrtype: rrtype, Class: dns.ClassINET, Ttl: ttl}
	if flush {
		hdr.Class |= CacheFlushBit
	}
	return hdr
}

// NewAddress 按地址族创建 A 或 AAAA 记录（带缓存刷新标志）
func NewAddress(name string, addr netip.Addr, ttl uint32) dns.RR {
	addr = addr.Unmap()
	if addr.Is4() {
		a := addr.As4()
		return &dns.A{Hdr: header(name, dns.TypeA, ttl, true), A: net.IP(a[:])}
	}
	a := addr.As16()
	return &dns.AAAA{Hdr: header(name, dns.TypeAAAA, ttl, true), AAAA: net.IP(a[:])}
}

// NewPTR 创建 PTR 记录（共享记录，不带缓存刷新标志）
func NewPTR(name, target string, ttl uint32) dns.RR {
	return &dns.PTR{Hdr: header(name, dns.TypePTR, ttl, false), Ptr: dns.Fqdn(target)}
}

// NewSRV 创建 SRV 记录（带缓存刷新标志）
func NewSRV(name, target string, port, priority, weight uint16, ttl uint32) dns.RR {
	return &dns.SRV{
		Hdr:      header(name, dns.TypeSRV, ttl, true),
		Priority: priority,
		Weight:   weight,
		Port:     port,
		Target:   dns.Fqdn(target),
	}
}

// NewTXT 创建 TXT 记录（带缓存刷新标志）
//
// 空文本按 RFC 6763 §6.1 编码为一个空字符串。
func NewTXT(name string, text []string, ttl uint32) dns.RR {
	if len(text) == 0 {
		text = []string{""}
	}
	return &dns.TXT{Hdr: header(name, dns.TypeTXT, ttl, true), Txt: append([]string(nil), text...)}
}

// NewExpired 创建只有 (名称, 类型) 的 TTL=0 记录，用于过期通知
func NewExpired(name string, rrtype uint16) dns.RR {
	hdr := header(name, rrtype, 0, false)
	if ctor, ok := dns.TypeToRR[rrtype]; ok {
		rr := ctor()
		*rr.Header() = hdr
		return rr
	}
	return &dns.RFC3597{Hdr: hdr}
}

// AddrOf 从 A/AAAA 记录中取出地址
func AddrOf(rr dns.RR) (netip.Addr, bool) {
	var ip net.IP
	switch v := rr.(type) {
	case *dns.A:
		ip = v.A
	case *dns.AAAA:
		ip = v.AAAA
	default:
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	if rr.Header().Rrtype == dns.TypeA {
		addr = addr.Unmap()
	}
	return addr, true
}

// TextOf 返回 TXT 记录的文本；空 TXT（单个空串）返回 nil
func TextOf(rr *dns.TXT) []string {
	if len(rr.Txt) == 0 || (len(rr.Txt) == 1 && rr.Txt[0] == "") {
		return nil
	}
	return append([]string(nil), rr.Txt...)
}

// ============================================================================
//                              消息
// ============================================================================

// NewMessage 创建空消息
func NewMessage() *dns.Msg {
	return new(dns.Msg)
}

// PrepareForSend 在发送前整理消息：没有问题的消息标记为权威应答
//
// 头部计数不在这里维护，miekg/dns 在 Pack 时按各段长度重新计算。
func PrepareForSend(msg *dns.Msg) {
	msg.Id = 0
	if len(msg.Question) == 0 {
		msg.Response = true
		msg.Authoritative = true
	}
}

// PrepareLegacyReply 整理发往传统解析器（源端口不是 5353）的单播应答
//
// 回填查询的 ID 并回显问题，否则传统解析器会丢弃应答（RFC 6762 §6.7）。
func PrepareLegacyReply(msg *dns.Msg, id uint16, questions []dns.Question) {
	msg.Id = id
	msg.Question = append([]dns.Question(nil), questions...)
	msg.Response = true
	msg.Authoritative = true
}

// RecordCount 消息中资源记录的总数
func RecordCount(msg *dns.Msg) int {
	return len(msg.Answer) + len(msg.Ns) + len(msg.Extra)
}
