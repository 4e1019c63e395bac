package types

import (
	"fmt"
	"net/netip"
	"strings"
)

// ============================================================================
//                              Family - 地址族
// ============================================================================

// Family 地址族
type Family int

const (
	// FamilyAny 不限地址族（所有地址族）
	FamilyAny Family = iota
	// FamilyIPv4 IPv4
	FamilyIPv4
	// FamilyIPv6 IPv6
	FamilyIPv6
)

// String 返回地址族的字符串表示
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "any"
	}
}

// Matches 判断地址族 other 是否被 f 覆盖
func (f Family) Matches(other Family) bool {
	return f == FamilyAny || other == FamilyAny || f == other
}

// FamilyOf 返回地址所属的地址族
func FamilyOf(addr netip.Addr) Family {
	addr = addr.Unmap()
	switch {
	case addr.Is4():
		return FamilyIPv4
	case addr.Is6():
		return FamilyIPv6
	default:
		return FamilyAny
	}
}

// ParseFamily 解析地址族名称（"ipv4"/"4"/"ipv6"/"6"/"any"/""）
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all":
		return FamilyAny, nil
	case "ipv4", "ip4", "4", "v4":
		return FamilyIPv4, nil
	case "ipv6", "ip6", "6", "v6":
		return FamilyIPv6, nil
	default:
		return FamilyAny, fmt.Errorf("unknown address family %q", s)
	}
}

// ============================================================================
//                              Section - 记录所在段
// ============================================================================

// Section 资源记录在消息中的段
type Section int

const (
	// SectionAnswer 应答段
	SectionAnswer Section = iota
	// SectionAuthority 权威段（探测时携带拟发布的记录）
	SectionAuthority
	// SectionAdditional 附加段
	SectionAdditional
	// SectionExpired 过期通知：不进入任何消息，同步投递给所有 agent，TTL 为 0
	SectionExpired
)

// String 返回段的字符串表示
func (s Section) String() string {
	switch s {
	case SectionAnswer:
		return "answer"
	case SectionAuthority:
		return "authority"
	case SectionAdditional:
		return "additional"
	case SectionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              PublicationCause - 发布原因
// ============================================================================

// PublicationCause 向 Publisher 获取发布内容的原因
type PublicationCause int

const (
	// CauseAnnouncement 主动通告
	CauseAnnouncement PublicationCause = iota
	// CauseMulticastQuery 响应多播查询
	CauseMulticastQuery
	// CauseUnicastQuery 响应单播查询
	CauseUnicastQuery
)

// String 返回发布原因的字符串表示
func (c PublicationCause) String() string {
	switch c {
	case CauseAnnouncement:
		return "announcement"
	case CauseMulticastQuery:
		return "multicast-query"
	case CauseUnicastQuery:
		return "unicast-query"
	default:
		return "unknown"
	}
}
