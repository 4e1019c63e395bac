package types

import (
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

const (
	// LocalDomain mDNS 顶级域
	LocalDomain = "local."

	// SubtypeLabel 子类型名称中间标签
	SubtypeLabel = "_sub"

	// AnyServiceFullName 服务类型枚举名（RFC 6763 §9）
	AnyServiceFullName = "_services._dns-sd._udp.local."

	maxLabelLength = 63
)

// LocalHostFullName 返回主机全名，如 "myhost" → "myhost.local."
func LocalHostFullName(hostName string) string {
	return strings.TrimSuffix(hostName, ".") + "." + LocalDomain
}

// LocalServiceFullName 返回服务全名，如 "_foo._tcp" → "_foo._tcp.local."
func LocalServiceFullName(serviceName string) string {
	return strings.TrimSuffix(serviceName, ".") + "." + LocalDomain
}

// LocalInstanceFullName 返回实例全名，实例名作为单个标签转义
func LocalInstanceFullName(instanceName, serviceName string) string {
	return EscapeLabel(instanceName) + "." + LocalServiceFullName(serviceName)
}

// LocalServiceSubtypeFullName 返回子类型全名，如 "_printer._sub._foo._tcp.local."
func LocalServiceSubtypeFullName(serviceName, subtype string) string {
	return subtype + "." + SubtypeLabel + "." + LocalServiceFullName(serviceName)
}

// MatchServiceName 判断 name 是否为服务全名或其子类型全名
//
// 匹配服务全名时 subtype 为空。
func MatchServiceName(name, serviceName string) (subtype string, ok bool) {
	serviceFull := LocalServiceFullName(serviceName)
	if NameEqual(name, serviceFull) {
		return "", true
	}

	suffix := "." + SubtypeLabel + "." + serviceFull
	fqdn := dns.Fqdn(name)
	if len(fqdn) <= len(suffix) || !strings.EqualFold(fqdn[len(fqdn)-len(suffix):], suffix) {
		return "", false
	}
	subtype = fqdn[:len(fqdn)-len(suffix)]
	if subtype == "" || strings.Contains(subtype, ".") {
		return "", false
	}
	return subtype, true
}

// InstanceNameFromFullName 从实例全名中取出（反转义后的）实例名
func InstanceNameFromFullName(fullName, serviceName string) (string, bool) {
	suffix := "." + LocalServiceFullName(serviceName)
	fqdn := dns.Fqdn(fullName)
	if len(fqdn) <= len(suffix) || !strings.EqualFold(fqdn[len(fqdn)-len(suffix):], suffix) {
		return "", false
	}
	label := fqdn[:len(fqdn)-len(suffix)]
	if labelCount(label) != 1 {
		return "", false
	}
	return UnescapeLabel(label), true
}

// HostNameFromFullName 从主机全名中取出主机名
func HostNameFromFullName(fullName string) string {
	return strings.TrimSuffix(strings.TrimSuffix(dns.Fqdn(fullName), "."+LocalDomain), ".")
}

// ============================================================================
//                              标签转义
// ============================================================================

// EscapeLabel 将任意字节串转义为单个标签的表示形式
//
// 转义规则与 miekg/dns 解包域名时一致，本地构造的名称与线上收到的名称可以直接比较。
func EscapeLabel(label string) string {
	var b strings.Builder
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case isLabelSpecial(c):
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < ' ' || c > '~':
			b.WriteByte('\\')
			s := strconv.Itoa(int(c))
			b.WriteString(strings.Repeat("0", 3-len(s)))
			b.WriteString(s)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeLabel 是 EscapeLabel 的逆操作
func UnescapeLabel(label string) string {
	var b strings.Builder
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c != '\\' || i+1 >= len(label) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(label) && isDigit(label[i+1]) && isDigit(label[i+2]) && isDigit(label[i+3]) {
			n, _ := strconv.Atoi(label[i+1 : i+4])
			b.WriteByte(byte(n))
			i += 3
			continue
		}
		b.WriteByte(label[i+1])
		i++
	}
	return b.String()
}

func isLabelSpecial(c byte) bool {
	switch c {
	case '.', ' ', '\'', '@', ';', '(', ')', '"', '\\':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// labelCount 统计未转义的标签数
func labelCount(name string) int {
	if name == "" {
		return 0
	}
	n := 1
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '\\':
			i++
		case '.':
			n++
		}
	}
	return n
}

// ============================================================================
//                              校验
// ============================================================================

// IsValidHostName 主机名：单个标签，1~63 字节，字母数字和连字符
func IsValidHostName(hostName string) bool {
	hostName = strings.TrimSuffix(hostName, ".")
	if len(hostName) == 0 || len(hostName) > maxLabelLength {
		return false
	}
	for i := 0; i < len(hostName); i++ {
		c := hostName[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || isDigit(c) || c == '-') {
			return false
		}
	}
	return hostName[0] != '-' && hostName[len(hostName)-1] != '-'
}

// IsValidServiceName 服务名：形如 "_name._tcp" 或 "_name._udp"
func IsValidServiceName(serviceName string) bool {
	serviceName = strings.TrimSuffix(serviceName, ".")
	name, proto, ok := strings.Cut(serviceName, ".")
	if !ok || (proto != "_tcp" && proto != "_udp") {
		return false
	}
	// RFC 6335 §5.1：服务名 1~15 字符
	if len(name) < 2 || len(name) > 16 || name[0] != '_' {
		return false
	}
	return !strings.ContainsAny(name[1:], "._ ")
}

// IsValidInstanceName 实例名：1~63 字节
func IsValidInstanceName(instanceName string) bool {
	return len(instanceName) > 0 && len(instanceName) <= maxLabelLength
}

// IsValidSubtype 子类型：单个标签，1~63 字节
func IsValidSubtype(subtype string) bool {
	return len(subtype) > 0 && len(subtype) <= maxLabelLength && !strings.Contains(subtype, ".")
}
