package netif

import (
	"net"
	"net/netip"
	"slices"

	"github.com/dep2p/go-mdnsd/pkg/types"
)

// ListFunc 返回当前接口集合
type ListFunc func() ([]types.Interface, error)

// SystemInterfaces 返回操作系统上可用于 mDNS 的接口，按索引排序
func SystemInterfaces(includeLoopback bool) ([]types.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []types.Interface
	for _, ifi := range ifaces {
		if !usable(ifi.Flags, includeLoopback) {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			log.Debug("读取接口地址失败", "interface", ifi.Name, "error", err)
			continue
		}
		iface := types.Interface{Index: ifi.Index, Name: ifi.Name, Addrs: convertAddrs(addrs)}
		if len(iface.Addrs) == 0 {
			continue
		}
		out = append(out, iface)
	}
	slices.SortFunc(out, func(a, b types.Interface) int { return a.Index - b.Index })
	return out, nil
}

// usable 接口是否启用且支持多播
func usable(flags net.Flags, includeLoopback bool) bool {
	if flags&net.FlagUp == 0 || flags&net.FlagMulticast == 0 {
		return false
	}
	if flags&net.FlagLoopback != 0 && !includeLoopback {
		return false
	}
	return true
}

// convertAddrs 转换为去重排序后的 netip.Addr，丢弃区域信息
func convertAddrs(addrs []net.Addr) []netip.Addr {
	var out []netip.Addr
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.IsUnspecified() || addr.IsMulticast() {
			continue
		}
		out = append(out, addr)
	}
	slices.SortFunc(out, func(a, b netip.Addr) int { return a.Compare(b) })
	return slices.Compact(out)
}
