package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"runtime"
	"slices"
	"sync"

	"github.com/miekg/dns"
	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/interfaces"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

var log = logger.Logger("mdns.transport")

// UDPTransport 多播 UDP 传输
type UDPTransport struct {
	cfg Config

	mu      sync.RWMutex
	conn4   *ipv4.PacketConn
	conn6   *ipv6.PacketConn
	joined  map[int]types.Interface
	started bool
	closed  bool

	inbound chan types.InboundMessage
	cancel  context.CancelFunc
	group   *errgroup.Group
}

var _ interfaces.Transport = (*UDPTransport)(nil)

// New 创建传输，套接字在 Start 时打开
func New(cfg Config) (*UDPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &UDPTransport{
		cfg:     cfg,
		joined:  make(map[int]types.Interface),
		inbound: make(chan types.InboundMessage, cfg.InboundBuffer),
	}, nil
}

// Start 打开套接字并开始接收
//
// 至少一个地址族的套接字可用即成功。
func (t *UDPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}

	var err4, err6 error
	if t.cfg.EnableIPv4 {
		t.conn4, err4 = listen4(ctx, t.cfg)
		if err4 != nil {
			log.Warn("IPv4 套接字不可用", "error", err4)
		}
	}
	if t.cfg.EnableIPv6 {
		t.conn6, err6 = listen6(ctx, t.cfg)
		if err6 != nil {
			log.Warn("IPv6 套接字不可用", "error", err6)
		}
	}
	if t.conn4 == nil && t.conn6 == nil {
		return NewTransportError("start", multierr.Combine(ErrNoSocket, err4, err6), "failed to open mDNS sockets")
	}

	// 接收循环的生命周期与 Start 的 ctx 无关，由 Close 结束
	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	if c := t.conn4; c != nil {
		g.Go(func() error {
			return t.readLoop(gctx, func(b []byte) (int, int, net.Addr, error) {
				n, cm, src, err := c.ReadFrom(b)
				if cm != nil {
					return n, cm.IfIndex, src, err
				}
				return n, 0, src, err
			})
		})
	}
	if c := t.conn6; c != nil {
		g.Go(func() error {
			return t.readLoop(gctx, func(b []byte) (int, int, net.Addr, error) {
				n, cm, src, err := c.ReadFrom(b)
				if cm != nil {
					return n, cm.IfIndex, src, err
				}
				return n, 0, src, err
			})
		})
	}

	t.cancel = cancel
	t.group = g
	t.started = true
	log.Info("mDNS 传输已启动", "ipv4", t.conn4 != nil, "ipv6", t.conn6 != nil)
	return nil
}

// Inbound 返回入站消息通道，Close 后关闭
func (t *UDPTransport) Inbound() <-chan types.InboundMessage {
	return t.inbound
}

// SetInterfaces 更新加入多播组的接口
//
// 单个接口加入或离开失败不影响其他接口，所有错误合并返回。
func (t *UDPTransport) SetInterfaces(ifaces []types.Interface) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.closed {
		return ErrNotStarted
	}

	next := make(map[int]types.Interface, len(ifaces))
	for _, iface := range ifaces {
		next[iface.Index] = iface
	}
	joins, leaves := diffMemberships(t.joined, next)

	var err error
	for _, m := range leaves {
		err = multierr.Append(err, t.membership(m, false))
	}
	for _, m := range joins {
		err = multierr.Append(err, t.membership(m, true))
	}
	t.joined = next

	log.Debug("多播接口已更新", "interfaces", len(next), "joins", len(joins), "leaves", len(leaves))
	return err
}

// Send 编码并发送消息
func (t *UDPTransport) Send(msg *dns.Msg, dest types.ReplyAddress) error {
	buf, err := msg.Pack()
	if err != nil {
		return NewTransportError("send", err, "failed to pack message")
	}
	if len(buf) > t.cfg.MaxMessageSize {
		log.Warn("消息超过最大长度", "size", len(buf), "dest", dest)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.started || t.closed {
		return ErrNotStarted
	}

	if !dest.IsMulticast() {
		return t.writeTo(buf, dest.IfIndex(), dest.AddrPort(), false)
	}

	for _, iface := range sortedInterfaces(t.joined) {
		if !dest.IsAllInterfaces() && iface.Index != dest.IfIndex() {
			continue
		}
		for _, family := range []types.Family{types.FamilyIPv4, types.FamilyIPv6} {
			if !dest.Family().Matches(family) || !iface.HasFamily(family) || !t.hasFamily(family) {
				continue
			}
			group := types.Multicast(iface.Index, family).Group()
			err = multierr.Append(err, t.writeTo(buf, iface.Index, group, true))
		}
	}
	return err
}

// Close 关闭套接字，等待接收循环退出后关闭 Inbound 通道；可重复调用
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	var err error
	if t.conn4 != nil {
		err = multierr.Append(err, t.conn4.Close())
	}
	if t.conn6 != nil {
		err = multierr.Append(err, t.conn6.Close())
	}
	cancel, group := t.cancel, t.group
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		err = multierr.Append(err, group.Wait())
	}
	close(t.inbound)

	log.Info("mDNS 传输已关闭")
	return err
}

// LocalAddrs 返回已打开套接字的本地地址
func (t *UDPTransport) LocalAddrs() []net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []net.Addr
	if t.conn4 != nil {
		out = append(out, t.conn4.LocalAddr())
	}
	if t.conn6 != nil {
		out = append(out, t.conn6.LocalAddr())
	}
	return out
}

// ============================================================================
//                              接收
// ============================================================================

type readFunc func(b []byte) (n, ifIndex int, src net.Addr, err error)

func (t *UDPTransport) readLoop(ctx context.Context, read readFunc) error {
	buf := make([]byte, t.cfg.MaxMessageSize)
	for {
		n, ifIndex, src, err := read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Debug("读取报文失败", "error", err)
			continue
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			log.Debug("丢弃无法解码的报文", "from", src, "error", err)
			continue
		}
		from, ok := replyAddressOf(src, ifIndex)
		if !ok {
			continue
		}

		select {
		case t.inbound <- types.InboundMessage{Msg: msg, From: from}:
		case <-ctx.Done():
			return nil
		}
	}
}

// replyAddressOf 把发送方的 socket 地址转换为单播 ReplyAddress
func replyAddressOf(src net.Addr, ifIndex int) (types.ReplyAddress, bool) {
	udp, ok := src.(*net.UDPAddr)
	if !ok {
		return types.ReplyAddress{}, false
	}
	addr, ok := netip.AddrFromSlice(udp.IP)
	if !ok {
		return types.ReplyAddress{}, false
	}
	addr = addr.Unmap()
	if udp.Zone != "" && addr.Is6() {
		addr = addr.WithZone(udp.Zone)
	}
	return types.Unicast(ifIndex, netip.AddrPortFrom(addr, uint16(udp.Port))), true
}

// ============================================================================
//                              发送
// ============================================================================

func (t *UDPTransport) hasFamily(family types.Family) bool {
	switch family {
	case types.FamilyIPv4:
		return t.conn4 != nil
	case types.FamilyIPv6:
		return t.conn6 != nil
	}
	return false
}

// writeTo 从指定接口（0 表示由系统选择）发送到 to
func (t *UDPTransport) writeTo(buf []byte, ifIndex int, to netip.AddrPort, multicast bool) error {
	dst := net.UDPAddrFromAddrPort(to)

	if to.Addr().Unmap().Is4() {
		if t.conn4 == nil {
			return ErrFamilyUnavailable
		}
		var cm *ipv4.ControlMessage
		if ifIndex != 0 {
			cm = &ipv4.ControlMessage{IfIndex: ifIndex}
			if multicast && !controlSelectsInterface() {
				if err := t.conn4.SetMulticastInterface(&net.Interface{Index: ifIndex}); err != nil {
					return fmt.Errorf("set multicast interface %d: %w", ifIndex, err)
				}
			}
		}
		_, err := t.conn4.WriteTo(buf, cm, dst)
		return err
	}

	if t.conn6 == nil {
		return ErrFamilyUnavailable
	}
	var cm *ipv6.ControlMessage
	if ifIndex != 0 {
		cm = &ipv6.ControlMessage{IfIndex: ifIndex}
		if multicast && !controlSelectsInterface() {
			if err := t.conn6.SetMulticastInterface(&net.Interface{Index: ifIndex}); err != nil {
				return fmt.Errorf("set multicast interface %d: %w", ifIndex, err)
			}
		}
	}
	_, err := t.conn6.WriteTo(buf, cm, dst)
	return err
}

// controlSelectsInterface 控制消息中的接口索引是否决定多播出口
func controlSelectsInterface() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "ios":
		return true
	}
	return false
}

// ============================================================================
//                              多播组
// ============================================================================

// membership 一个接口上一个地址族的多播组成员关系
type membership struct {
	index  int
	name   string
	family types.Family
}

// diffMemberships 计算从 current 变为 next 需要加入与离开的多播组
func diffMemberships(current, next map[int]types.Interface) (joins, leaves []membership) {
	has := func(set map[int]types.Interface, index int, family types.Family) bool {
		iface, ok := set[index]
		return ok && iface.HasFamily(family)
	}

	for _, iface := range sortedInterfaces(next) {
		for _, family := range []types.Family{types.FamilyIPv4, types.FamilyIPv6} {
			if iface.HasFamily(family) && !has(current, iface.Index, family) {
				joins = append(joins, membership{index: iface.Index, name: iface.Name, family: family})
			}
		}
	}
	for _, iface := range sortedInterfaces(current) {
		for _, family := range []types.Family{types.FamilyIPv4, types.FamilyIPv6} {
			if iface.HasFamily(family) && !has(next, iface.Index, family) {
				leaves = append(leaves, membership{index: iface.Index, name: iface.Name, family: family})
			}
		}
	}
	return joins, leaves
}

func (t *UDPTransport) membership(m membership, join bool) error {
	ifi := &net.Interface{Index: m.index, Name: m.name}

	var err error
	switch {
	case m.family == types.FamilyIPv4 && t.conn4 != nil:
		group := &net.UDPAddr{IP: net.IP(types.IPv4Group.AsSlice())}
		if join {
			err = t.conn4.JoinGroup(ifi, group)
		} else {
			err = t.conn4.LeaveGroup(ifi, group)
		}
	case m.family == types.FamilyIPv6 && t.conn6 != nil:
		group := &net.UDPAddr{IP: net.IP(types.IPv6Group.AsSlice())}
		if join {
			err = t.conn6.JoinGroup(ifi, group)
		} else {
			err = t.conn6.LeaveGroup(ifi, group)
		}
	default:
		return nil
	}

	if err != nil {
		log.Warn("多播组操作失败", "interface", m.name, "family", m.family, "join", join, "error", err)
		return fmt.Errorf("interface %s (%s): %w", m.name, m.family, err)
	}
	return nil
}

func sortedInterfaces(set map[int]types.Interface) []types.Interface {
	out := make([]types.Interface, 0, len(set))
	for _, iface := range set {
		out = append(out, iface)
	}
	slices.SortFunc(out, func(a, b types.Interface) int { return a.Index - b.Index })
	return out
}

// ============================================================================
//                              套接字
// ============================================================================

func listen4(ctx context.Context, cfg Config) (*ipv4.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", cfg.Port))
	if err != nil {
		return nil, err
	}

	conn := ipv4.NewPacketConn(pc)
	if err := conn.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		log.Debug("无法获取接收接口", "error", err)
	}
	if err := conn.SetMulticastTTL(255); err != nil {
		log.Debug("设置多播 TTL 失败", "error", err)
	}
	if err := conn.SetMulticastLoopback(cfg.Loopback); err != nil {
		log.Debug("设置多播回环失败", "error", err)
	}
	return conn, nil
}

func listen6(ctx context.Context, cfg Config) (*ipv6.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp6", fmt.Sprintf("[::]:%d", cfg.Port))
	if err != nil {
		return nil, err
	}

	conn := ipv6.NewPacketConn(pc)
	if err := conn.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		log.Debug("无法获取接收接口", "error", err)
	}
	if err := conn.SetMulticastHopLimit(255); err != nil {
		log.Debug("设置多播跳数失败", "error", err)
	}
	if err := conn.SetMulticastLoopback(cfg.Loopback); err != nil {
		log.Debug("设置多播回环失败", "error", err)
	}
	return conn, nil
}
