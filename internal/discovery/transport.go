package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// packetConn is the socket the manager talks through.
type packetConn interface {
	ReadFrom(b []byte) (n int, src netip.AddrPort, ifIndex int, err error)
	WriteTo(b []byte, dst netip.AddrPort) error
	LocalAddr() net.Addr
	Close() error
}

// UDPConn is an IPv4 UDP socket that also reports the receiving interface
// when the platform supports IP_PKTINFO style control messages.
type UDPConn struct {
	conn      *net.UDPConn
	pc        *ipv4.PacketConn
	ifIndexOK bool
}

// ListenUDP binds an IPv4 UDP socket suitable for broadcast discovery.
func ListenUDP(ctx context.Context, addr string) (*UDPConn, error) {
	lc := net.ListenConfig{Control: controlSocket}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}

	c := &UDPConn{conn: conn, pc: ipv4.NewPacketConn(conn)}
	c.ifIndexOK = c.pc.SetControlMessage(ipv4.FlagInterface, true) == nil
	return c, nil
}

// ReadFrom reads one datagram and reports its source and receiving interface index (0 when unknown).
func (c *UDPConn) ReadFrom(b []byte) (int, netip.AddrPort, int, error) {
	if !c.ifIndexOK {
		n, src, err := c.conn.ReadFromUDPAddrPort(b)
		return n, unmap(src), 0, err
	}

	n, cm, src, err := c.pc.ReadFrom(b)
	if err != nil {
		return n, netip.AddrPort{}, 0, err
	}
	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}
	var from netip.AddrPort
	if udpAddr, ok := src.(*net.UDPAddr); ok {
		from = unmap(udpAddr.AddrPort())
	}
	return n, from, ifIndex, nil
}

// WriteTo sends one datagram.
func (c *UDPConn) WriteTo(b []byte, dst netip.AddrPort) error {
	_, err := c.conn.WriteToUDPAddrPort(b, dst)
	return err
}

func (c *UDPConn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

func (c *UDPConn) Close() error { return c.conn.Close() }

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
