package impl

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/encodeous/dvnode/state"
)

const maxDatagram = 65535

// UdpTransport exchanges advertisements with every neighbour over a single UDP socket.
// Datagrams are attributed to a neighbour by their source address.
type UdpTransport struct {
	conn   net.PacketConn
	peers  map[state.NodeId]netip.AddrPort
	byAddr map[netip.AddrPort]state.NodeId
	loss   map[state.NodeId]float64
	buf    []byte
}

func ListenUdp(bind netip.AddrPort, neighbours []state.NeighbourCfg) (*UdpTransport, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bind))
	if err != nil {
		return nil, err
	}
	return NewUdpTransport(conn, neighbours), nil
}

func NewUdpTransport(conn net.PacketConn, neighbours []state.NeighbourCfg) *UdpTransport {
	u := &UdpTransport{
		conn:   conn,
		peers:  make(map[state.NodeId]netip.AddrPort),
		byAddr: make(map[netip.AddrPort]state.NodeId),
		loss:   make(map[state.NodeId]float64),
		buf:    make([]byte, maxDatagram),
	}
	for _, neigh := range neighbours {
		addr := unmap(neigh.Addr)
		u.peers[neigh.Id] = addr
		u.byAddr[addr] = neigh.Id
		u.loss[neigh.Id] = neigh.Loss
	}
	return u
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func (u *UdpTransport) LocalAddr() netip.AddrPort {
	if addr, ok := u.conn.LocalAddr().(*net.UDPAddr); ok {
		return unmap(addr.AddrPort())
	}
	return netip.AddrPort{}
}

func (u *UdpTransport) SendTo(neigh state.NodeId, payload []byte) error {
	addr, ok := u.peers[neigh]
	if !ok || !addr.IsValid() {
		return fmt.Errorf("no address for neighbour %s", neigh)
	}
	if rand.Float64() < u.loss[neigh] {
		// simulated loss, the datagram silently disappears
		return nil
	}
	_, err := u.conn.WriteTo(payload, net.UDPAddrFromAddrPort(addr))
	return err
}

// Receive must not be called concurrently, the read buffer is reused
func (u *UdpTransport) Receive(timeout time.Duration) (state.Datagram, error) {
	err := u.conn.SetReadDeadline(time.Now().Add(timeout))
	if err != nil {
		return state.Datagram{}, err
	}
	n, addr, err := u.conn.ReadFrom(u.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return state.Datagram{}, state.ErrTimedOut
		}
		return state.Datagram{}, err
	}
	payload := make([]byte, n)
	copy(payload, u.buf[:n])

	from := state.NodeId(addr.String())
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		if id, ok := u.byAddr[unmap(udpAddr.AddrPort())]; ok {
			from = id
		}
	}
	return state.Datagram{From: from, Payload: payload}, nil
}

func (u *UdpTransport) Close() error {
	return u.conn.Close()
}
