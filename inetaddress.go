package reactor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// InetAddress wraps an IPv4 or IPv6 socket address, resolved once at
// construction so hot paths never touch the resolver.
type InetAddress struct {
	ip   net.IP
	port uint16
	ipv6 bool
}

// NewInetAddress resolves host (a hostname or numeric IP, without a port)
// and pairs it with port; host may be empty to mean the wildcard address.
func NewInetAddress(host string, port uint16) (InetAddress, error) {
	if host == "" {
		return InetAddress{ip: net.IPv4zero, port: port}, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return InetAddress{}, err
	}
	ip := ips[0]
	return InetAddress{ip: ip, port: port, ipv6: ip.To4() == nil}, nil
}

// NewLoopbackOrWildcardAddress builds an address for port without touching
// the resolver, picking the loopback address (127.0.0.1 or ::1) when
// loopbackOnly is true and the wildcard (0.0.0.0 or ::) otherwise. It suits
// building a TcpServer/Acceptor bind address when the family and whether to
// bind for local-only access are already known, where a DNS round trip
// through NewInetAddress would be unnecessary (a hostname lookup can return
// neither wildcard nor loopback).
func NewLoopbackOrWildcardAddress(port uint16, loopbackOnly bool, ipv6 bool) InetAddress {
	if ipv6 {
		ip := net.IPv6zero
		if loopbackOnly {
			ip = net.IPv6loopback
		}
		return InetAddress{ip: ip, port: port, ipv6: true}
	}
	ip := net.IPv4zero
	if loopbackOnly {
		ip = net.IPv4(127, 0, 0, 1)
	}
	return InetAddress{ip: ip, port: port}
}

// InetAddressFromSockaddr converts a raw unix.Sockaddr (as returned by
// Accept4/Getsockname) into an InetAddress.
func InetAddressFromSockaddr(sa unix.Sockaddr) (InetAddress, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return InetAddress{ip: net.IP(a.Addr[:]), port: uint16(a.Port)}, nil
	case *unix.SockaddrInet6:
		return InetAddress{ip: net.IP(a.Addr[:]), port: uint16(a.Port), ipv6: true}, nil
	default:
		return InetAddress{}, fmt.Errorf("reactor: unsupported sockaddr type %T", sa)
	}
}

func (a InetAddress) IP() net.IP    { return a.ip }
func (a InetAddress) Port() uint16  { return a.port }
func (a InetAddress) IsIPv6() bool  { return a.ipv6 }

func (a InetAddress) String() string {
	if a.ipv6 {
		return fmt.Sprintf("[%s]:%d", a.ip, a.port)
	}
	return fmt.Sprintf("%s:%d", a.ip, a.port)
}

// localAddressOf reports the local address a connected/accepted socket is
// bound to, used to populate TcpConnection.LocalAddress.
func localAddressOf(fd int) (InetAddress, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return InetAddress{}, err
	}
	return InetAddressFromSockaddr(sa)
}

// ToSockaddr converts to the unix.Sockaddr form required by Bind/Connect.
func (a InetAddress) ToSockaddr() unix.Sockaddr {
	if a.ipv6 {
		sa := &unix.SockaddrInet6{Port: int(a.port)}
		copy(sa.Addr[:], a.ip.To16())
		return sa
	}
	sa := &unix.SockaddrInet4{Port: int(a.port)}
	copy(sa.Addr[:], a.ip.To4())
	return sa
}
