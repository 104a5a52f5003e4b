package reactorio

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// AddressFamily tags an [Address] with its protocol family.
type AddressFamily int

const (
	IPv4 AddressFamily = iota
	IPv6
)

// Address is a protocol-family-tagged endpoint: an IP address plus a port.
type Address struct {
	Family AddressFamily
	IP     netip.Addr
	Port   int
}

// AnyIPv4 returns the IPv4 "any" address (0.0.0.0) on the given port,
// suitable for a listening socket that accepts connections on every
// interface.
func AnyIPv4(port int) Address {
	return Address{Family: IPv4, IP: netip.IPv4Unspecified(), Port: port}
}

// AnyIPv6 is the IPv6 equivalent of [AnyIPv4].
func AnyIPv6(port int) Address {
	return Address{Family: IPv6, IP: netip.IPv6Unspecified(), Port: port}
}

// LocalhostIPv4 returns the IPv4 loopback address (127.0.0.1) on the
// given port.
func LocalhostIPv4(port int) Address {
	return Address{Family: IPv4, IP: netip.MustParseAddr("127.0.0.1"), Port: port}
}

// LocalhostIPv6 is the IPv6 equivalent of [LocalhostIPv4].
func LocalhostIPv6(port int) Address {
	return Address{Family: IPv6, IP: netip.MustParseAddr("::1"), Port: port}
}

// ParseAddress resolves host (a hostname, "localhost", or a literal IP)
// and pairs it with port, using the system resolver for non-literal hosts.
func ParseAddress(ctx context.Context, host string, port int) (Address, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addressFromNetip(addr, port), nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return Address{}, Wrap(err, fmt.Sprintf("resolving %q", host))
	}
	if len(ips) == 0 {
		return Address{}, NewError(CategoryNotFound, fmt.Sprintf("no addresses for %q", host))
	}

	addr, ok := netip.AddrFromSlice(ips[0].IP)
	if !ok {
		return Address{}, NewError(CategoryInvalidArgument, fmt.Sprintf("could not parse resolved IP for %q", host))
	}
	return addressFromNetip(addr.Unmap(), port), nil
}

func addressFromNetip(addr netip.Addr, port int) Address {
	family := IPv4
	if addr.Is6() && !addr.Is4In6() {
		family = IPv6
	}
	return Address{Family: family, IP: addr, Port: port}
}

// String formats the address as "host:port".
func (a Address) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprint(a.Port))
}

// sockaddr translates this Address into the unix.Sockaddr the raw socket
// syscalls expect, grounded on poller_epoll.go's toSockAddr.
func (a Address) sockaddr() (domain int, sa unix.Sockaddr, err error) {
	switch a.Family {
	case IPv4:
		if !a.IP.Is4() {
			return 0, nil, NewError(CategoryInvalidArgument, "address is not IPv4")
		}
		return unix.AF_INET, &unix.SockaddrInet4{Port: a.Port, Addr: a.IP.As4()}, nil
	case IPv6:
		return unix.AF_INET6, &unix.SockaddrInet6{Port: a.Port, Addr: a.IP.As16()}, nil
	default:
		return 0, nil, NewError(CategoryInvalidArgument, "unknown address family")
	}
}

func addressFromSockaddr(sa unix.Sockaddr) (Address, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{Family: IPv4, IP: netip.AddrFrom4(v.Addr), Port: v.Port}, nil
	case *unix.SockaddrInet6:
		return Address{Family: IPv6, IP: netip.AddrFrom16(v.Addr), Port: v.Port}, nil
	default:
		return Address{}, NewError(CategoryInvalidArgument, "unsupported sockaddr type")
	}
}
