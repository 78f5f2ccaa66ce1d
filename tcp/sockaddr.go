package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"
)

func sockaddrFor(ip net.IP, port int) (int, syscall.Sockaddr) {
	if v4 := ip.To4(); v4 != nil {
		var sa syscall.SockaddrInet4
		copy(sa.Addr[:], v4)
		sa.Port = port
		return syscall.AF_INET, &sa
	}
	var sa syscall.SockaddrInet6
	copy(sa.Addr[:], ip.To16())
	sa.Port = port
	return syscall.AF_INET6, &sa
}

func newNonblockingSocket(family int) (int, error) {
	return syscall.Socket(family, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
}

// resolveAddrs looks up host into a chain of candidate IP addresses,
// replacing original_source/src/net.rs's getaddrinfo/AddrInfoIter: Go's
// resolver already returns an owned, GC-managed slice, so there is no
// iterator-frees-on-drop lifetime to manage.
func resolveAddrs(host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(context.Background(), host)
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("tcp: invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("tcp: invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
