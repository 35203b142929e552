package config

import (
	"fmt"
	"net"
	"net/netip"
)

// getLocalIP returns the first non-loopback IPv4 address of the host, optionally limited to localNet.
func getLocalIP(localNet string) (netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return netip.Addr{}, err
	}
	var netw *netip.Prefix
	if localNet != "" {
		nw, err := netip.ParsePrefix(localNet)
		if err != nil {
			return netip.Addr{}, err
		}
		netw = &nw
	}
	for _, i := range ifaces {
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ip, ok := matchAddr(a, netw); ok {
				return ip, nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("no local interface found")
}

func matchAddr(a net.Addr, netw *netip.Prefix) (netip.Addr, bool) {
	var ip net.IP
	switch v := a.(type) {
	case *net.IPAddr:
		ip = v.IP
	case *net.IPNet:
		ip = v.IP
	default:
		return netip.Addr{}, false
	}
	if ip.To4() == nil {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip.To4())
	if !ok || addr.IsLoopback() {
		return netip.Addr{}, false
	}
	if netw != nil && !netw.Contains(addr) {
		return netip.Addr{}, false
	}
	return addr, true
}
