package util

import (
	"net"
	"strconv"
	"strings"
)

func NetJoin(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// CanonicalMAC lowercases a hardware address so registry lookups are
// case-insensitive.
func CanonicalMAC(mac string) string {
	return strings.ToLower(mac)
}

// BoolValue returns the value of a *bool pointer, or the fallback if nil.
func BoolValue(ptr *bool, fallback bool) bool {
	if ptr == nil {
		return fallback
	}
	return *ptr
}
