// Package netutil has small helpers for choosing the control API's listen
// address.
package netutil

import (
	"fmt"
	"net"
	"strconv"
)

const fallbackRange = 10

// SelectBindAddr returns preferred when it can be listened on. With
// autoFallback, the next ports on the same host are tried in order before
// giving up.
func SelectBindAddr(preferred string, autoFallback bool) (string, error) {
	ok, err := IsAddrAvailable(preferred)
	if err != nil {
		return "", err
	}
	if ok {
		return preferred, nil
	}
	if !autoFallback {
		return "", fmt.Errorf("bind address in use: %s", preferred)
	}

	host, portStr, err := net.SplitHostPort(preferred)
	if err != nil {
		return "", fmt.Errorf("invalid bind address %q: %w", preferred, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid bind port %q: %w", portStr, err)
	}

	for offset := 1; offset <= fallbackRange; offset++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port+offset))
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", fmt.Errorf("no available bind address near %s", preferred)
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
