package netutil

import (
	"net"
	"strconv"
	"testing"
)

func TestSelectBindAddrPreferredFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	got, err := SelectBindAddr(addr, false)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != addr {
		t.Fatalf("SelectBindAddr() = %q, want %q", got, addr)
	}
}

func TestSelectBindAddrBusyNoFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	if _, err := SelectBindAddr(busy.Addr().String(), false); err == nil {
		t.Fatal("want error when preferred address is busy and fallback is off")
	}
}

func TestSelectBindAddrFallsToNextPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	host, portStr, err := net.SplitHostPort(busy.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	got, err := SelectBindAddr(busy.Addr().String(), true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	gotHost, gotPortStr, err := net.SplitHostPort(got)
	if err != nil {
		t.Fatal(err)
	}
	gotPort, err := strconv.Atoi(gotPortStr)
	if err != nil {
		t.Fatal(err)
	}
	if gotHost != host || gotPort <= port || gotPort > port+fallbackRange {
		t.Fatalf("SelectBindAddr() = %q, want a nearby port above %d", got, port)
	}
}
