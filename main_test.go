package main

import (
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
)

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

// assertUDPFree fails when addr cannot be bound by a plain socket, which is
// the case while a discovery manager still holds it.
func assertUDPFree(t *testing.T, addr string) {
	t.Helper()
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		t.Fatalf("%s is still bound: %v", addr, err)
	}
	conn.Close()
}

func TestDevicesCommandLeavesDiscoveryPortFree(t *testing.T) {
	addr := freeUDPAddr(t)

	cli := newCLI()
	cli.Root().SetArgs([]string{
		"devices", "--backends", "tone", "--json",
		"--config", filepath.Join(t.TempDir(), "absent.toml"),
		"--discovery-listen", addr,
		"--http-addr", "",
	})
	cli.Run()

	assertUDPFree(t, addr)
}

func testNodeOptions(t *testing.T) *Options {
	t.Helper()
	return &Options{
		Backends:           "tone",
		ToneFrequency:      440,
		DiscoveryListen:    freeUDPAddr(t),
		DiscoveryBroadcast: freeUDPAddr(t),
		DiscoveryPause:     "1s",
		FrameRate:          30,
		ArmTimeout:         "1s",
	}
}

func TestNode_OpenAndStop(t *testing.T) {
	opts := testNodeOptions(t)
	n := newNode(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := n.open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	n.stop()
	n.stop()

	assertUDPFree(t, opts.DiscoveryListen)
	if err := n.serve(); err != nil {
		t.Errorf("serve after stop: %v", err)
	}
}

func TestNode_StopBeforeOpen(t *testing.T) {
	opts := testNodeOptions(t)
	n := newNode(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.stop()
	if err := n.open(); err != nil {
		t.Fatalf("open after stop: %v", err)
	}
	if n.manager != nil {
		t.Error("open after stop started discovery")
	}
	assertUDPFree(t, opts.DiscoveryListen)
}
