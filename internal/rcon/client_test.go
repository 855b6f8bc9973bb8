package rcon

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestPacketRoundTrip(t *testing.T) {
	raw := encodePacket(requestID, packetTypeCommand, "ping")
	pkt, err := readPacket(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if pkt.Type != packetTypeCommand {
		t.Fatalf("expected type %d, got %d", packetTypeCommand, pkt.Type)
	}
	if pkt.Body != "ping" {
		t.Fatalf("expected body %q, got %q", "ping", pkt.Body)
	}
	if pkt.ID != requestID {
		t.Fatalf("expected id %d, got %d", requestID, pkt.ID)
	}
}

func TestPacketRoundTripEmptyBody(t *testing.T) {
	raw := encodePacket(requestID, packetTypeAuth, "")
	pkt, err := readPacket(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if pkt.Body != "" {
		t.Fatalf("expected empty body, got %q", pkt.Body)
	}
}

func TestReadPacketRejectsShortRead(t *testing.T) {
	raw := encodePacket(requestID, packetTypeCommand, "truncated")
	if _, err := readPacket(bytes.NewReader(raw[:len(raw)-3])); err == nil {
		t.Fatalf("expected error on truncated packet")
	}
}

func TestReadPacketRejectsBadLength(t *testing.T) {
	// Declared length below the fixed overhead is a protocol violation.
	raw := []byte{5, 0, 0, 0, 1, 2, 3, 4, 5}
	if _, err := readPacket(bytes.NewReader(raw)); err == nil {
		t.Fatalf("expected error on undersized length field")
	}
}

// fakeConsole accepts one connection, answers the auth handshake with
// authID, then echoes every command body through reply.
func fakeConsole(t *testing.T, authID int32, reply func(cmd string) string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func(nc net.Conn) {
				defer func() { _ = nc.Close() }()
				auth, err := readPacket(nc)
				if err != nil || auth.Type != packetTypeAuth {
					return
				}
				if _, err := nc.Write(encodePacket(authID, packetTypeCommand, "")); err != nil {
					return
				}
				if authID == -1 {
					return
				}
				for {
					cmd, err := readPacket(nc)
					if err != nil {
						return
					}
					if _, err := nc.Write(encodePacket(cmd.ID, packetTypeCommand, reply(cmd.Body))); err != nil {
						return
					}
				}
			}(nc)
		}
	}()
	h, p, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return h, n
}

func TestRunExecutesSingleCommand(t *testing.T) {
	host, port := fakeConsole(t, 0, func(cmd string) string { return "echo:" + cmd })
	client := NewClient(host, port, "secret", WithTimeout(2*time.Second))
	out, err := client.Run(context.Background(), "/playerinfo 123-456-789")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "echo:/playerinfo 123-456-789" {
		t.Fatalf("unexpected reply %q", out)
	}
}

func TestDialAuthRejected(t *testing.T) {
	host, port := fakeConsole(t, -1, nil)
	client := NewClient(host, port, "wrong", WithTimeout(2*time.Second))
	_, err := client.Dial(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestDialUnreachableHost(t *testing.T) {
	// Grab a port and close it again so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	h, p, _ := net.SplitHostPort(addr)
	n, _ := strconv.Atoi(p)

	client := NewClient(h, n, "secret", WithTimeout(time.Second))
	_, err = client.Dial(context.Background())
	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnError, got %v", err)
	}
}

func TestConnSupportsSequentialCommands(t *testing.T) {
	host, port := fakeConsole(t, 7, func(cmd string) string { return cmd })
	client := NewClient(host, port, "secret", WithTimeout(2*time.Second))
	conn, err := client.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	for _, cmd := range []string{"/setattr 1 growth 0", "/teleport (X=1.0,Y=2.0,Z=3.0)"} {
		out, err := conn.Execute(context.Background(), cmd)
		if err != nil {
			t.Fatalf("Execute %q: %v", cmd, err)
		}
		if out != cmd {
			t.Fatalf("expected %q back, got %q", cmd, out)
		}
	}
}
