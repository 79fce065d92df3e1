package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/jaracil/nagle"
	"github.com/nayarsystems/iotrace"
)

// t38Conn carries one T.38 session's IFP packets over a TCP connection,
// length-prefixed since IFP packets have no self-delimiting framing of
// their own on a stream transport. UDP transports (the more common T.38
// deployment) send one packet per datagram and need no framing; this
// daemon only implements the TCP path, since that is what exercises
// jaracil/nagle's raison d'être (buffered small writes over TCP hurt T.38
// pacing unless Nagle's algorithm is disabled).
type t38Conn struct {
	rw io.ReadWriteCloser
}

func dialT38(addr string, trace bool) (*t38Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return wrapT38Conn(conn, trace)
}

func acceptT38(ln net.Listener, trace bool) (*t38Conn, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	return wrapT38Conn(conn, trace)
}

func wrapT38Conn(conn net.Conn, trace bool) (*t38Conn, error) {
	var rw io.ReadWriteCloser = nagle.New(conn)
	if trace {
		rw = iotrace.New(rw, os.Stderr)
	}
	return &t38Conn{rw: rw}, nil
}

func (c *t38Conn) Close() error { return c.rw.Close() }

// writePacket sends one length-prefixed IFP packet.
func (c *t38Conn) writePacket(p []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := c.rw.Write(hdr[:]); err != nil {
		return err
	}
	_, err := c.rw.Write(p)
	return err
}

// readPacket blocks for the next length-prefixed IFP packet.
func (c *t38Conn) readPacket() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.rw, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > 1<<20 {
		return nil, fmt.Errorf("t38: implausible packet length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
