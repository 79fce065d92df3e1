package main

import (
	"errors"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// dtePty is a POSIX pseudo-terminal presenting the DTE side of the AT
// command interface: whatever opens the slave path (a getty-style fax
// application, minicom, or efax) talks AT commands across it exactly as it
// would to a real modem's serial port.
type dtePty struct {
	master, slave *os.File
	closed        bool
}

func (p *dtePty) Close() error {
	if p.closed {
		return nil
	}
	defer func() { p.closed = true }()
	return errors.Join(p.master.Close(), p.slave.Close())
}

// Name returns the slave-side device path to hand to the DTE application.
func (p *dtePty) Name() string {
	return p.slave.Name()
}

func (p *dtePty) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

func (p *dtePty) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

func (p *dtePty) Fd() uintptr {
	return p.master.Fd()
}

// dteDisconnected reports whether the DTE application has closed its end,
// so the daemon can tear the session down instead of spinning on a dead
// pty.
func (p *dtePty) dteDisconnected() (bool, error) {
	fds := []unix.PollFd{{
		Fd:     int32(p.master.Fd()),
		Events: unix.POLLOUT,
	}}
	if _, err := unix.Poll(fds, 0); err != nil {
		return false, err
	}
	return (fds[0].Revents & unix.POLLHUP) != 0, nil
}

func newDtePty() (*dtePty, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	return &dtePty{master: master, slave: slave}, nil
}
