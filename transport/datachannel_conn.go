// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"time"
)

var _ net.Conn = (*DataChannelConn)(nil)

// DataChannelConn adapts a detached data channel to net.Conn. SCTP
// reassembles messages, so the channel behaves as a byte stream.
//
// The stream has no native deadlines. When a deadline passes the
// stream is closed, which unblocks pending I/O; Read and Write then
// report os.ErrDeadlineExceeded. A connection whose deadline fired is
// permanently broken, matching how sessions treat timeouts.
type DataChannelConn struct {
	rwc        io.ReadWriteCloser
	localLabel string
	peerLabel  string

	mu       sync.Mutex
	timers   [2]*time.Timer // read, write
	timedOut bool
}

const (
	readTimer  = 0
	writeTimer = 1
)

// NewDataChannelConn wraps rwc. The labels name the two ends in
// LocalAddr and RemoteAddr.
func NewDataChannelConn(rwc io.ReadWriteCloser, localLabel, peerLabel string) *DataChannelConn {
	return &DataChannelConn{rwc: rwc, localLabel: localLabel, peerLabel: peerLabel}
}

func (c *DataChannelConn) Read(buffer []byte) (int, error) {
	n, err := c.rwc.Read(buffer)
	return n, c.translate(err)
}

func (c *DataChannelConn) Write(buffer []byte) (int, error) {
	n, err := c.rwc.Write(buffer)
	return n, c.translate(err)
}

func (c *DataChannelConn) translate(err error) error {
	if err == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timedOut {
		return os.ErrDeadlineExceeded
	}
	return err
}

func (c *DataChannelConn) Close() error {
	c.mu.Lock()
	for index, timer := range c.timers {
		if timer != nil {
			timer.Stop()
			c.timers[index] = nil
		}
	}
	c.mu.Unlock()
	return c.rwc.Close()
}

func (c *DataChannelConn) LocalAddr() net.Addr  { return dataChannelAddr(c.localLabel) }
func (c *DataChannelConn) RemoteAddr() net.Addr { return dataChannelAddr(c.peerLabel) }

func (c *DataChannelConn) SetDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTimerLocked(readTimer, deadline)
	c.setTimerLocked(writeTimer, deadline)
	return nil
}

func (c *DataChannelConn) SetReadDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTimerLocked(readTimer, deadline)
	return nil
}

func (c *DataChannelConn) SetWriteDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTimerLocked(writeTimer, deadline)
	return nil
}

func (c *DataChannelConn) setTimerLocked(which int, deadline time.Time) {
	if c.timers[which] != nil {
		c.timers[which].Stop()
		c.timers[which] = nil
	}
	if deadline.IsZero() || c.timedOut {
		return
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		c.expireLocked()
		return
	}
	c.timers[which] = time.AfterFunc(remaining, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.expireLocked()
	})
}

func (c *DataChannelConn) expireLocked() {
	if c.timedOut {
		return
	}
	c.timedOut = true
	c.rwc.Close()
}

// dataChannelAddr is the synthetic address of a data channel end.
type dataChannelAddr string

func (a dataChannelAddr) Network() string { return "webrtc" }
func (a dataChannelAddr) String() string  { return string(a) }
