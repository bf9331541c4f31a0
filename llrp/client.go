/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	client.go: LLRP reader client connection
*/
package llrp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool/v2"

	"github.com/tagspot/tagspot/common"
)

const (
	// DefaultPort is the IANA-assigned LLRP port.
	DefaultPort = 5084

	dialTimeout     = 3 * time.Second
	transactTimeout = 5 * time.Second
)

// Client is one LLRP connection to a reader. Reports are delivered serially
// on the read-loop goroutine through the OnReports callback; the callback
// must not block for long or keepalives will go unanswered.
type Client struct {
	host string
	port int
	cfg  Config

	mu     sync.Mutex
	conn   net.Conn
	msgID  uint32
	closed *abool.AtomicBool

	reportFn     func([]TagReport)
	disconnectFn func(error)
}

func NewClient(host string, port int, cfg Config) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{
		host:   host,
		port:   port,
		cfg:    cfg,
		closed: abool.New(),
	}
}

func (c *Client) Host() string { return c.host }

// OnReports registers the tag report callback. Must be called before Connect.
func (c *Client) OnReports(fn func([]TagReport)) {
	c.reportFn = fn
}

// OnDisconnect registers a callback fired once when the read loop dies for
// any reason other than Close.
func (c *Client) OnDisconnect(fn func(error)) {
	c.disconnectFn = fn
}

func (c *Client) nextID() uint32 {
	return atomic.AddUint32(&c.msgID, 1)
}

// Connect dials the reader, performs the LLRP handshake and, when the config
// asks for it, installs and starts the inventory ROSpec. On success the read
// loop is running and reports flow to the callback.
func (c *Client) Connect() error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port)), dialTimeout)
	if err != nil {
		return fmt.Errorf("llrp dial %s: %w", c.host, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	conn.SetReadDeadline(time.Time{})
	go c.readLoop(conn)
	return nil
}

func (c *Client) handshake(conn net.Conn) error {
	conn.SetReadDeadline(time.Now().Add(transactTimeout))

	// The reader announces itself with a READER_EVENT_NOTIFICATION carrying
	// the connection attempt result.
	first, err := readMessage(conn)
	if err != nil {
		return fmt.Errorf("llrp read reader event: %w", err)
	}
	if first.Type != MsgReaderEventNotification {
		return fmt.Errorf("llrp: expected reader event notification, got type %d", first.Type)
	}

	if err := c.transact(conn, MsgSetReaderConfig, resetReaderConfigPayload(), MsgSetReaderConfigResponse); err != nil {
		return err
	}
	if err := c.transact(conn, MsgDeleteROSpec, rospecIDPayload(0), MsgDeleteROSpecResponse); err != nil {
		return err
	}

	if !c.cfg.StartInventory {
		return nil
	}

	if err := c.transact(conn, MsgAddROSpec, buildROSpec(c.cfg), MsgAddROSpecResponse); err != nil {
		return err
	}
	if err := c.transact(conn, MsgEnableROSpec, rospecIDPayload(defaultROSpecID), MsgEnableROSpecResponse); err != nil {
		return err
	}
	if err := c.transact(conn, MsgStartROSpec, rospecIDPayload(defaultROSpecID), MsgStartROSpecResponse); err != nil {
		return err
	}
	return nil
}

// transact sends one message and reads until the matching response type.
// Reports and keepalives arriving in between are handled inline.
func (c *Client) transact(conn net.Conn, msgType uint16, payload []byte, wantType uint16) error {
	if err := writeMessage(conn, Message{Type: msgType, ID: c.nextID(), Payload: payload}); err != nil {
		return fmt.Errorf("llrp write type %d: %w", msgType, err)
	}

	conn.SetReadDeadline(time.Now().Add(transactTimeout))
	for {
		m, err := readMessage(conn)
		if err != nil {
			return fmt.Errorf("llrp await type %d: %w", wantType, err)
		}
		switch m.Type {
		case wantType:
			return statusFromResponse(m.Payload)
		case MsgErrorMessage:
			if err := statusFromResponse(m.Payload); err != nil {
				return err
			}
			return errors.New("llrp: reader sent error message")
		case MsgROAccessReport:
			c.dispatchReports(m.Payload)
		case MsgKeepalive:
			writeMessage(conn, Message{Type: MsgKeepaliveAck, ID: m.ID})
		}
	}
}

func (c *Client) readLoop(conn net.Conn) {
	for {
		m, err := readMessage(conn)
		if err != nil {
			if c.closed.IsSet() {
				return
			}
			common.Log().Debugw("llrp read loop ended", "host", c.host, "error", err)
			if c.disconnectFn != nil {
				c.disconnectFn(err)
			}
			return
		}

		switch m.Type {
		case MsgROAccessReport:
			c.dispatchReports(m.Payload)
		case MsgKeepalive:
			writeMessage(conn, Message{Type: MsgKeepaliveAck, ID: m.ID})
		case MsgReaderEventNotification:
			// Reader events after connect are informational only.
		default:
			common.Log().Debugw("llrp ignoring message", "type", m.Type, "host", c.host)
		}
	}
}

func (c *Client) dispatchReports(payload []byte) {
	reports, err := decodeROAccessReport(payload)
	if err != nil {
		common.Log().Warnw("llrp tag report decode failed", "host", c.host, "error", err)
		return
	}
	if len(reports) == 0 || c.reportFn == nil {
		return
	}
	c.reportFn(reports)
}

// Close sends CLOSE_CONNECTION best-effort and tears the socket down. Safe
// to call more than once.
func (c *Client) Close() error {
	if !c.closed.SetToIf(false, true) {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	writeMessage(conn, Message{Type: MsgCloseConnection, ID: c.nextID()})
	return conn.Close()
}
