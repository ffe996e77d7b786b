// Package netio provides the TCP transport for the session server: the
// fixed greeting handshake and JSON envelope framing over a raw socket.
package netio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tinyrpg/tinyrpg/internal/protocol"
)

// Conn wraps a TCP connection with handshake and JSON envelope handling.
// Reads are single-goroutine; writes are serialized by an internal mutex.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	dec    *json.Decoder
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for Handshake.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	reader := bufio.NewReaderSize(raw, 4096)
	return &Conn{
		raw:          raw,
		reader:       reader,
		dec:          json.NewDecoder(reader),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Handshake reads the client greeting and replies with the server
// greeting. Both greetings are exact byte strings with no framing.
//
// Precondition: no structured message has been read or written yet.
// Postcondition: on nil error the connection is ready for envelopes.
func (c *Conn) Handshake(timeout time.Duration) error {
	if timeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.raw.SetReadDeadline(time.Time{}) }()
	}

	greeting := make([]byte, len(protocol.HandshakeClient))
	if _, err := io.ReadFull(c.reader, greeting); err != nil {
		return fmt.Errorf("reading client greeting: %w", err)
	}
	if string(greeting) != protocol.HandshakeClient {
		return fmt.Errorf("unexpected client greeting %q", greeting)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.raw.Write([]byte(protocol.HandshakeServer)); err != nil {
		return fmt.Errorf("writing server greeting: %w", err)
	}
	return nil
}

// ReadRequest reads the next request envelope.
//
// Postcondition: Returns the decoded envelope, or an error (including
// io.EOF when the peer disconnects).
func (c *Conn) ReadRequest() (protocol.Request, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	var req protocol.Request
	if err := c.dec.Decode(&req); err != nil {
		return protocol.Request{}, err
	}
	return req, nil
}

// WriteResponse sends a response envelope. Safe for concurrent use.
//
// Postcondition: The encoded envelope is written to the connection.
func (c *Conn) WriteResponse(resp protocol.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	enc := json.NewEncoder(c.raw)
	return enc.Encode(resp)
}

// Close closes the underlying TCP connection.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
