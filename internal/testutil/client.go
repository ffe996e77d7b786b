// Package testutil provides test helpers including a protocol test
// client for integration testing.
package testutil

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/tinyrpg/tinyrpg/internal/protocol"
)

// Client is a simple protocol test client for integration testing.
type Client struct {
	conn net.Conn
	dec  *json.Decoder
	t    *testing.T
}

// Envelope is a decoded server response with its payload left raw for
// the test to interpret.
type Envelope struct {
	Response string          `json:"response"`
	Data     json.RawMessage `json:"data"`
}

// Dial connects to the server at addr and performs the greeting
// exchange.
//
// Postcondition: Returns a connected, handshaken Client, or fails the
// test.
func Dial(t *testing.T, addr string) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dialing %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Write([]byte(protocol.HandshakeClient)); err != nil {
		t.Fatalf("writing greeting: %v", err)
	}

	buf := make([]byte, len(protocol.HandshakeServer))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("reading greeting: %v", err)
	}
	if string(buf) != protocol.HandshakeServer {
		t.Fatalf("unexpected server greeting %q", buf)
	}

	return &Client{conn: conn, dec: json.NewDecoder(conn), t: t}
}

// Send writes a request envelope with the given name and payload.
func (c *Client) Send(request string, data any) {
	c.t.Helper()
	env := map[string]any{"request": request}
	if data != nil {
		env["data"] = data
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.t.Fatalf("marshalling request: %v", err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write(raw); err != nil {
		c.t.Fatalf("writing request: %v", err)
	}
}

// SendRaw writes bytes to the connection verbatim, bypassing envelope
// marshalling. For exercising the server's handling of broken input.
func (c *Client) SendRaw(raw []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write(raw); err != nil {
		c.t.Fatalf("writing raw bytes: %v", err)
	}
}

// Recv reads the next response envelope.
func (c *Client) Recv() Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := c.dec.Decode(&env); err != nil {
		c.t.Fatalf("reading response: %v", err)
	}
	return env
}

// RoundTrip sends a request and returns the next response.
func (c *Client) RoundTrip(request string, data any) Envelope {
	c.t.Helper()
	c.Send(request, data)
	return c.Recv()
}

// ExpectResponse sends a request and fails the test unless the reply
// carries the given response name. The payload is returned raw.
func (c *Client) ExpectResponse(request string, data any, want string) json.RawMessage {
	c.t.Helper()
	env := c.RoundTrip(request, data)
	if env.Response != want {
		c.t.Fatalf("request %s: got response %q (data %s), want %q",
			request, env.Response, env.Data, want)
	}
	return env.Data
}

// ExpectError sends a request and fails the test unless the reply is an
// ERROR carrying the given reason code.
func (c *Client) ExpectError(request string, data any, reason string) {
	c.t.Helper()
	env := c.RoundTrip(request, data)
	if env.Response != protocol.RespError {
		c.t.Fatalf("request %s: got response %q, want ERROR", request, env.Response)
	}
	var got string
	if err := json.Unmarshal(env.Data, &got); err != nil {
		c.t.Fatalf("decoding error reason: %v", err)
	}
	if got != reason {
		c.t.Fatalf("request %s: got reason %q, want %q", request, got, reason)
	}
}

// ExpectClosed fails the test unless the server closes the connection
// without sending anything further.
func (c *Client) ExpectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if n, err := c.conn.Read(buf); err == nil {
		c.t.Fatalf("connection still open, read %d bytes", n)
	}
}

// Close closes the underlying connection without sending EXIT.
func (c *Client) Close() {
	_ = c.conn.Close()
}

// Exit sends an EXIT request and closes the connection.
func (c *Client) Exit() {
	c.Send(protocol.ReqExit, nil)
	c.Close()
}
