package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RequestID is a JSON-RPC request id. Clients may send a string or a
// number; numbers are echoed back as strings.
type RequestID string

// UnmarshalJSON accepts a JSON string or number
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RequestID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number")
	}
	*id = RequestID(n.String())
	return nil
}

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID      RequestID              `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	JSONRPC string                 `json:"jsonrpc"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      RequestID   `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error. For ApplicationError the
// message is the wire code, e.g. NOT_RECORDING or concat_failed.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// EventMessage represents a server-initiated event
type EventMessage struct {
	Type      string      `json:"type,omitempty"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// AuthChallenge represents an authentication challenge message
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// RequestHandler handles one RPC method call
type RequestHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// RPC error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	ApplicationError       = -32000
	AuthenticationRequired = -32001
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
	RequestTimeout         = -32008
)

// DefaultWriteTimeout bounds one message write to a client
const DefaultWriteTimeout = 10 * time.Second

// Client represents a connected WebSocket client. Conn writes go through
// WriteJSON and WriteMessage, which serialize them and apply WriteTimeout.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string
	RateLimiter *ClientRateLimiter

	// WriteTimeout defaults to DefaultWriteTimeout when zero
	WriteTimeout time.Duration

	writeMu sync.Mutex

	mu            sync.Mutex
	authenticated bool
	challenge     string
	authAttempts  int
	lastActivity  time.Time
}

// WriteJSON writes v as one JSON message
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.setWriteDeadline(); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

// WriteMessage writes one raw message
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.setWriteDeadline(); err != nil {
		return err
	}
	return c.Conn.WriteMessage(messageType, data)
}

func (c *Client) setWriteDeadline() error {
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return c.Conn.SetWriteDeadline(time.Now().Add(timeout))
}

// IsAuthenticated reports whether the client passed the challenge
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// AuthAttempts returns the number of failed authentication attempts
func (c *Client) AuthAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authAttempts
}
