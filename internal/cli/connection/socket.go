package connection

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// SocketResult is one decoded response line from the management socket.
type SocketResult struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// SocketClient talks to the local management Unix socket.
type SocketClient struct {
	path string
	conn net.Conn
	r    *bufio.Reader
}

// NewSocketClient creates a new socket client.
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{path: socketPath}
}

// Connect dials the socket.
func (c *SocketClient) Connect() error {
	conn, err := net.DialTimeout("unix", c.path, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.path, err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

// Close closes the socket connection.
func (c *SocketClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Execute sends one command line and decodes the JSON response line.
func (c *SocketClient) Execute(cmd string) (*SocketResult, error) {
	if c.conn == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}

	if _, err := c.conn.Write([]byte(strings.TrimSpace(cmd) + "\n")); err != nil {
		return nil, err
	}

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	var res SocketResult
	if err := json.Unmarshal(line, &res); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if !res.OK && res.Error != "" {
		return &res, fmt.Errorf("%s", res.Error)
	}
	return &res, nil
}
