package connection

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/yndnr/corral-go/internal/server/localserver"
)

// DefaultTimeout bounds commands whose context has no deadline.
const DefaultTimeout = 10 * time.Second

// CommandError is a command the server received and rejected.
type CommandError struct {
	Cmd     string
	State   string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s (server state %s)", e.Cmd, e.Message, e.State)
}

// SocketClient sends commands over the control socket.
type SocketClient struct {
	path string
	conn net.Conn
	br   *bufio.Reader
}

// NewSocketClient creates a new socket client.
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{path: socketPath}
}

// Connect connects to the local socket.
func (c *SocketClient) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.path, err)
	}
	c.conn = conn
	c.br = bufio.NewReader(conn)
	return nil
}

// Close closes the socket connection.
func (c *SocketClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Execute sends one command and decodes the response line. A response
// with ok=false is returned together with a *CommandError.
func (c *SocketClient) Execute(ctx context.Context, cmd string, args ...string) (*localserver.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	if c.conn == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	line := strings.Join(append([]string{cmd}, args...), " ") + "\n"
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}

	raw, err := c.br.ReadBytes('\n')
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%s: no response before deadline: %w", cmd, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("read %s response: %w", cmd, err)
	}

	var resp localserver.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", cmd, err)
	}
	if !resp.OK {
		return &resp, &CommandError{Cmd: cmd, State: resp.State, Message: resp.Error}
	}
	return &resp, nil
}
