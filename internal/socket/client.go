package socket

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eleven-am/dictation/internal/protocol"
	"github.com/eleven-am/dictation/internal/shared"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultPingTimeout = 3 * time.Second
	reachTimeout       = time.Second
	// The server waits the full request timeout on the worker before it
	// answers, so the call itself needs a little longer.
	callSlack = 2 * time.Second
)

type Client struct {
	conn        *grpc.ClientConn
	pingTimeout time.Duration
}

// Dial prepares a client for the unix socket at path. No connection is made
// until the first call.
func Dial(path string, opts ...grpc.DialOption) (*Client, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return dialTarget("unix://"+path, opts...)
}

func dialTarget(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrTransport, err)
	}
	return &Client{conn: conn, pingTimeout: defaultPingTimeout}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// IsReachable reports whether a connection to the socket can be established.
func (c *Client) IsReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()

	c.conn.Connect()
	for {
		state := c.conn.GetState()
		switch state {
		case connectivity.Ready:
			return true
		case connectivity.TransientFailure, connectivity.Shutdown:
			return false
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return false
		}
	}
}

func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	var out PingResponse
	if err := c.conn.Invoke(ctx, pingMethod, &PingRequest{}, &out); err != nil {
		return false
	}
	return out.Alive
}

func (c *Client) Transcribe(ctx context.Context, audioPath string, timeout time.Duration) protocol.Result {
	info, err := os.Stat(audioPath)
	if err != nil || !info.Mode().IsRegular() {
		return protocol.Result{Err: fmt.Sprintf("audio file not found: %s", audioPath)}
	}
	if abs, err := filepath.Abs(audioPath); err == nil {
		audioPath = abs
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+callSlack)
	defer cancel()

	req := &TranscribeRequest{AudioFile: audioPath, TimeoutMs: timeout.Milliseconds()}
	var out protocol.Result
	if err := c.conn.Invoke(ctx, transcribeMethod, req, &out); err != nil {
		return protocol.Failure(fmt.Errorf("%w: %w", shared.ErrTransport, err))
	}
	return out
}
