package queue

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/aatumaykin/playq/internal/retry"
	"github.com/aatumaykin/playq/internal/task"
)

// Client is the producer side of the result queue, held by worker processes.
// All sends are serialized on one connection, so a worker's messages arrive
// in the order it sent them.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	enc      *json.Encoder
	workerID int
	closed   bool
}

// Dial connects a producer to the queue socket. The coordinator creates the
// socket slightly before or after workers start, so the connect is retried
// with backoff.
func Dial(ctx context.Context, socketPath string, workerID int, cfg retry.Config) (*Client, error) {
	var conn net.Conn

	err := retry.Do(ctx, func() error {
		c, err := net.Dial("unix", socketPath)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:     conn,
		enc:      json.NewEncoder(conn),
		workerID: workerID,
	}, nil
}

// SendTaskResult converts a raw result to wire form and enqueues it.
func (c *Client) SendTaskResult(r *task.RawTaskResult) error {
	return c.send(Message{
		Kind:       KindTaskResult,
		TaskResult: r.AsWire(),
	})
}

// SendCallback enqueues a named-method callback invocation. The raw result,
// if any, is carried in wire form.
func (c *Client) SendCallback(method string, r *task.RawTaskResult, args ...any) error {
	inv := &CallbackInvocation{Method: method, Args: args}
	if r != nil {
		inv.TaskResult = r.AsWire()
	}
	return c.send(Message{Kind: KindCallback, Callback: inv})
}

// SendDisplay forwards a diagnostic record to the coordinator's logger.
func (c *Client) SendDisplay(level, message string, fields map[string]any) error {
	return c.send(Message{
		Kind:    KindDisplay,
		Display: &DisplayRequest{Level: level, Message: message, Fields: fields},
	})
}

// SendPrompt requests interactive input from the coordinator's UI layer.
func (c *Client) SendPrompt(p PromptRequest) error {
	p.WorkerID = c.workerID
	return c.send(Message{Kind: KindPrompt, Prompt: &p})
}

func (c *Client) send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	return c.enc.Encode(m)
}

// Close closes the producer connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
