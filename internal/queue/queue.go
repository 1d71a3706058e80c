// Package queue implements the multi-producer/single-consumer result queue
// connecting worker processes to the coordinator. Transport is a unix-domain
// socket carrying newline-delimited JSON messages; each producer connection
// is drained by its own goroutine, so messages from one worker are observed
// in the order that worker enqueued them. No ordering is guaranteed across
// different workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/aatumaykin/playq/internal/logger"
)

// DefaultBufferSize bounds how many undelivered messages the consumer holds.
const DefaultBufferSize = 256

// ResultQueue is the consumer side of the queue. It owns the socket listener
// and delivers messages in FIFO order per producer connection.
type ResultQueue struct {
	logger     *logger.Logger
	listener   net.Listener
	socketPath string
	metrics    *Metrics

	messages chan Message
	done     chan struct{}

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

// Listen creates the queue socket and starts accepting producers. Failure to
// create the socket is wrapped in a ResourceError; callers must treat it as
// fatal.
func Listen(socketPath string, bufferSize int, log *logger.Logger, metrics *Metrics) (*ResultQueue, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	// A stale socket from a crashed run blocks the listen call.
	if _, err := os.Stat(socketPath); err == nil {
		os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, &ResourceError{Path: socketPath, Err: err}
	}

	q := &ResultQueue{
		logger:     log,
		listener:   listener,
		socketPath: socketPath,
		metrics:    metrics,
		messages:   make(chan Message, bufferSize),
		done:       make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}

	go q.acceptLoop()

	log.Info("result queue listening", logger.Field{Key: "socket", Value: socketPath})
	return q, nil
}

// SocketPath returns the path producers dial.
func (q *ResultQueue) SocketPath() string {
	return q.socketPath
}

// Receive blocks until the next message of any kind arrives, the context is
// cancelled, or the queue is closed.
func (q *ResultQueue) Receive(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-q.messages:
		if !ok {
			return nil, ErrQueueClosed
		}
		return &msg, nil
	}
}

// Close stops accepting producers, closes live connections, and releases the
// socket. Undelivered buffered messages are discarded.
func (q *ResultQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.listener.Close()
	for conn := range q.conns {
		conn.Close()
	}
	q.mu.Unlock()

	q.wg.Wait()
	close(q.messages)
	os.Remove(q.socketPath)

	q.logger.Info("result queue closed", logger.Field{Key: "socket", Value: q.socketPath})
	return nil
}

func (q *ResultQueue) acceptLoop() {
	for {
		conn, err := q.listener.Accept()
		if err != nil {
			select {
			case <-q.done:
				return
			default:
				q.logger.Error("failed to accept queue producer", err)
				continue
			}
		}

		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			conn.Close()
			return
		}
		q.conns[conn] = struct{}{}
		q.wg.Add(1)
		q.mu.Unlock()

		go q.handleProducer(conn)
	}
}

// handleProducer drains one producer connection. A single goroutine per
// connection preserves that producer's enqueue order.
func (q *ResultQueue) handleProducer(conn net.Conn) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		delete(q.conns, conn)
		q.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	for {
		var msg Message
		if err := decoder.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !isClosedConn(err) {
				q.logger.Warn("malformed queue message, dropping producer",
					logger.Field{Key: "error", Value: err})
			}
			return
		}

		q.metrics.incReceived(msg.Kind)

		select {
		case q.messages <- msg:
		case <-q.done:
			return
		}
	}
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
