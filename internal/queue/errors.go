package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by Receive once the queue has been closed
	// and drained.
	ErrQueueClosed = errors.New("result queue is closed")

	// ErrClientClosed is returned by producer sends after Close.
	ErrClientClosed = errors.New("queue client is closed")
)

// ResourceError reports that the underlying IPC primitive could not be
// created. The coordinator treats it as fatal: the play must not proceed.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("unable to create result queue socket at %s: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
