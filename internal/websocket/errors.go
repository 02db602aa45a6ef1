package websocket

import "errors"

var (
	ErrClientQueueFull    = errors.New("client message queue is full")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrConnectionNotFound = errors.New("connection not found")
)
