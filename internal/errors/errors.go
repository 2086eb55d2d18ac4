package errors

import "fmt"

var (
	ErrTooManyConnections = fmt.Errorf("too many connections")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrSendBufferFull     = fmt.Errorf("send buffer full")
	ErrUnknownConnection  = fmt.Errorf("unknown connection")
	ErrInvalidMove        = fmt.Errorf("invalid cursor move")
)
