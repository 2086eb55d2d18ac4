//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=../mocks/mock_transport.go -package=mocks
package presence

// Sender is the write side of a transport. Send must not block: delivery is
// best-effort and an error only concerns that one recipient.
type Sender interface {
	Send(connID string, event EventName, payload any) error
}

// Transport terminates client connections and exposes them by opaque id.
//
// OnConnect handlers run before any message from that connection is
// dispatched. Handlers registered with OnMessage run on the connection's read
// path in arrival order. OnDisconnect handlers fire once per connection; a
// handler registered after the connection is gone fires immediately.
type Transport interface {
	Sender
	OnConnect(handler func(connID string))
	OnMessage(connID string, event EventName, handler func(payload []byte))
	OnDisconnect(connID string, handler func())
	Close(connID string) error
}
