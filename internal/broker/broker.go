// Package broker defines the message transport the coordinator speaks over,
// plus the body codec shared by every adapter. Concrete adapters live in the
// subpackages memory, mqtt, mqtt5, and kafka.
package broker

import (
	"context"

	petname "github.com/dustinkirkland/golang-petname"
)

// Content types a message body may declare. JSON is the wire default.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// Message is one transport envelope. ContentType and ContentEncoding are
// carried natively where the transport supports it and sniffed otherwise.
type Message struct {
	Topic           string
	Body            []byte
	ContentType     string
	ContentEncoding string
}

// Conn is a connection to a message broker. Subscribe returns a channel that
// closes when the context is cancelled or the connection closes; each
// subscription is consumed by exactly one worker.
type Conn interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)
	Close() error
}

// ClientID generates a readable broker client id with the given prefix.
func ClientID(prefix string) string {
	return prefix + "-" + petname.Generate(2, "-")
}
