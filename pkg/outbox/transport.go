package outbox

import "context"

// Message is one outbox row ready for a broker. Key carries the aggregate id
// so brokers that partition by key keep an aggregate's events in order.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Transport delivers messages to the configured broker.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}
