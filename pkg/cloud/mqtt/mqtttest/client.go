// Package mqtttest provides an in-memory paho.Client for tests.
package mqtttest

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/robotalks/garagedoor/pkg/cloud/mqtt"
)

// Published is a recorded publish.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client is an in-memory paho.Client. Messages are delivered only
// through Deliver, published messages are recorded.
type Client struct {
	// ConnectErr is returned by the Connect token when set.
	ConnectErr error

	lock      sync.Mutex
	connected bool
	handlers  map[string]paho.MessageHandler
	published []Published
	pubCh     chan Published
}

// NewClient creates a Client.
func NewClient() *Client {
	return &Client{
		handlers: make(map[string]paho.MessageHandler),
		pubCh:    make(chan Published, 16),
	}
}

// IsConnected implements paho.Client.
func (c *Client) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

// IsConnectionOpen implements paho.Client.
func (c *Client) IsConnectionOpen() bool {
	return c.IsConnected()
}

// Connect implements paho.Client.
func (c *Client) Connect() paho.Token {
	if c.ConnectErr != nil {
		return &Token{Err: c.ConnectErr}
	}
	c.lock.Lock()
	c.connected = true
	c.lock.Unlock()
	return &Token{}
}

// Disconnect implements paho.Client.
func (c *Client) Disconnect(quiesce uint) {
	c.lock.Lock()
	c.connected = false
	c.lock.Unlock()
}

// Publish implements paho.Client.
func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	default:
		return &Token{Err: fmt.Errorf("unsupported payload type %T", payload)}
	}
	pub := Published{Topic: topic, QoS: qos, Retained: retained, Payload: data}
	c.lock.Lock()
	c.published = append(c.published, pub)
	c.lock.Unlock()
	select {
	case c.pubCh <- pub:
	default:
	}
	return &Token{}
}

// Subscribe implements paho.Client.
func (c *Client) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.lock.Lock()
	c.handlers[topic] = callback
	c.lock.Unlock()
	return &Token{}
}

// SubscribeMultiple implements paho.Client.
func (c *Client) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	c.lock.Lock()
	for topic := range filters {
		c.handlers[topic] = callback
	}
	c.lock.Unlock()
	return &Token{}
}

// Unsubscribe implements paho.Client.
func (c *Client) Unsubscribe(topics ...string) paho.Token {
	c.lock.Lock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	c.lock.Unlock()
	return &Token{}
}

// AddRoute implements paho.Client.
func (c *Client) AddRoute(topic string, callback paho.MessageHandler) {
	c.Subscribe(topic, 0, callback)
}

// OptionsReader implements paho.Client.
func (c *Client) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

// Subscribed reports whether a filter is subscribed.
func (c *Client) Subscribed(filter string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, ok := c.handlers[filter]
	return ok
}

// Deliver sends a message to the matching subscriptions.
// It returns the number of subscriptions which received it.
func (c *Client) Deliver(topic string, payload []byte) int {
	var handlers []paho.MessageHandler
	c.lock.Lock()
	for filter, h := range c.handlers {
		if mqtt.MatchTopic(topic, filter) {
			handlers = append(handlers, h)
		}
	}
	c.lock.Unlock()
	msg := &Message{TopicName: topic, Data: payload}
	for _, h := range handlers {
		h(c, msg)
	}
	return len(handlers)
}

// Published returns all recorded publishes.
func (c *Client) Published() []Published {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]Published(nil), c.published...)
}

// NextPublished waits for the next publish.
func (c *Client) NextPublished(timeout time.Duration) (Published, bool) {
	select {
	case pub := <-c.pubCh:
		return pub, true
	case <-time.After(timeout):
		return Published{}, false
	}
}

// Token is a completed paho.Token.
type Token struct {
	Err error
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Wait implements paho.Token.
func (t *Token) Wait() bool { return true }

// WaitTimeout implements paho.Token.
func (t *Token) WaitTimeout(time.Duration) bool { return true }

// Done implements paho.Token.
func (t *Token) Done() <-chan struct{} { return closedCh }

// Error implements paho.Token.
func (t *Token) Error() error { return t.Err }

// Message implements paho.Message.
type Message struct {
	TopicName string
	Data      []byte
}

// Duplicate implements paho.Message.
func (m *Message) Duplicate() bool { return false }

// Qos implements paho.Message.
func (m *Message) Qos() byte { return 0 }

// Retained implements paho.Message.
func (m *Message) Retained() bool { return false }

// Topic implements paho.Message.
func (m *Message) Topic() string { return m.TopicName }

// MessageID implements paho.Message.
func (m *Message) MessageID() uint16 { return 0 }

// Payload implements paho.Message.
func (m *Message) Payload() []byte { return m.Data }

// Ack implements paho.Message.
func (m *Message) Ack() {}
