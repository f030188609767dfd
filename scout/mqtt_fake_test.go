package scout

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is an already completed mqtt.Token
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// fakeBroker is an in-memory mqtt.Client that records publishes and lets
// tests deliver messages to subscribers.
type fakeBroker struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	subscribeErr error
	handlers     map[string]mqtt.MessageHandler
	sent         []published
}

func newFakeBroker(connected bool) *fakeBroker {
	return &fakeBroker{connected: connected, handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) deliver(topic string, payload []byte) bool {
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	if ok {
		h(b, &fakeMessage{topic: topic, payload: payload})
	}
	return ok
}

func (b *fakeBroker) messages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.sent...)
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) IsConnectionOpen() bool { return b.IsConnected() }

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return doneToken{}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return doneToken{mqtt.ErrNotConnected}
	}
	if b.publishErr != nil {
		return doneToken{b.publishErr}
	}
	data, _ := payload.([]byte)
	b.sent = append(b.sent, published{Topic: topic, Payload: data, QoS: qos, Retain: retained})
	return doneToken{}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return doneToken{b.subscribeErr}
	}
	b.handlers[topic] = cb
	return doneToken{}
}

func (b *fakeBroker) SubscribeMultiple(filters map[string]byte, cb mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		b.Subscribe(topic, qos, cb)
	}
	return doneToken{}
}

func (b *fakeBroker) Unsubscribe(topics ...string) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.handlers, t)
	}
	return doneToken{}
}

func (b *fakeBroker) AddRoute(topic string, cb mqtt.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = cb
}

func (b *fakeBroker) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
