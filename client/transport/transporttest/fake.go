// Package transporttest provides an in-memory channel for tests of code
// built on top of the transport.
package transporttest

import (
	"encoding/json"
	"fmt"

	"github.com/dupuishugo80/ranked4/client/stream"
	"github.com/dupuishugo80/ranked4/client/transport"
)

// Published is a message accepted by FakeChannel.Publish.
type Published struct {
	Destination string
	Body        []byte
}

// Decode unmarshals the published body into v.
func (p Published) Decode(v any) error {
	return json.Unmarshal(p.Body, v)
}

type fakeHandler struct {
	id uint64
	fn func(transport.Message)
}

// FakeChannel mimics transport.Channel without a network. It is not safe for
// concurrent use, drive it from the goroutine that runs the loop.
type FakeChannel struct {
	// AutoConnect makes Connect reach CONNECTED synchronously.
	AutoConnect bool

	Connects    int
	Disconnects int
	Dropped     []Published

	state     *stream.Value[transport.ConnectionState]
	published []Published
	handlers  map[string][]fakeHandler
	next      uint64
}

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{
		state:    stream.NewValue(transport.StateDisconnected),
		handlers: make(map[string][]fakeHandler),
	}
}

func (f *FakeChannel) State() *stream.Value[transport.ConnectionState] {
	return f.state
}

func (f *FakeChannel) Connect() {
	if f.state.Get() != transport.StateDisconnected {
		return
	}
	f.Connects++
	f.state.Set(transport.StateConnecting)
	if f.AutoConnect {
		f.state.Set(transport.StateConnected)
	}
}

func (f *FakeChannel) Disconnect() {
	f.Disconnects++
	if f.state.Get() != transport.StateDisconnected {
		f.state.Set(transport.StateDisconnected)
	}
}

// SetState forces the connection state, e.g. to complete a pending connect.
func (f *FakeChannel) SetState(s transport.ConnectionState) {
	f.state.Set(s)
}

func (f *FakeChannel) Subscribe(topic string, handler func(transport.Message)) func() {
	f.next++
	id := f.next
	f.handlers[topic] = append(f.handlers[topic], fakeHandler{id: id, fn: handler})

	subscribed := true
	return func() {
		if !subscribed {
			return
		}
		subscribed = false
		kept := make([]fakeHandler, 0, len(f.handlers[topic]))
		for _, h := range f.handlers[topic] {
			if h.id != id {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(f.handlers, topic)
			return
		}
		f.handlers[topic] = kept
	}
}

func (f *FakeChannel) Publish(destination string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("transporttest: marshal payload for %s: %v", destination, err))
	}
	p := Published{Destination: destination, Body: body}
	if f.state.Get() != transport.StateConnected {
		f.Dropped = append(f.Dropped, p)
		return
	}
	f.published = append(f.published, p)
}

// Deliver sends payload, marshalled to JSON, to every handler of topic.
func (f *FakeChannel) Deliver(topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("transporttest: marshal payload for %s: %v", topic, err))
	}
	f.DeliverRaw(topic, body)
}

// DeliverRaw sends body as is to every handler of topic.
func (f *FakeChannel) DeliverRaw(topic string, body []byte) {
	msg := transport.Message{Topic: topic, Destination: topic, Body: body}
	for _, h := range append([]fakeHandler(nil), f.handlers[topic]...) {
		if !f.subscribed(topic, h.id) {
			continue
		}
		h.fn(msg)
	}
}

func (f *FakeChannel) subscribed(topic string, id uint64) bool {
	for _, h := range f.handlers[topic] {
		if h.id == id {
			return true
		}
	}
	return false
}

// Subscribed reports whether topic has at least one handler.
func (f *FakeChannel) Subscribed(topic string) bool {
	return len(f.handlers[topic]) > 0
}

// Handlers returns the number of handlers registered on topic.
func (f *FakeChannel) Handlers(topic string) int {
	return len(f.handlers[topic])
}

// Topics returns the number of topics with handlers.
func (f *FakeChannel) Topics() int {
	return len(f.handlers)
}

func (f *FakeChannel) Published() []Published {
	return append([]Published(nil), f.published...)
}

// PublishedTo returns the messages published to destination, in order.
func (f *FakeChannel) PublishedTo(destination string) []Published {
	var out []Published
	for _, p := range f.published {
		if p.Destination == destination {
			out = append(out, p)
		}
	}
	return out
}
