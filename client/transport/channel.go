// Package transport maintains the client's single STOMP-over-WebSocket
// connection to the realtime broker.
//
// All Channel methods must be called on the client loop. Socket I/O runs on
// private goroutines that only ever hand results back through the loop, and
// every callback is tagged with the connection generation it belongs to so
// callbacks from a torn down connection are discarded.
package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/stream"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const DefaultReconnectDelay = 5 * time.Second

type (
	Config struct {
		Logger *zerolog.Logger
		Loop   *loop.Loop
		// URL is the broker websocket endpoint, e.g. ws://localhost:8080/ws.
		URL string
		// Token is sent as a bearer token on the upgrade request and in the
		// CONNECT frame.
		Token          string
		ReconnectDelay time.Duration
		Dialer         *websocket.Dialer
	}

	Channel struct {
		logger         zerolog.Logger
		loop           *loop.Loop
		dialer         *websocket.Dialer
		url            string
		host           string
		token          string
		reconnectDelay time.Duration

		state  *stream.Value[ConnectionState]
		router *router

		gen    uint64
		tx     chan *frame.Frame
		cancel context.CancelFunc

		wg *sync.WaitGroup
	}
)

func NewChannel(cfg Config) *Channel {
	ch := &Channel{
		logger:         cfg.Logger.With().Str("component", "channel").Logger(),
		loop:           cfg.Loop,
		dialer:         cfg.Dialer,
		url:            cfg.URL,
		token:          cfg.Token,
		reconnectDelay: cfg.ReconnectDelay,
		state:          stream.NewValue(StateDisconnected),
		router:         &router{},
		wg:             &sync.WaitGroup{},
	}
	if ch.dialer == nil {
		ch.dialer = newDialer()
	}
	if ch.reconnectDelay <= 0 {
		ch.reconnectDelay = DefaultReconnectDelay
	}
	if u, err := url.Parse(cfg.URL); err == nil {
		ch.host = u.Host
	}
	return ch
}

// State is the observable connection state.
func (ch *Channel) State() *stream.Value[ConnectionState] {
	return ch.state
}

// Connect starts connecting. It is a no-op unless the channel is
// disconnected. Lost connections are retried every reconnect delay until
// Disconnect.
func (ch *Channel) Connect() {
	if ch.state.Get() != StateDisconnected {
		ch.logger.Debug().Str("state", ch.state.Get().String()).Msg("connect ignored")
		return
	}
	ch.gen++
	ctx, cancel := context.WithCancel(context.Background())
	ch.cancel = cancel

	ch.wg.Add(1)
	go ch.run(ctx, ch.gen)

	ch.logger.Debug().Str("url", ch.url).Msg("connecting")
	ch.state.Set(StateConnecting)
}

// Disconnect tears the connection down. The state becomes DISCONNECTED
// before Disconnect returns, so an immediate Connect starts a fresh
// connection.
func (ch *Channel) Disconnect() {
	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}
	ch.gen++
	ch.tx = nil
	ch.router.deactivate()

	if ch.state.Get() != StateDisconnected {
		ch.logger.Info().Msg("disconnected")
		ch.state.Set(StateDisconnected)
	}
}

// Wait blocks until the goroutines of every connection torn down by
// Disconnect are gone. It must not be called from the loop.
func (ch *Channel) Wait() {
	ch.wg.Wait()
}

// Subscribe registers handler for messages on topic. The broker subscription
// is shared by all handlers of a topic and survives reconnects. The returned
// function removes the handler, it is safe to call more than once.
func (ch *Channel) Subscribe(topic string, handler func(Message)) func() {
	sub, hid, created := ch.router.add(topic, handler)
	if created && ch.tx != nil {
		ch.subscribe(sub)
	}
	ch.logger.Debug().Str("topic", topic).Msg("subscribed")

	subscribed := true
	return func() {
		if !subscribed {
			return
		}
		subscribed = false

		removed := ch.router.remove(topic, hid)
		if removed == nil {
			return
		}
		if removed.active && ch.tx != nil {
			ch.enqueue(unsubscribeFrame(removed.id))
		}
		ch.logger.Debug().Str("topic", topic).Msg("unsubscribed")
	}
}

// Topics lists the topics with at least one handler.
func (ch *Channel) Topics() []string {
	return ch.router.topics()
}

// Publish sends payload as JSON to destination. Messages published while
// not connected are dropped with a warning.
func (ch *Channel) Publish(destination string, payload any) {
	if ch.state.Get() != StateConnected || ch.tx == nil {
		ch.logger.Warn().Str("destination", destination).Msg("not connected, message dropped")
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		ch.logger.Error().Err(err).Str("destination", destination).Msg("failed to marshall outgoing message")
		return
	}
	ch.enqueue(sendFrame(destination, body))
}

func (ch *Channel) subscribe(sub *topicSub) {
	if ch.enqueue(subscribeFrame(sub.id, sub.topic)) {
		sub.active = true
	}
}

func (ch *Channel) enqueue(f *frame.Frame) bool {
	select {
	case ch.tx <- f:
		return true
	default:
		ch.logger.Warn().
			Str("command", f.Command).
			Str("destination", f.Header.Get(frame.Destination)).
			Msg("send queue is full, frame dropped")
		return false
	}
}

// post runs fn on the loop unless the connection generation changed.
func (ch *Channel) post(gen uint64, fn func()) {
	ch.loop.Post(func() {
		if gen != ch.gen {
			return
		}
		fn()
	})
}

func (ch *Channel) run(ctx context.Context, gen uint64) {
	defer ch.wg.Done()

	logger := ch.logger.With().Uint64("connection", gen).Logger()
	retry := time.NewTimer(0)
	defer retry.Stop()

RunLoop:
	for {
		select {
		case <-ctx.Done():
			break RunLoop
		case <-retry.C:
		}

		conn, err := ch.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break RunLoop
			}
			logger.Warn().Err(err).Dur("retryIn", ch.reconnectDelay).Msg("connect failed")
			retry.Reset(ch.reconnectDelay)
			continue
		}

		tx := make(chan *frame.Frame, defaultSendQueueSize)
		ch.post(gen, func() { ch.onConnected(tx) })
		ch.serve(ctx, conn, gen, tx)

		if ctx.Err() != nil {
			break RunLoop
		}
		logger.Warn().Err(ErrConnectionLost).Dur("retryIn", ch.reconnectDelay).Msg("reconnecting")
		ch.post(gen, ch.onLost)
		retry.Reset(ch.reconnectDelay)
	}
	logger.Debug().Msg("connection closed")
}

func (ch *Channel) onConnected(tx chan *frame.Frame) {
	ch.tx = tx
	for _, sub := range ch.router.subs {
		ch.subscribe(sub)
	}
	ch.logger.Info().Str("url", ch.url).Msg("connected")
	ch.state.Set(StateConnected)
}

func (ch *Channel) onLost() {
	ch.tx = nil
	ch.router.deactivate()
	ch.state.Set(StateConnecting)
}

// inbound is called from the receiver goroutine.
func (ch *Channel) inbound(gen uint64, f *frame.Frame) {
	switch f.Command {
	case frame.MESSAGE:
		ch.post(gen, func() { ch.dispatch(f) })
	case frame.ERROR:
		ch.logger.Error().
			Str("message", f.Header.Get(frame.Message)).
			Bytes("body", f.Body).
			Msg("broker error")
	case frame.RECEIPT:
		ch.logger.Trace().Str("receipt", f.Header.Get(frame.ReceiptId)).Msg("receipt")
	default:
		ch.logger.Debug().Str("command", f.Command).Msg("unexpected frame")
	}
}

func (ch *Channel) dispatch(f *frame.Frame) {
	destination := f.Header.Get(frame.Destination)
	sub := ch.router.route(f.Header.Get(frame.Subscription), destination)
	if sub == nil {
		ch.logger.Trace().Str("destination", destination).Msg("message without subscriber")
		return
	}
	msg := Message{
		Topic:       sub.topic,
		Destination: destination,
		MessageID:   f.Header.Get(frame.MessageId),
		Body:        f.Body,
	}
	handlers := append([]topicHandler(nil), sub.handlers...)
	for _, h := range handlers {
		if !sub.has(h.id) {
			continue
		}
		h.fn(msg)
	}
}

func (s *topicSub) has(hid uint64) bool {
	for _, h := range s.handlers {
		if h.id == hid {
			return true
		}
	}
	return false
}
