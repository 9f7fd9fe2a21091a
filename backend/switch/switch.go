package _switch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/backend/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultSendTimeout = time.Second
)

var (
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

// Handler processes messages sent by a connected endpoint.
type Handler func(ctx context.Context, msg model.Inbound)

type endpoint struct {
	wire model.Wire
	// subscription id -> topic
	subs map[string]string
}

// Switch routes inbound messages to the handler and fans published
// messages out to every subscription of a topic.
type Switch struct {
	logger  zerolog.Logger
	mx      *sync.RWMutex
	eps     map[string]*endpoint
	handler Handler
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		eps:    make(map[string]*endpoint),
	}
}

// Handle sets the handler for inbound messages, must be called before any
// endpoint connects.
func (sw *Switch) Handle(h Handler) {
	sw.mx.Lock()
	sw.handler = h
	sw.mx.Unlock()
}

func (sw *Switch) Connect(ctx context.Context, id string, wire model.Wire) error {
	sw.mx.Lock()
	sw.eps[id] = &endpoint{wire: wire, subs: make(map[string]string)}
	handler := sw.handler
	sw.mx.Unlock()

	sw.logger.Debug().Str("endpoint", id).Msg("endpoint connected")
	go sw.forwardInbound(ctx, id, wire.RX, handler)
	return nil
}

func (sw *Switch) Disconnect(id string) error {
	sw.mx.Lock()
	delete(sw.eps, id)
	sw.mx.Unlock()

	sw.logger.Debug().Str("endpoint", id).Msg("endpoint disconnected")
	return nil
}

func (sw *Switch) Subscribe(id, subID, topic string) error {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	ep, ok := sw.eps[id]
	if !ok {
		return ErrUnknownEndpoint
	}
	ep.subs[subID] = topic
	sw.logger.Trace().Str("endpoint", id).Str("topic", topic).Msg("subscribed")
	return nil
}

func (sw *Switch) Unsubscribe(id, subID string) error {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	ep, ok := sw.eps[id]
	if !ok {
		return ErrUnknownEndpoint
	}
	delete(ep.subs, subID)
	return nil
}

func (sw *Switch) forwardInbound(ctx context.Context, id string, rx <-chan model.Inbound, handler Handler) {
fwdLoop:
	for {
		select {
		case <-ctx.Done():
			break fwdLoop
		case msg := <-rx:
			switch {
			case msg.SRC == "":
				sw.logger.Error().Str("endpoint", id).Msg("message with empty src")
			case handler == nil:
				sw.logger.Debug().
					Str("endpoint", id).
					Str("destination", msg.Destination).
					Msg("message dropped, no handler")
			default:
				handler(ctx, msg)
			}
		}
	}
}

type target struct {
	endpoint string
	subID    string
	tx       chan<- model.Delivery
}

// Publish delivers body to every subscription of topic and returns how many
// subscriptions received it.
func (sw *Switch) Publish(ctx context.Context, topic string, body []byte) int {
	sw.mx.RLock()
	var targets []target
	for id, ep := range sw.eps {
		for subID, t := range ep.subs {
			if t == topic {
				targets = append(targets, target{endpoint: id, subID: subID, tx: ep.wire.TX})
			}
		}
	}
	sw.mx.RUnlock()

	logger := sw.logger.With().Str("topic", topic).Logger()
	sent := 0
	for _, t := range targets {
		d := model.Delivery{
			Subscription: t.subID,
			Destination:  topic,
			MessageID:    uuid.NewString(),
			Body:         body,
		}
		ok, canceled := send(ctx, d, t.tx, &logger)
		if canceled {
			break
		}
		if ok {
			sent++
		} else {
			logger.Error().Str("endpoint", t.endpoint).Msg("dead endpoint")
		}
	}
	if sent == 0 {
		logger.Trace().Msg("publish did not reach anyone")
	}
	return sent
}

func send(ctx context.Context, d model.Delivery, tx chan<- model.Delivery, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultSendTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
	case tx <- d:
		logger.Trace().Str("subscription", d.Subscription).Msg("message forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
