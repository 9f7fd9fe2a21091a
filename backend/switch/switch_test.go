package _switch

import (
	"context"
	"testing"
	"time"

	"github.com/dupuishugo80/ranked4/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(wire model.Wire) <-chan model.Delivery {
	out := make(chan model.Delivery, 16)
	go func() {
		for d := range wire.TX {
			out <- d
		}
	}()
	return out
}

func TestSwitch_PublishToSubscribers(t *testing.T) {
	logger := zerolog.Nop()
	sw := NewSwitch(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := model.NewWire(), model.NewWire()
	require.NoError(t, sw.Connect(ctx, "a", a))
	require.NoError(t, sw.Connect(ctx, "b", b))
	require.NoError(t, sw.Subscribe("a", "sub-0", "/topic/game/1"))
	require.NoError(t, sw.Subscribe("b", "sub-7", "/topic/lobby"))
	outA := drain(a)

	assert.Equal(t, 1, sw.Publish(ctx, "/topic/game/1", []byte(`{}`)))

	d := <-outA
	assert.Equal(t, "sub-0", d.Subscription)
	assert.Equal(t, "/topic/game/1", d.Destination)
	assert.NotEmpty(t, d.MessageID)
	assert.JSONEq(t, `{}`, string(d.Body))

	require.NoError(t, sw.Unsubscribe("a", "sub-0"))
	assert.Equal(t, 0, sw.Publish(ctx, "/topic/game/1", []byte(`{}`)))

	assert.ErrorIs(t, sw.Subscribe("c", "sub-0", "/topic/lobby"), ErrUnknownEndpoint)
}

func TestSwitch_DeadEndpoint(t *testing.T) {
	logger := zerolog.Nop()
	sw := NewSwitch(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// nobody reads from TX
	require.NoError(t, sw.Connect(ctx, "a", model.NewWire()))
	require.NoError(t, sw.Subscribe("a", "sub-0", "/topic/lobby"))

	start := time.Now()
	assert.Equal(t, 0, sw.Publish(ctx, "/topic/lobby", []byte(`{}`)))
	assert.GreaterOrEqual(t, time.Since(start), defaultSendTimeout)
}

func TestSwitch_InboundReachesHandler(t *testing.T) {
	logger := zerolog.Nop()
	sw := NewSwitch(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan model.Inbound, 1)
	sw.Handle(func(_ context.Context, msg model.Inbound) {
		got <- msg
	})
	wire := model.NewWire()
	require.NoError(t, sw.Connect(ctx, "a", wire))

	wire.RX <- model.Inbound{SRC: "u1", Destination: "/app/lobby.register", Body: []byte(`{}`)}
	select {
	case msg := <-got:
		assert.Equal(t, "u1", msg.SRC)
		assert.Equal(t, "/app/lobby.register", msg.Destination)
	case <-time.After(time.Second):
		t.Fatal("message not handled")
	}

	require.NoError(t, sw.Disconnect("a"))
	assert.Equal(t, 0, sw.Publish(ctx, "/topic/lobby", nil))
}
