package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 1 << 20
	defaultWebSocketHandshakeTimeout   = 5 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	defaultStompHandshakeTimeout = 5 * time.Second

	// the broker gets the difference of the two to answer a ping
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	defaultSendQueueSize = 64
)

var (
	ErrDial           = errors.New("websocket dial failed")
	ErrHandshake      = errors.New("stomp handshake failed")
	ErrBrokerRejected = errors.New("broker rejected connection")
	ErrConnectionLost = errors.New("connection lost")
)

func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultWebSocketHandshakeTimeout,
		ReadBufferSize:   defaultWebsocketReadBufferSize,
		WriteBufferSize:  defaultWebsocketWriteBufferSize,
		Subprotocols:     []string{stompSubprotocol},
	}
}

// dial opens the websocket and performs the STOMP CONNECT exchange.
func (ch *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	if ch.token != "" {
		hdr.Set(headerAuthorization, "Bearer "+ch.token)
	}
	conn, _, err := ch.dialer.DialContext(ctx, ch.url, hdr)
	if err != nil {
		return nil, errors.Join(ErrDial, err)
	}
	if err = stompHandshake(conn, ch.host, ch.token); err != nil {
		webSocketCloser(conn, nil, &ch.logger)
		return nil, errors.Join(ErrHandshake, err)
	}
	return conn, nil
}

func stompHandshake(conn *websocket.Conn, host, token string) error {
	if err := writeFrame(conn, connectFrame(host, token)); err != nil {
		return err
	}
	if err := conn.SetReadDeadline(time.Now().Add(defaultStompHandshakeTimeout)); err != nil {
		return err
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		frames, err := decodeFrames(msg)
		if err != nil {
			return err
		}
		for _, f := range frames {
			switch f.Command {
			case frame.CONNECTED:
				return nil
			case frame.ERROR:
				return fmt.Errorf("%w: %s", ErrBrokerRejected, f.Header.Get(frame.Message))
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f *frame.Frame) error {
	b, err := encodeFrame(f)
	if err != nil {
		return err
	}
	if err = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// serve pumps frames over an established connection until it breaks or ctx
// is cancelled.
func (ch *Channel) serve(ctx context.Context, conn *websocket.Conn, gen uint64, tx chan *frame.Frame) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvWg, sendWg := &sync.WaitGroup{}, &sync.WaitGroup{}
	recvWg.Add(1)
	sendWg.Add(1)
	go func() {
		webSocketReceiver(ctx, recvWg, conn, func(f *frame.Frame) { ch.inbound(gen, f) }, &ch.logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, sendWg, conn, tx, &ch.logger)
		cancel()
	}()

	<-ctx.Done()
	// single writer: closer only runs once the sender is gone,
	// closing the conn then unblocks the receiver
	sendWg.Wait()
	webSocketCloser(conn, tx, &ch.logger)
	recvWg.Wait()
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan *frame.Frame,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")

		case f := <-tx:
			if wsErr := writeFrame(conn, f); wsErr != nil {
				logger.Error().Err(wsErr).Str("command", f.Command).Msg("failed to write outgoing frame")
				break SendLoop
			}
			logger.Trace().Str("command", f.Command).Msg("frame sent")
		}
	}
}

func webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	deliver func(*frame.Frame),
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if ctx.Err() != nil {
					break RecvLoop
				}
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Warn().Err(wsErr).Msg("connection closed by broker")
				} else {
					logger.Error().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}
			// any inbound traffic proves liveness
			if wsErr = readDeadLineFunc(defaultPongWait); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket read deadline")
				break RecvLoop
			}

			frames, wsErr := decodeFrames(msg)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to decode incoming frame")
			}
			for _, f := range frames {
				deliver(f)
			}
		}
	}
}

// webSocketCloser flushes frames still queued in pending, says DISCONNECT and
// closes the connection. pending may be nil.
func webSocketCloser(conn *websocket.Conn, pending <-chan *frame.Frame, logger *zerolog.Logger) {
	if pending != nil {
	FlushLoop:
		for {
			select {
			case f := <-pending:
				if err := writeFrame(conn, f); err != nil {
					break FlushLoop
				}
			default:
				break FlushLoop
			}
		}
		if err := writeFrame(conn, disconnectFrame()); err != nil {
			logger.Debug().Err(err).Msg("failed to send disconnect frame")
		}
	}

	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Debug().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if wsErr != nil {
			logger.Debug().Err(wsErr).Msg("failed to send websocket close message")
		}
	}
	if wsErr = conn.Close(); wsErr != nil {
		logger.Debug().Err(wsErr).Msg("failed to close websocket connection")
	}
}
