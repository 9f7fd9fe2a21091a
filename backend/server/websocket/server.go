package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/backend/model"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultSessionCloseTimeout = 2 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 1 << 16
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	defaultStompHandshakeTimeout = 5 * time.Second

	// a peer missing one pong past the ping interval is dropped
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	defaultControlQueueSize = 8
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	// BrokerService owns the sessions and subscriptions of the connections.
	BrokerService interface {
		CreateSession(ctx context.Context, endpoint, userID string, wire model.Wire) error
		DeleteSession(ctx context.Context, endpoint, userID string) error
		Subscribe(endpoint, subID, topic string) error
		Unsubscribe(endpoint, subID string) error
	}

	Config struct {
		Logger        *zerolog.Logger
		BrokerService BrokerService
		ListenAddr    string
	}

	Server struct {
		svc BrokerService
		ws  *websocket.Upgrader
		*http.Server

		logger zerolog.Logger
	}

	// session is one authenticated STOMP connection.
	session struct {
		endpoint string
		userID   string
		wire     model.Wire
		// frames of the broker itself (receipts, errors), written by the sender
		ctrl   chan *frame.Frame
		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.BrokerService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			Subprotocols:     []string{stompSubprotocol},
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}
	return srv
}

func (srv *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.broker)
	return mux
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) broker(w http.ResponseWriter, r *http.Request) {
	upgradeToken := bearerToken(r.Header.Get(headerAuthorization))

	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID, err := stompHandshake(conn, upgradeToken)
	if err != nil {
		srv.logger.Warn().Err(err).Msg("stomp handshake failed")
		_ = writeFrame(conn, errorFrame(err.Error()))
		webSocketCloser(conn, &srv.logger)
		return
	}

	sess := &session{
		endpoint: uuid.NewString(),
		userID:   userID,
		wire:     model.NewWire(),
		ctrl:     make(chan *frame.Frame, defaultControlQueueSize),
	}
	sess.logger = srv.logger.With().
		Str("endpoint", sess.endpoint).
		Str("userID", userID).
		Logger()

	ctx, cancel := context.WithCancel(context.Background()) // long-living session context

	if err = srv.svc.CreateSession(ctx, sess.endpoint, userID, sess.wire); err != nil {
		sess.logger.Error().Err(err).Msg("failed to create session")
		cancel()
		_ = writeFrame(conn, errorFrame("session unavailable"))
		webSocketCloser(conn, &sess.logger)
		return
	}
	if err = writeFrame(conn, connectedFrame(userID)); err != nil {
		sess.logger.Error().Err(err).Msg("failed to confirm connection")
		cancel()
		webSocketCloser(conn, &sess.logger)
		srv.destroySession(sess)
		return
	}
	sess.logger.Debug().Msg("session created")

	go srv.handleWSConn(ctx, cancel, conn, sess)
}

// stompHandshake reads the CONNECT frame and returns the authenticated user.
func stompHandshake(conn *websocket.Conn, upgradeToken string) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(defaultStompHandshakeTimeout)); err != nil {
		return "", err
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return "", err
		}
		frames, err := decodeFrames(msg)
		if err != nil {
			return "", err
		}
		if len(frames) > 0 {
			return acceptConnect(frames[0], upgradeToken)
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

func (srv *Server) destroySession(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSessionCloseTimeout)
	defer cancel()
	if err := srv.svc.DeleteSession(ctx, sess.endpoint, sess.userID); err != nil {
		sess.logger.Error().Err(err).Msg("failed to delete session")
		return
	}
	sess.logger.Debug().Msg("session ended")
}

func (srv *Server) handleWSConn(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session) {
	recvWg, sendWg := &sync.WaitGroup{}, &sync.WaitGroup{}

	recvWg.Add(1)
	sendWg.Add(1)
	go func() {
		srv.webSocketReceiver(ctx, recvWg, conn, sess)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, sendWg, conn, sess)
		cancel()
	}()

	<-ctx.Done()
	// single writer: pending receipts and errors go out once the sender is gone,
	// closing the conn then unblocks the receiver
	sendWg.Wait()
	flushControl(conn, sess)
	webSocketCloser(conn, &sess.logger)
	recvWg.Wait()
	srv.destroySession(sess)
}

func flushControl(conn *websocket.Conn, sess *session) {
	for {
		select {
		case f := <-sess.ctrl:
			if err := writeFrame(conn, f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func webSocketSender(ctx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, sess *session) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
	logger := &sess.logger
SendLoop:
	for {
		var f *frame.Frame
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")
			continue
		case f = <-sess.ctrl:
		case d := <-sess.wire.TX:
			f = messageFrame(d)
		}

		if wsErr := writeFrame(conn, f); wsErr != nil {
			logger.Error().Err(wsErr).Str("command", f.Command).Msg("failed to write frame")
			break SendLoop
		}
		logger.Trace().Str("command", f.Command).Msg("frame sent")
		if f.Command == frame.ERROR {
			break SendLoop
		}
	}
}

func (srv *Server) webSocketReceiver(ctx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, sess *session) {
	defer wg.Done()
	logger := &sess.logger

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	if err := readDeadLineFunc(defaultPongWait); err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		_, msg, wsErr := conn.ReadMessage()
		if wsErr != nil {
			if websocket.IsCloseError(wsErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Msg("connection closed")
			} else if ctx.Err() == nil {
				logger.Error().Err(wsErr).Msg("unexpected error during receive")
			}
			break
		}

		frames, err := decodeFrames(msg)
		if err != nil {
			logger.Error().Err(err).Msg("malformed frame")
			srv.control(ctx, sess, errorFrame("malformed frame"))
			break
		}
		for _, f := range frames {
			if !srv.dispatch(ctx, sess, f) {
				break RecvLoop
			}
		}
	}
}

// dispatch handles one client frame, it returns false once the session
// should end.
func (srv *Server) dispatch(ctx context.Context, sess *session, f *frame.Frame) bool {
	logger := &sess.logger
	logger.Trace().Str("command", f.Command).Msg("frame received")

	switch f.Command {
	case frame.SUBSCRIBE:
		id, dest := f.Header.Get(frame.Id), f.Header.Get(frame.Destination)
		if id == "" || dest == "" {
			srv.control(ctx, sess, errorFrame("subscribe needs id and destination"))
			return false
		}
		if err := srv.svc.Subscribe(sess.endpoint, id, dest); err != nil {
			logger.Error().Err(err).Str("topic", dest).Msg("subscribe failed")
		}
	case frame.UNSUBSCRIBE:
		if err := srv.svc.Unsubscribe(sess.endpoint, f.Header.Get(frame.Id)); err != nil {
			logger.Error().Err(err).Msg("unsubscribe failed")
		}
	case frame.SEND:
		msg := model.Inbound{
			SRC:         sess.userID,
			Destination: f.Header.Get(frame.Destination),
			Body:        f.Body,
		}
		select {
		case sess.wire.RX <- msg:
		case <-ctx.Done():
			return false
		}
	case frame.DISCONNECT:
		if id := f.Header.Get(frame.Receipt); id != "" {
			srv.control(ctx, sess, receiptFrame(id))
		}
		logger.Debug().Msg("client disconnected")
		return false
	default:
		logger.Warn().Str("command", f.Command).Msg("unsupported frame ignored")
		return true
	}

	if id := f.Header.Get(frame.Receipt); id != "" {
		srv.control(ctx, sess, receiptFrame(id))
	}
	return true
}

func (srv *Server) control(ctx context.Context, sess *session, f *frame.Frame) {
	select {
	case sess.ctrl <- f:
	case <-ctx.Done():
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil && !errors.Is(wsErr, websocket.ErrCloseSent) {
		logger.Trace().Err(wsErr).Msg("failed to send close message")
	}
	if wsErr = conn.Close(); wsErr != nil {
		logger.Trace().Err(wsErr).Msg("failed to close websocket connection")
	}
}
