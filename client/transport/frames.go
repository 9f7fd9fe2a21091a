package transport

import (
	"bytes"
	"errors"
	"io"

	"github.com/go-stomp/stomp/v3/frame"
)

const (
	stompVersion     = "1.2"
	stompSubprotocol = "v12.stomp"
	contentTypeJSON  = "application/json"

	// heart-beats are disabled at the STOMP level, liveness is checked with
	// websocket ping/pong instead
	stompHeartBeat = "0,0"

	headerAuthorization = "Authorization"
)

func encodeFrame(f *frame.Frame) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := frame.NewWriter(buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeFrames parses every frame contained in one websocket message.
// Heart-beat EOLs are skipped.
func decodeFrames(b []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(b))
	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, err
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}

func connectFrame(host, token string) *frame.Frame {
	f := frame.New(frame.CONNECT,
		frame.AcceptVersion, stompVersion,
		frame.Host, host,
		frame.HeartBeat, stompHeartBeat)
	if token != "" {
		f.Header.Add(headerAuthorization, "Bearer "+token)
	}
	return f
}

func subscribeFrame(id, destination string) *frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto")
}

func unsubscribeFrame(id string) *frame.Frame {
	return frame.New(frame.UNSUBSCRIBE, frame.Id, id)
}

func sendFrame(destination string, body []byte) *frame.Frame {
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, contentTypeJSON)
	f.Body = body
	return f
}

func disconnectFrame() *frame.Frame {
	return frame.New(frame.DISCONNECT)
}
