package websocket

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/dupuishugo80/ranked4/backend/model"
	"github.com/go-stomp/stomp/v3/frame"
)

const (
	stompVersion     = "1.2"
	stompSubprotocol = "v12.stomp"
	contentTypeJSON  = "application/json"

	headerAuthorization = "Authorization"
)

var (
	ErrNotConnectFrame = errors.New("first frame must be CONNECT")
	ErrUnauthenticated = errors.New("missing bearer token")
	ErrVersion         = errors.New("unsupported stomp version")
)

func encodeFrame(f *frame.Frame) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := frame.NewWriter(buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeFrames parses every frame of one websocket message, heart-beats
// are skipped.
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
		if f != nil {
			frames = append(frames, f)
		}
	}
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// acceptConnect validates a CONNECT frame and returns the user it
// authenticates. The token of the frame wins over the one of the upgrade
// request.
func acceptConnect(f *frame.Frame, upgradeToken string) (string, error) {
	if f.Command != frame.CONNECT && f.Command != frame.STOMP {
		return "", ErrNotConnectFrame
	}
	if versions := f.Header.Get(frame.AcceptVersion); versions != "" {
		if !strings.Contains(versions, stompVersion) {
			return "", ErrVersion
		}
	}
	user := bearerToken(f.Header.Get(headerAuthorization))
	if user == "" {
		user = upgradeToken
	}
	if user == "" {
		return "", ErrUnauthenticated
	}
	return user, nil
}

func connectedFrame(user string) *frame.Frame {
	return frame.New(frame.CONNECTED,
		frame.Version, stompVersion,
		frame.HeartBeat, "0,0",
		"user-name", user)
}

func errorFrame(msg string) *frame.Frame {
	return frame.New(frame.ERROR, frame.Message, msg)
}

func receiptFrame(id string) *frame.Frame {
	return frame.New(frame.RECEIPT, frame.ReceiptId, id)
}

func messageFrame(d model.Delivery) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Destination, d.Destination,
		frame.Subscription, d.Subscription,
		frame.MessageId, d.MessageID,
		frame.ContentType, contentTypeJSON)
	f.Body = d.Body
	return f
}
