package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// TransportError wraps a failure of the websocket channel itself.
type TransportError struct {
	Op  string
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Subscribe connects to a Hub at url and hands each keyframe to fn, in
// order, until the hub closes the stream (nil), ctx is done (ctx.Err()),
// fn fails (fn's error) or the connection breaks (*TransportError).
func Subscribe(ctx context.Context, url string, fn func(keyframe.Keyframe) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return &TransportError{Op: "dial", URL: url, Err: err}
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for seq := 1; ; seq++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return &TransportError{Op: "read", URL: url, Err: err}
		}
		kf, err := keyframe.UnmarshalWrapped(data)
		if err != nil {
			return &TransportError{Op: fmt.Sprintf("decode message %d", seq), URL: url, Err: err}
		}
		if err := fn(kf); err != nil {
			return err
		}
	}
}

// IsTransportError reports whether err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
