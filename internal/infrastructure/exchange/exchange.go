package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	dialTimeout  = 10 * time.Second
)

// RetryPolicy 重连间隔；Min == Max 时为固定间隔，且永不放弃
type RetryPolicy struct {
	Min time.Duration
	Max time.Duration
}

// DefaultRetryPolicy reconnects every 5s.
var DefaultRetryPolicy = RetryPolicy{Min: 5 * time.Second, Max: 5 * time.Second}

func (p RetryPolicy) backoff() *backoff.Backoff {
	lo := p.Min
	if lo <= 0 {
		lo = DefaultRetryPolicy.Min
	}
	hi := p.Max
	if hi < lo {
		hi = lo
	}
	return &backoff.Backoff{Min: lo, Max: hi, Factor: 2}
}

// Session is one connected lifetime of a stream. It calls connected once the
// connection is usable and returns when the connection is gone.
type Session func(ctx context.Context, connected func()) error

// Reconnect runs session until ctx is done, sleeping per policy between attempts.
// A session that got connected resets the delay.
func Reconnect(ctx context.Context, name string, policy RetryPolicy, session Session) {
	b := policy.backoff()

	for {
		if ctx.Err() != nil {
			return
		}

		err := session(ctx, b.Reset)

		if ctx.Err() != nil {
			return
		}

		delay := b.Duration()
		log.Warn().Str("feed", name).Err(err).Int64("delay_ms", delay.Milliseconds()).Msg("ws disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Dial opens a websocket with the default dial timeout.
func Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	cctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(cctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// ReadLoop reads messages with periodic pings until the connection fails or ctx ends.
// The caller owns conn and must close it afterwards; on ctx cancellation ReadLoop
// closes it itself to stop the reader.
func ReadLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// unblock the reader and wait for it, so onMsg never runs after we return
			_ = conn.Close()
			for range errCh {
			}
			return ctx.Err()
		case err := <-errCh:
			if err == nil {
				err = errors.New("read loop stopped")
			}
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

// BytesTrimSpace trims whitespace from byte slice
func BytesTrimSpace(b []byte) []byte {
	i := 0
	j := len(b) - 1
	for i <= j && (b[i] == ' ' || b[i] == '\n' || b[i] == '\r' || b[i] == '\t') {
		i++
	}
	for j >= i && (b[j] == ' ' || b[j] == '\n' || b[j] == '\r' || b[j] == '\t') {
		j--
	}
	if i > j {
		return []byte{}
	}
	return b[i : j+1]
}

// ParseJSON safely parses JSON
func ParseJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}
