package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// TickHandler is invoked for every decoded tick, after the cache has
// been updated. Used to fan ticks into the position book and the
// dashboard hub.
type TickHandler func(Tick)

// WebsocketFeed consumes a market-data websocket and keeps a TickCache
// warm. Reconnects with capped exponential backoff; the deeper
// subscription/authentication mechanics of a real feed live in the
// broker adapter, not here.
type WebsocketFeed struct {
	url     string
	cache   *TickCache
	handler TickHandler // optional
	dialer  *websocket.Dialer
}

// NewWebsocketFeed creates a feed consumer for url. handler may be nil.
func NewWebsocketFeed(url string, cache *TickCache, handler TickHandler) *WebsocketFeed {
	return &WebsocketFeed{
		url:     url,
		cache:   cache,
		handler: handler,
		dialer:  websocket.DefaultDialer,
	}
}

// Run consumes ticks until ctx is cancelled. Dial failures and dropped
// connections retry with backoff capped at 30s.
func (f *WebsocketFeed) Run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			slog.Warn("feed dial failed", "url", f.url, "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}

		slog.Info("feed connected", "url", f.url)
		backoff = time.Second

		f.readLoop(ctx, conn)
		conn.Close()
	}
}

func (f *WebsocketFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("feed read failed", "err", err)
			}
			return
		}

		var tick Tick
		if err := json.Unmarshal(data, &tick); err != nil {
			slog.Debug("feed dropped malformed tick", "err", err)
			continue
		}
		if tick.Segment == "" || tick.SecurityID == "" || !tick.LTP.IsPositive() {
			continue
		}
		if tick.Timestamp.IsZero() {
			tick.Timestamp = time.Now().UTC()
		}

		f.cache.Put(tick)
		if f.handler != nil {
			f.handler(tick)
		}
	}
}
