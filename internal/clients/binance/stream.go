package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

const (
	maxReconnectAttempts = 5
	reconnectBackoffBase = time.Second
)

// Stream is a live miniTicker subscription. Updates are delivered on a
// buffered channel; slow consumers drop ticks rather than stall the reader.
type Stream struct {
	updates chan models.PriceUpdate
	cancel  context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Updates returns the tick channel. It is closed when the stream ends.
func (s *Stream) Updates() <-chan models.PriceUpdate {
	return s.updates
}

// Close releases the socket and stops the reader. Safe to call more than
// once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) setConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		conn.Close()
		return false
	}
	s.conn = conn
	return true
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// combined stream envelope for <symbol>@miniTicker
type miniTickerMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Close     string `json:"c"`
	} `json:"data"`
}

// SubscribePrices opens a miniTicker stream for the given ticker symbols
// (plain symbols, paired against USDT). The stream reconnects on read
// errors up to 5 times with exponential backoff; after that, or when the
// context is done, the update channel is closed.
func (c *Client) SubscribePrices(ctx context.Context, symbols []string) (interfaces.PriceStream, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("binance stream: at least one symbol is required")
	}

	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "usdt@miniTicker"
	}
	streamURL := c.streamURL + "/stream?streams=" + strings.Join(streams, "/")

	ctx, cancel := context.WithCancel(ctx)
	stream := &Stream{
		updates: make(chan models.PriceUpdate, 64),
		cancel:  cancel,
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("binance stream dial: %w", err)
	}
	stream.setConn(conn)

	go c.runStream(ctx, stream, streamURL)

	return stream, nil
}

// runStream pumps messages into the update channel, reconnecting on read
// errors until the attempt budget is exhausted.
func (c *Client) runStream(ctx context.Context, stream *Stream, streamURL string) {
	defer close(stream.updates)
	defer stream.Close()

	attempts := 0
	for {
		err := c.readLoop(ctx, stream)
		if ctx.Err() != nil || stream.isClosed() {
			return
		}

		attempts++
		if attempts > maxReconnectAttempts {
			c.logger.Error().
				Err(err).
				Int("attempts", attempts-1).
				Msg("Binance stream reconnect budget exhausted")
			return
		}

		backoff := reconnectBackoffBase << (attempts - 1)
		c.logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Dur("backoff", backoff).
			Msg("Binance stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, _, dialErr := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
		if dialErr != nil {
			c.logger.Warn().Err(dialErr).Msg("Binance stream reconnect failed")
			continue
		}
		if !stream.setConn(conn) {
			return
		}
	}
}

// readLoop reads ticks from the current connection until it fails.
func (c *Client) readLoop(ctx context.Context, stream *Stream) error {
	stream.mu.Lock()
	conn := stream.conn
	stream.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg miniTickerMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Data.Symbol == "" {
			continue
		}

		price, err := strconv.ParseFloat(msg.Data.Close, 64)
		if err != nil || price <= 0 {
			continue
		}

		update := models.PriceUpdate{
			Symbol:    strings.TrimSuffix(msg.Data.Symbol, "USDT"),
			Price:     price,
			Timestamp: time.UnixMilli(msg.Data.EventTime),
		}

		select {
		case stream.updates <- update:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// drop tick for slow consumers
		}
	}
}

// Verify interface compliance
var _ interfaces.PriceStream = (*Stream)(nil)
