package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"QuoteHub/internal/domain/models"
	drepo "QuoteHub/internal/domain/repository"
	"QuoteHub/pkg/logger"
)

const DefaultWebsocketURL = "wss://ws.finnhub.io"

var ErrNotConnected = errors.New("finnhub stream not connected")

// Stream implements MarketStream over the Finnhub trade websocket.
type Stream struct {
	apiKey       string
	websocketURL string
	symbols      []string
	pingInterval time.Duration
	log          *logger.Logger

	mu        sync.Mutex // guards conn writes and state
	conn      *websocket.Conn
	connected bool
}

// NewStream creates a Finnhub trade stream.
func NewStream(apiKey, websocketURL string, symbols []string, pingInterval time.Duration, log *logger.Logger) *Stream {
	if websocketURL == "" {
		websocketURL = DefaultWebsocketURL
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Stream{
		apiKey:       apiKey,
		websocketURL: websocketURL,
		symbols:      symbols,
		pingInterval: pingInterval,
		log:          log,
	}
}

// Connect establishes the websocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("finnhub stream connected")
	return nil
}

// Subscribe subscribes to symbols, or to the configured set when none are given.
func (s *Stream) Subscribe(ctx context.Context, symbols ...string) error {
	if len(symbols) == 0 {
		symbols = s.symbols
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return ErrNotConnected
	}
	for _, sym := range symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.log.Debug("finnhub stream subscribed", logger.Strings("symbols", symbols))
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// Read streams trades until ctx is done or the connection fails. The error
// channel receives at most one error.
func (s *Stream) Read(ctx context.Context) (<-chan models.Trade, <-chan error) {
	trades := make(chan models.Trade, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		errs <- ErrNotConnected
		close(trades)
		close(errs)
		return trades, errs
	}

	readCtx, stop := context.WithCancel(ctx)
	go s.pingLoop(readCtx)

	go func() {
		defer close(trades)
		defer close(errs)
		defer stop()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if readCtx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			var m wsMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				t := models.Trade{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: time.UnixMilli(d.T)}
				select {
				case trades <- t:
				case <-readCtx.Done():
					return
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return trades, errs
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != nil {
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.mu.Unlock()
		}
	}
}

// Reconnect closes and reconnects, then resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the websocket connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

var _ drepo.MarketStream = (*Stream)(nil)
