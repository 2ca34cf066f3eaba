package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	pkgkafka "QuoteHub/pkg/kafka"
	"QuoteHub/pkg/logger"
)

// Invalidator drops cached data for a symbol.
type Invalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// CorrectionsHandler invalidates symbols named on the trade-corrections topic.
type CorrectionsHandler struct {
	topic string
	svc   Invalidator
	log   *logger.Logger
}

func NewCorrectionsHandler(topic string, svc Invalidator, log *logger.Logger) *CorrectionsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CorrectionsHandler{topic: topic, svc: svc, log: log}
}

func (h *CorrectionsHandler) Topic() string { return h.topic }

// incoming message schema: {"symbol": "AAPL", "reason": "busted trade"}
func (h *CorrectionsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol  string   `json:"symbol"`
		Symbols []string `json:"symbols"`
		Reason  string   `json:"reason"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode correction: %w", err)
	}
	symbols := m.Symbols
	if m.Symbol != "" {
		symbols = append(symbols, m.Symbol)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("correction without symbol")
	}
	for _, sym := range symbols {
		if err := h.svc.Invalidate(ctx, sym); err != nil {
			return err
		}
		h.log.Info("correction applied", logger.String("symbol", sym), logger.String("reason", m.Reason))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*CorrectionsHandler)(nil)
