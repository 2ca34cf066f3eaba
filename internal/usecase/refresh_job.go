package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"QuoteHub/pkg/logger"
	"QuoteHub/pkg/queue"
)

const RefreshJobType = "refresh"

type RefreshPayload struct {
	Symbol string `json:"symbol"`
}

// RefreshJob force-refreshes the symbol named in a queued message.
type RefreshJob struct {
	svc Refresher
	log *logger.Logger
}

func NewRefreshJob(svc Refresher, log *logger.Logger) *RefreshJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshJob{svc: svc, log: log}
}

func (j *RefreshJob) Type() string { return RefreshJobType }

// Handle returns an error only when another attempt could succeed.
func (j *RefreshJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.Decode[RefreshPayload](payload)
	if err != nil {
		j.log.Warn("dropping malformed refresh job", logger.Error(err))
		return nil
	}
	if err := j.svc.Refresh(ctx, p.Symbol); err != nil {
		if errors.Is(err, ErrInvalidSymbol) {
			j.log.Warn("dropping refresh of invalid symbol", logger.String("symbol", p.Symbol))
			return nil
		}
		return err
	}
	return nil
}

var _ queue.Job = (*RefreshJob)(nil)
