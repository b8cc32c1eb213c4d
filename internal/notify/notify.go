package notify

import (
	"context"

	"github.com/avoronin/corptravel/internal/kafka"
	"go.uber.org/zap"
)

// Sender hands travel events to the outbound notification channel. Delivery
// is fire-and-forget from the core's point of view.
type Sender struct {
	logger *zap.Logger
}

func NewSender(logger *zap.Logger) *Sender {
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.TravelEvent) error {
	s.logger.Info("dispatching notification",
		zap.String("type", event.Type),
		zap.String("reference", event.Reference),
		zap.Int64("requester_id", event.RequesterID),
		zap.String("request_status", event.RequestStatus),
		zap.String("execution_status", event.ExecutionStatus))
	return nil
}
