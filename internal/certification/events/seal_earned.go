// Package events consumes seal-domain events that drive automatic certification.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"citywalk/internal/platform/kafka/consumer"
	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
)

// SealEarned is the payload published on seal.earned when a user earns a seal.
type SealEarned struct {
	OwnershipID string `json:"ownershipId"`
}

// AutoChainer chains a record with the active provider when auto-chain is enabled.
type AutoChainer interface {
	AutoChain(ctx context.Context, ownershipID id.OwnershipID) (bool, error)
}

// SealEarnedHandler calls AutoChain for every seal.earned event.
type SealEarnedHandler struct {
	chainer AutoChainer
	logger  *slog.Logger
}

func NewSealEarnedHandler(chainer AutoChainer, logger *slog.Logger) *SealEarnedHandler {
	return &SealEarnedHandler{chainer: chainer, logger: logger}
}

// Handle returns an error only for failures worth redelivering. Bad payloads and
// unknown records are logged and committed.
func (h *SealEarnedHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var evt SealEarned
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.ErrorContext(ctx, "malformed seal.earned payload",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	ownershipID, err := id.ParseOwnershipID(evt.OwnershipID)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid ownership id in seal.earned",
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	chained, err := h.chainer.AutoChain(ctx, ownershipID)
	if err != nil {
		if retryable(err) {
			return err
		}
		h.logger.WarnContext(ctx, "auto-chain rejected",
			"ownership_id", ownershipID,
			"error", err,
		)
		return nil
	}

	h.logger.DebugContext(ctx, "seal.earned handled",
		"ownership_id", ownershipID,
		"chained", chained,
	)
	return nil
}

func retryable(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeProviderUnavailable, dErrors.CodeTimeout,
		dErrors.CodeConcurrencyConflict, dErrors.CodeInternal:
		return true
	default:
		return false
	}
}
