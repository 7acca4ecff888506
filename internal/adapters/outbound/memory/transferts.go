package memory

import (
	"context"
	"time"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.TransferTimestampProvider = (*NoTransferTimestampProvider)(nil)

// NoTransferTimestampProvider always reports the timestamp as unavailable.
// The blockchain transfer-timestamp provider is an external, opaque
// capability this core does not implement; Worker.resolveStartDate treats
// its failure as a signal to fall back to a fixed lookback window.
type NoTransferTimestampProvider struct{}

// NewNoTransferTimestampProvider constructs a NoTransferTimestampProvider.
func NewNoTransferTimestampProvider() *NoTransferTimestampProvider {
	return &NoTransferTimestampProvider{}
}

func (NoTransferTimestampProvider) FirstTransferTimestamp(ctx context.Context, token string, network entity.Network) (time.Time, error) {
	return time.Time{}, entity.ErrNotFound
}
