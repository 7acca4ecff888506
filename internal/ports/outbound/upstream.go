package outbound

import (
	"context"
	"time"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
)

// UpstreamAdapter is the Upstream Adapter port (C1): translates
// (token, network, at) into a single spot price via an external
// market-data capability. A nil, nil return means "no data", distinct
// from a TransientError.
type UpstreamAdapter interface {
	FetchSpotPrice(ctx context.Context, token string, network entity.Network, at time.Time) (*entity.PricePoint, error)
}

// TransferTimestampProvider is the opaque blockchain asset-transfer
// capability used by the Backfill Worker to detect a token's creation date.
// It is modeled purely as an interface; no concrete chain client lives
// behind it in this core.
type TransferTimestampProvider interface {
	FirstTransferTimestamp(ctx context.Context, token string, network entity.Network) (time.Time, error)
}
