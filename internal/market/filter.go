package market

import (
	"math"

	"TradeGate/internal/gateway"
)

// Filter decides whether a tick is worth emitting. prev is the cached
// tick for the instrument, nil when this is the first tick seen.
type Filter interface {
	Name() string
	Accepts(prev *gateway.Tick, next gateway.Tick) bool
}

// PriceChangeFilter suppresses ticks whose last price moved less than
// MinChange relative to the cached tick. The comparison is always
// against the cache, so small moves accumulate until the threshold
// is crossed.
type PriceChangeFilter struct {
	MinChange float64 // fractional, 0.001 is 0.1%
}

func (f PriceChangeFilter) Name() string { return "price_change" }

func (f PriceChangeFilter) Accepts(prev *gateway.Tick, next gateway.Tick) bool {
	if prev == nil {
		return true
	}
	if prev.LastPrice == 0 {
		return next.LastPrice != 0
	}
	change := math.Abs(next.LastPrice-prev.LastPrice) / math.Abs(prev.LastPrice)
	return change >= f.MinChange
}

// VolumeFilter suppresses ticks until cumulative volume has grown by at
// least MinDelta since the cached tick.
type VolumeFilter struct {
	MinDelta int64
}

func (f VolumeFilter) Name() string { return "volume" }

func (f VolumeFilter) Accepts(prev *gateway.Tick, next gateway.Tick) bool {
	if prev == nil {
		return true
	}
	return next.Volume-prev.Volume >= f.MinDelta
}
