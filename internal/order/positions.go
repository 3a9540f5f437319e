package order

import (
	"sort"
	"sync"

	"TradeGate/internal/gateway"
)

// PositionSide is the locally maintained view of one instrument side,
// built from fills as they arrive. Direction is the direction of the
// position itself: a buy/open fill grows the long side, a sell fill
// with a close offset shrinks it.
type PositionSide struct {
	InstrumentID    string
	Direction       gateway.Direction
	Volume          int
	TodayVolume     int
	YesterdayVolume int
	OpenCost        float64
	RealizedPnL     float64
}

// AvgPrice is the average open price of the remaining volume.
func (p PositionSide) AvgPrice() float64 {
	if p.Volume == 0 {
		return 0
	}
	return p.OpenCost / float64(p.Volume)
}

// FloatingPnL marks the open volume against a last price.
func (p PositionSide) FloatingPnL(lastPrice float64) float64 {
	if p.Volume == 0 {
		return 0
	}
	pnl := (lastPrice - p.AvgPrice()) * float64(p.Volume)
	if p.Direction == gateway.DirectionSell {
		return -pnl
	}
	return pnl
}

// CloseableToday is the volume a close-today order may target.
func (p PositionSide) CloseableToday() int { return p.TodayVolume }

// CloseableYesterday is the volume carried over from earlier sessions.
func (p PositionSide) CloseableYesterday() int { return p.YesterdayVolume }

type positionKey struct {
	instrument string
	direction  gateway.Direction
}

// PositionBook aggregates fills into per-instrument positions. Seeded
// from a position query and kept current by Apply on every trade.
type PositionBook struct {
	mu    sync.RWMutex
	sides map[positionKey]*PositionSide
}

func NewPositionBook() *PositionBook {
	return &PositionBook{sides: make(map[positionKey]*PositionSide)}
}

// Seed installs the gateway's view of carried-over positions. Existing
// yesterday volumes are replaced; volume opened through this session's
// fills is preserved.
func (b *PositionBook) Seed(positions []gateway.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pos := range positions {
		k := positionKey{instrument: pos.InstrumentID, direction: pos.Direction}
		side, exists := b.sides[k]
		if !exists {
			side = &PositionSide{InstrumentID: pos.InstrumentID, Direction: pos.Direction}
			b.sides[k] = side
		}
		carried := pos.TotalPosition - pos.TodayPosition
		if carried < 0 {
			carried = 0
		}
		side.Volume += carried - side.YesterdayVolume
		side.YesterdayVolume = carried
		side.OpenCost += pos.PositionCost
	}
}

// Apply folds one fill into the book. Opens grow the side matching the
// trade direction; closes shrink the opposite side and realize PnL
// against its average price. Close-today consumes today's volume;
// plain close consumes yesterday's volume first.
func (b *PositionBook) Apply(tr gateway.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tr.Offset == gateway.OffsetOpen {
		k := positionKey{instrument: tr.InstrumentID, direction: tr.Direction}
		side, exists := b.sides[k]
		if !exists {
			side = &PositionSide{InstrumentID: tr.InstrumentID, Direction: tr.Direction}
			b.sides[k] = side
		}
		side.Volume += tr.Volume
		side.TodayVolume += tr.Volume
		side.OpenCost += tr.Price * float64(tr.Volume)
		return
	}

	closed := gateway.DirectionBuy
	if tr.Direction == gateway.DirectionBuy {
		closed = gateway.DirectionSell
	}
	k := positionKey{instrument: tr.InstrumentID, direction: closed}
	side, exists := b.sides[k]
	if !exists || side.Volume == 0 {
		return
	}

	vol := tr.Volume
	if vol > side.Volume {
		vol = side.Volume
	}
	avg := side.AvgPrice()
	pnl := (tr.Price - avg) * float64(vol)
	if closed == gateway.DirectionSell {
		pnl = -pnl
	}
	side.RealizedPnL += pnl
	side.OpenCost -= avg * float64(vol)
	side.Volume -= vol

	switch tr.Offset {
	case gateway.OffsetCloseToday:
		side.TodayVolume -= min(vol, side.TodayVolume)
	default:
		fromYesterday := min(vol, side.YesterdayVolume)
		side.YesterdayVolume -= fromYesterday
		side.TodayVolume -= min(vol-fromYesterday, side.TodayVolume)
	}
}

// Get returns a copy of one position side.
func (b *PositionBook) Get(instrumentID string, direction gateway.Direction) (PositionSide, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	side, exists := b.sides[positionKey{instrument: instrumentID, direction: direction}]
	if !exists {
		return PositionSide{}, false
	}
	return *side, true
}

// All returns copies of every non-flat side, ordered by instrument.
func (b *PositionBook) All() []PositionSide {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]PositionSide, 0, len(b.sides))
	for _, side := range b.sides {
		if side.Volume != 0 || side.RealizedPnL != 0 {
			out = append(out, *side)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstrumentID != out[j].InstrumentID {
			return out[i].InstrumentID < out[j].InstrumentID
		}
		return out[i].Direction < out[j].Direction
	})
	return out
}
