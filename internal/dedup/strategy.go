package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jazzypop/content-engine/internal/content"
)

// Strategy names accepted by NewStrategy.
const (
	StrategyExclusionList  = "exclusion_list"
	StrategyCompressedList = "compressed_list"
	StrategyBitmap         = "bitmap"
	StrategyRollingMarker  = "rolling_marker"
	StrategySmartMarker    = "smart_marker"
	StrategyGoldenRatio    = "golden_ratio"
	StrategyReservoir      = "reservoir"

	DefaultStrategy = StrategySmartMarker
)

// Strategy picks packs a single identified viewer has not recently seen.
type Strategy interface {
	Name() string
	Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error)
}

// Names lists every registered strategy.
func Names() []string {
	return []string{
		StrategyExclusionList,
		StrategyCompressedList,
		StrategyBitmap,
		StrategyRollingMarker,
		StrategySmartMarker,
		StrategyGoldenRatio,
		StrategyReservoir,
	}
}

// StrategyOptions tune individual strategies. Zero values pick defaults.
type StrategyOptions struct {
	MaxSeen        int           // compressed_list history cap
	ReshuffleEvery time.Duration // rolling_marker epoch length, 0 disables reshuffling
	GoldenWindow   time.Duration // golden_ratio offset rotation window
	Now            func() time.Time
}

func (o StrategyOptions) withDefaults() StrategyOptions {
	if o.MaxSeen <= 0 {
		o.MaxSeen = 5000
	}
	if o.GoldenWindow <= 0 {
		o.GoldenWindow = time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Deps are the stores a strategy may need. Seen, Bitmaps and Positions are
// only required by the Redis-backed strategies.
type Deps struct {
	Catalog   Catalog
	Seen      SeenStore
	Bitmaps   BitmapStore
	Positions PositionStore
}

// NewStrategy builds the named strategy.
func NewStrategy(name string, deps Deps, opts StrategyOptions) (Strategy, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("strategy %s: catalog is required", name)
	}
	opts = opts.withDefaults()
	switch name {
	case StrategyExclusionList:
		return &ExclusionList{views: deps.Catalog}, nil
	case StrategyCompressedList:
		if deps.Seen == nil {
			return nil, fmt.Errorf("strategy %s: seen store is required", name)
		}
		return &CompressedList{random: deps.Catalog, seen: deps.Seen, maxSeen: opts.MaxSeen}, nil
	case StrategyBitmap:
		if deps.Bitmaps == nil {
			return nil, fmt.Errorf("strategy %s: bitmap store is required", name)
		}
		return &BitmapFilter{seqs: deps.Catalog, bitmaps: deps.Bitmaps}, nil
	case StrategyRollingMarker:
		if deps.Positions == nil {
			return nil, fmt.Errorf("strategy %s: position store is required", name)
		}
		return &RollingMarker{ordered: deps.Catalog, positions: deps.Positions, reshuffle: opts.ReshuffleEvery, now: opts.Now}, nil
	case StrategySmartMarker:
		return &SmartMarker{ordered: deps.Catalog, markers: deps.Catalog}, nil
	case StrategyGoldenRatio:
		return &GoldenRatio{ordered: deps.Catalog, window: opts.GoldenWindow, now: opts.Now}, nil
	case StrategyReservoir:
		return &Reservoir{streamer: deps.Catalog, now: opts.Now}, nil
	default:
		return nil, fmt.Errorf("%w: %q", content.ErrUnknownStrategy, name)
	}
}
