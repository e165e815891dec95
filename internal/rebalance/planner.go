package rebalance

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jazzypop/content-engine/internal/content"
)

// Strategy names accepted by NewPlanner.
const (
	StrategyPool     = "pool"
	StrategyCriteria = "criteria"
	StrategyTransfer = "transfer"
)

// Planner turns the under-full packs of one group into a Plan. Implementations are pure.
type Planner interface {
	Name() string
	Plan(key content.GroupKey, packs []content.Pack, targetSize int) Plan
}

// Filter removes items from a pool before it is packed.
type Filter interface {
	Apply(pool []PoolItem) (kept, dropped []PoolItem)
}

// PlannerOptions injects id and clock sources.
type PlannerOptions struct {
	NewID func() string
	Now   func() time.Time
}

func (o PlannerOptions) withDefaults() PlannerOptions {
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NewPlanner builds the planner registered under name.
func NewPlanner(name string, criteria Criteria, opts PlannerOptions) (Planner, error) {
	switch name {
	case StrategyPool, "":
		return NewPoolPlanner(nil, opts), nil
	case StrategyCriteria:
		return NewPoolPlanner(criteria, opts), nil
	case StrategyTransfer:
		return NewTransferPlanner(opts), nil
	default:
		return nil, fmt.Errorf("%w: rebalance strategy %q", content.ErrUnknownStrategy, name)
	}
}

// orderPacks sorts copies of packs by fill descending with ties on pack id,
// and the items of each pack by position with ties on item id.
func orderPacks(packs []content.Pack) []content.Pack {
	ordered := make([]content.Pack, len(packs))
	for i, p := range packs {
		items := make([]content.Item, len(p.Items))
		copy(items, p.Items)
		sort.SliceStable(items, func(a, b int) bool {
			if items[a].Position != items[b].Position {
				return items[a].Position < items[b].Position
			}
			return items[a].ID < items[b].ID
		})
		p.Items = items
		ordered[i] = p
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		if len(ordered[a].Items) != len(ordered[b].Items) {
			return len(ordered[a].Items) > len(ordered[b].Items)
		}
		return ordered[a].ID < ordered[b].ID
	})
	return ordered
}

func orphansOf(key content.GroupKey, leftover []PoolItem) []Orphan {
	out := make([]Orphan, 0, len(leftover))
	for _, pi := range leftover {
		out = append(out, Orphan{
			Item:         pi.Item,
			SourcePackID: pi.SourcePackID,
			Key:          key,
			Reason:       content.ReasonInsufficientForPack,
		})
	}
	return out
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}
