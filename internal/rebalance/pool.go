package rebalance

import (
	"time"

	"github.com/jazzypop/content-engine/internal/content"
)

// PoolPlanner pools every item of a group, optionally filters the pool, and
// repacks it into as many full packs as possible. The remainder is orphaned.
type PoolPlanner struct {
	filter Filter
	opts   PlannerOptions
}

var _ Planner = (*PoolPlanner)(nil)

// NewPoolPlanner builds a pool-and-redistribute planner. A nil filter keeps every item.
func NewPoolPlanner(filter Filter, opts PlannerOptions) *PoolPlanner {
	return &PoolPlanner{filter: filter, opts: opts.withDefaults()}
}

func (p *PoolPlanner) Name() string {
	if p.filter != nil {
		return StrategyCriteria
	}
	return StrategyPool
}

func (p *PoolPlanner) Plan(key content.GroupKey, packs []content.Pack, targetSize int) Plan {
	plan := Plan{Strategy: p.Name()}
	if targetSize <= 0 || len(packs) == 0 {
		return plan
	}

	var pool []PoolItem
	for _, pk := range orderPacks(packs) {
		for _, it := range pk.Items {
			pool = append(pool, PoolItem{Item: it, SourcePackID: pk.ID})
		}
		plan.Deleted = append(plan.Deleted, pk.ID)
	}

	if p.filter != nil {
		pool, plan.Dropped = p.filter.Apply(pool)
	}

	now := p.opts.Now().UTC()
	for len(pool) >= targetSize {
		chunk := pool[:targetSize]
		pool = pool[targetSize:]
		plan.Created = append(plan.Created, p.newPack(key, chunk, now, len(plan.Dropped)))
		plan.ItemsMoved += len(chunk)
	}
	plan.Orphans = orphansOf(key, pool)
	return plan
}

func (p *PoolPlanner) newPack(key content.GroupKey, chunk []PoolItem, now time.Time, dropped int) content.Pack {
	items := make([]content.Item, len(chunk))
	var sources []string
	seen := make(map[string]bool)
	for i, pi := range chunk {
		items[i] = pi.Item
		if !seen[pi.SourcePackID] {
			seen[pi.SourcePackID] = true
			sources = append(sources, pi.SourcePackID)
		}
	}
	meta := map[string]any{
		content.MetaCreatedBy:         content.CreatedByRebalancer,
		content.MetaRebalancedAt:      now.Format(time.RFC3339),
		content.MetaRebalanceStrategy: p.Name(),
		content.MetaSourcePacks:       sources,
	}
	if p.filter != nil {
		meta[content.MetaItemsDropped] = dropped
	}
	return content.Pack{
		ID:        p.opts.NewID(),
		Type:      key.Type,
		Category:  key.Category,
		Mode:      key.Mode,
		Items:     content.Renumber(items),
		Metadata:  meta,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
