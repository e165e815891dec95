package rebalance

import (
	"sort"
	"time"

	"github.com/jazzypop/content-engine/internal/content"
)

// TransferPlanner fills one recipient at a time from a donor pack in the same
// group, moving only as many items as the recipient needs. The densest
// non-full pack receives first; donors are packs above target, else the
// smallest other non-full pack. A final partial pack is orphaned.
type TransferPlanner struct {
	opts PlannerOptions
}

var _ Planner = (*TransferPlanner)(nil)

func NewTransferPlanner(opts PlannerOptions) *TransferPlanner {
	return &TransferPlanner{opts: opts.withDefaults()}
}

func (t *TransferPlanner) Name() string { return StrategyTransfer }

type transferState struct {
	pack    content.Pack
	touched bool
}

func (t *TransferPlanner) Plan(key content.GroupKey, packs []content.Pack, targetSize int) Plan {
	plan := Plan{Strategy: t.Name()}
	if targetSize <= 0 || len(packs) == 0 {
		return plan
	}

	states := make([]*transferState, 0, len(packs))
	for _, p := range orderPacks(packs) {
		states = append(states, &transferState{pack: p})
	}

	for {
		recipient := pickRecipient(states, targetSize)
		if recipient == nil {
			break
		}
		donor := pickDonor(states, recipient, targetSize)
		if donor == nil {
			break
		}
		need := targetSize - len(recipient.pack.Items)
		avail := len(donor.pack.Items)
		if avail > targetSize {
			avail -= targetSize
		}
		n := min(need, avail)
		cut := len(donor.pack.Items) - n
		moved := donor.pack.Items[cut:]
		donor.pack.Items = donor.pack.Items[:cut:cut]
		recipient.pack.Items = append(recipient.pack.Items, moved...)
		recipient.touched = true
		donor.touched = true
		plan.ItemsMoved += n
	}

	now := t.opts.Now().UTC()
	for _, st := range states {
		count := len(st.pack.Items)
		switch {
		case count == 0:
			plan.Deleted = append(plan.Deleted, st.pack.ID)
		case count < targetSize:
			for _, it := range st.pack.Items {
				plan.Orphans = append(plan.Orphans, Orphan{
					Item:         it,
					SourcePackID: st.pack.ID,
					Key:          key,
					Reason:       content.ReasonInsufficientForPack,
				})
			}
			plan.Deleted = append(plan.Deleted, st.pack.ID)
		case st.touched:
			p := st.pack
			p.Items = content.Renumber(p.Items)
			p.Metadata = cloneMetadata(p.Metadata)
			p.Metadata[content.MetaRebalancedAt] = now.Format(time.RFC3339)
			p.Metadata[content.MetaRebalanceStrategy] = t.Name()
			p.UpdatedAt = now
			plan.Updated = append(plan.Updated, p)
		}
	}
	sort.Strings(plan.Deleted)
	return plan
}

func pickRecipient(states []*transferState, targetSize int) *transferState {
	var best *transferState
	for _, st := range states {
		n := len(st.pack.Items)
		if n == 0 || n >= targetSize {
			continue
		}
		if best == nil || n > len(best.pack.Items) {
			best = st
		}
	}
	return best
}

func pickDonor(states []*transferState, recipient *transferState, targetSize int) *transferState {
	var surplus, smallest *transferState
	for _, st := range states {
		if st == recipient {
			continue
		}
		n := len(st.pack.Items)
		switch {
		case n > targetSize:
			if surplus == nil || n > len(surplus.pack.Items) {
				surplus = st
			}
		case n > 0 && n < targetSize:
			if smallest == nil || n < len(smallest.pack.Items) {
				smallest = st
			}
		}
	}
	if surplus != nil {
		return surplus
	}
	return smallest
}
