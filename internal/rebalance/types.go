package rebalance

import (
	"time"

	"github.com/jazzypop/content-engine/internal/content"
)

// PackSummary is the checker's view of one under-full or empty pack.
type PackSummary struct {
	ID        string           `json:"pack_id"`
	Key       content.GroupKey `json:"group"`
	ItemCount int              `json:"item_count"`
	ItemIDs   []string         `json:"item_ids"`
}

// Group bundles the under-full packs sharing a (type, category, mode) key.
type Group struct {
	Key   content.GroupKey `json:"group"`
	Packs []PackSummary    `json:"packs"`
}

// ItemCount sums the item counts of every pack in the group.
func (g Group) ItemCount() int {
	total := 0
	for _, p := range g.Packs {
		total += p.ItemCount
	}
	return total
}

// PackIDs lists the group's pack ids in checker order.
func (g Group) PackIDs() []string {
	ids := make([]string, len(g.Packs))
	for i, p := range g.Packs {
		ids[i] = p.ID
	}
	return ids
}

// PoolItem is an item together with the pack it was pooled from.
type PoolItem struct {
	Item         content.Item
	SourcePackID string
}

// Orphan is an item that could not be placed into a full pack.
type Orphan struct {
	Item         content.Item
	SourcePackID string
	Key          content.GroupKey
	Reason       string
}

// Plan describes every mutation needed to rebalance one group.
type Plan struct {
	Strategy   string
	Created    []content.Pack
	Updated    []content.Pack
	Deleted    []string
	Orphans    []Orphan
	Dropped    []PoolItem
	ItemsMoved int
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Created) == 0 && len(p.Updated) == 0 && len(p.Deleted) == 0 && len(p.Orphans) == 0
}

// Summary aggregates the outcome of one rebalancing run.
type Summary struct {
	ContentType       string        `json:"content_type"`
	Strategy          string        `json:"strategy"`
	DryRun            bool          `json:"dry_run,omitempty"`
	GroupsExamined    int           `json:"groups_examined"`
	GroupsProcessed   int           `json:"groups_processed"`
	GroupsSkipped     int           `json:"groups_skipped"`
	PacksExamined     int           `json:"packs_examined"`
	PacksDeleted      int           `json:"packs_deleted"`
	FullPacksCreated  int           `json:"full_packs_created"`
	PacksUpdated      int           `json:"packs_updated"`
	ItemsMoved        int           `json:"items_moved"`
	ItemsDropped      int           `json:"items_dropped"`
	OrphansArchived   int           `json:"orphans_archived"`
	ArchiveFailures   int           `json:"archive_failures"`
	EmptyPacksDeleted int           `json:"empty_packs_deleted"`
	Errors            int           `json:"errors"`
	Duration          time.Duration `json:"duration"`
}

func (s *Summary) add(r groupResult) {
	s.GroupsProcessed++
	s.PacksExamined += r.examined
	s.PacksDeleted += r.deleted
	s.FullPacksCreated += r.created
	s.PacksUpdated += r.updated
	s.ItemsMoved += r.moved
	s.ItemsDropped += r.dropped
	s.OrphansArchived += r.archived
	s.ArchiveFailures += r.archiveFailures
}

type groupResult struct {
	examined        int
	deleted         int
	created         int
	updated         int
	moved           int
	dropped         int
	archived        int
	archiveFailures int
	skipped         bool
}
