package content

import (
	"time"
)

// Content type constants stored in content.type.
const (
	TypeQuizSet      = "quiz_set"
	TypeQuoteSet     = "quote_set"
	TypePunSet       = "pun_set"
	TypeJokeSet      = "joke_set"
	TypeFlashcardSet = "flashcard_set"
)

// DefaultTargetSize is the number of items every active pack should hold.
const DefaultTargetSize = 10

// Metadata keys written by the rebalancer.
const (
	MetaCreatedBy         = "created_by"
	MetaRebalancedAt      = "rebalanced_at"
	MetaRebalanceStrategy = "rebalance_strategy"
	MetaSourcePacks       = "source_packs"
	MetaItemsDropped      = "items_dropped"

	CreatedByRebalancer = "rebalancer"
)

// Orphan archive reasons.
const (
	ReasonInsufficientForPack = "insufficient_for_pack"
)

var knownTypes = map[string]struct{}{
	TypeQuizSet:      {},
	TypeQuoteSet:     {},
	TypePunSet:       {},
	TypeJokeSet:      {},
	TypeFlashcardSet: {},
}

// IsKnownType reports whether t is a content type served by the platform.
func IsKnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// Pack is a content record bundling up to a target number of items.
type Pack struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Category  string         `json:"category"`
	Mode      string         `json:"mode"`
	Items     []Item         `json:"items"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Group returns the rebalancing partition the pack belongs to.
func (p Pack) Group() GroupKey {
	return GroupKey{Type: p.Type, Category: p.Category, Mode: p.Mode}
}

// Data is the JSON blob persisted in content.data.
type Data struct {
	Category string         `json:"category"`
	Mode     string         `json:"mode"`
	Items    []Item         `json:"items"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DataOf extracts the persisted blob of a pack.
func DataOf(p Pack) Data {
	items := p.Items
	if items == nil {
		items = []Item{}
	}
	return Data{Category: p.Category, Mode: p.Mode, Items: items, Metadata: p.Metadata}
}

// GroupKey identifies a (type, category, mode) partition. Items never move across groups.
type GroupKey struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Mode     string `json:"mode"`
}

func (k GroupKey) String() string {
	return k.Type + "/" + k.Category + "/" + k.Mode
}

// PoolKey identifies the pool a selection draws from. An empty Category means every category.
type PoolKey struct {
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
}

func (k PoolKey) String() string {
	if k.Category == "" {
		return k.Type + ":*"
	}
	return k.Type + ":" + k.Category
}

// Renumber reassigns contiguous positions in slice order.
func Renumber(items []Item) []Item {
	for i := range items {
		items[i].Position = i
	}
	return items
}

// ItemIDs returns the ids of items in order.
func ItemIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// PackIDs returns the ids of packs in order.
func PackIDs(packs []Pack) []string {
	ids := make([]string, len(packs))
	for i, p := range packs {
		ids[i] = p.ID
	}
	return ids
}
