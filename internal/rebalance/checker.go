package rebalance

import (
	"context"
	"fmt"
	"sort"
)

// Scanner reads pack fill levels from the content store.
type Scanner interface {
	// ListUnderfull returns active packs of contentType with 0 < item count < targetSize.
	ListUnderfull(ctx context.Context, contentType string, targetSize int) ([]PackSummary, error)
	// ListEmpty returns ids of active packs of contentType holding no items.
	ListEmpty(ctx context.Context, contentType string) ([]string, error)
}

// Checker finds packs violating the fill invariant. It never mutates storage.
type Checker struct {
	scanner Scanner
}

func NewChecker(scanner Scanner) *Checker {
	return &Checker{scanner: scanner}
}

// FindUnderfullPacks groups under-full packs by (type, category, mode) in a deterministic order.
func (c *Checker) FindUnderfullPacks(ctx context.Context, contentType string, targetSize int) ([]Group, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("invalid target size %d", targetSize)
	}
	rows, err := c.scanner.ListUnderfull(ctx, contentType, targetSize)
	if err != nil {
		return nil, fmt.Errorf("list underfull packs: %w", err)
	}

	index := make(map[string]int)
	var groups []Group
	for _, row := range rows {
		if row.ItemCount <= 0 || row.ItemCount >= targetSize {
			continue
		}
		k := row.Key.String()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: row.Key})
		}
		groups[i].Packs = append(groups[i].Packs, row)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Mode < b.Mode
	})
	for i := range groups {
		packs := groups[i].Packs
		sort.Slice(packs, func(a, b int) bool { return packs[a].ID < packs[b].ID })
	}
	return groups, nil
}

// FindEmptyPacks lists active packs with no items, for post-rebalance cleanup.
func (c *Checker) FindEmptyPacks(ctx context.Context, contentType string) ([]string, error) {
	ids, err := c.scanner.ListEmpty(ctx, contentType)
	if err != nil {
		return nil, fmt.Errorf("list empty packs: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
