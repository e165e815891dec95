package dedup

import (
	"context"

	"github.com/RoaringBitmap/roaring"

	"github.com/jazzypop/content-engine/internal/content"
)

// BitmapFilter tracks served packs by their dense sequence id in a roaring
// bitmap. The candidate query skips every seq set in the bitmap, so the
// bitmap is only reset once the pool holds fewer unseen packs than requested.
type BitmapFilter struct {
	seqs    SeqSource
	bitmaps BitmapStore
}

func (s *BitmapFilter) Name() string { return StrategyBitmap }

func (s *BitmapFilter) Select(ctx context.Context, viewer string, pool content.PoolKey, count int) ([]content.Pack, error) {
	bm, err := s.bitmaps.LoadBitmap(ctx, viewer, pool)
	if err != nil {
		return nil, err
	}

	picked, err := s.seqs.RandomWithSeq(ctx, pool, count, nil, bm.ToArray())
	if err != nil {
		return nil, err
	}

	if len(picked) < count {
		// pool exhausted
		bm = roaring.New()
		exclude := make([]string, len(picked))
		for i, p := range picked {
			exclude[i] = p.Pack.ID
		}
		more, err := s.seqs.RandomWithSeq(ctx, pool, count-len(picked), exclude, nil)
		if err != nil {
			return nil, err
		}
		picked = append(picked, more...)
	}

	out := make([]content.Pack, len(picked))
	for i, p := range picked {
		bm.Add(p.Seq)
		out[i] = p.Pack
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := s.bitmaps.SaveBitmap(ctx, viewer, pool, bm); err != nil {
		return nil, err
	}
	return out, nil
}
