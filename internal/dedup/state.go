package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"github.com/jazzypop/content-engine/internal/content"
)

const defaultStatePrefix = "dedup"

// RedisState stores per-viewer dedup state in Redis. A zero TTL keeps state forever.
type RedisState struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	enc *zstd.Encoder
	dec *zstd.Decoder
}

var (
	_ SeenStore     = (*RedisState)(nil)
	_ BitmapStore   = (*RedisState)(nil)
	_ PositionStore = (*RedisState)(nil)
)

func NewRedisState(client *redis.Client, prefix string, ttl time.Duration) (*RedisState, error) {
	if prefix == "" {
		prefix = defaultStatePrefix
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &RedisState{client: client, prefix: prefix, ttl: ttl, enc: enc, dec: dec}, nil
}

func (s *RedisState) key(kind, viewer string, pool content.PoolKey) string {
	return strings.Join([]string{s.prefix, kind, viewer, pool.String()}, ":")
}

func (s *RedisState) LoadSeen(ctx context.Context, viewer string, pool content.PoolKey) ([]string, error) {
	data, err := s.client.Get(ctx, s.key("seen", viewer, pool)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, stateErr(err)
	}
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress seen list: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode seen list: %w", err)
	}
	return ids, nil
}

func (s *RedisState) SaveSeen(ctx context.Context, viewer string, pool content.PoolKey, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	data := s.enc.EncodeAll(raw, nil)
	return stateErr(s.client.Set(ctx, s.key("seen", viewer, pool), data, s.ttl).Err())
}

func (s *RedisState) LoadBitmap(ctx context.Context, viewer string, pool content.PoolKey) (*roaring.Bitmap, error) {
	bm := roaring.New()
	data, err := s.client.Get(ctx, s.key("bitmap", viewer, pool)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return bm, nil
		}
		return nil, stateErr(err)
	}
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode bitmap: %w", err)
	}
	return bm, nil
}

func (s *RedisState) SaveBitmap(ctx context.Context, viewer string, pool content.PoolKey, bm *roaring.Bitmap) error {
	bm.RunOptimize()
	data, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("encode bitmap: %w", err)
	}
	return stateErr(s.client.Set(ctx, s.key("bitmap", viewer, pool), data, s.ttl).Err())
}

func (s *RedisState) LoadPosition(ctx context.Context, viewer string, pool content.PoolKey) (int, int64, error) {
	vals, err := s.client.HGetAll(ctx, s.key("position", viewer, pool)).Result()
	if err != nil {
		return 0, 0, stateErr(err)
	}
	if len(vals) == 0 {
		return 0, 0, nil
	}
	pos, err := strconv.Atoi(vals["pos"])
	if err != nil {
		return 0, 0, fmt.Errorf("decode position: %w", err)
	}
	epoch, err := strconv.ParseInt(vals["epoch"], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("decode epoch: %w", err)
	}
	return pos, epoch, nil
}

func (s *RedisState) SavePosition(ctx context.Context, viewer string, pool content.PoolKey, pos int, epoch int64) error {
	key := s.key("position", viewer, pool)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "pos", pos, "epoch", epoch)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return stateErr(err)
}

func stateErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: redis: %v", content.ErrStoreUnavailable, err)
}
