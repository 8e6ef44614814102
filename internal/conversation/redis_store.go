package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// stateTTL bounds how long a cached record outlives its last touch. The
// journal remains authoritative, so expiry only costs a rebuild.
const defaultStateTTL = 24 * time.Hour

// RedisStore caches SaleState records in Redis so multiple instances share
// one view of in-flight conversations.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed cache. A zero ttl means the default.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("giftcardbot.internal.conversation.state")
	}
	return &RedisStore{redis: client, ttl: ttl, tracer: tracer}
}

func stateKey(saleID string) string {
	return fmt.Sprintf("sale:%s", saleID)
}

const stateIndexKey = "sale:index"

func (s *RedisStore) Get(ctx context.Context, saleID string) (*SaleState, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.state_get")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(saleID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load state: %w", err)
	}

	var state SaleState
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: decode state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, state *SaleState) error {
	ctx, span := s.tracer.Start(ctx, "conversation.state_put")
	defer span.End()

	if state == nil || state.SaleID == "" {
		return errors.New("conversation: state requires a sale id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal state: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, stateKey(state.SaleID), data, s.ttl)
	pipe.SAdd(ctx, stateIndexKey, state.SaleID)
	pipe.Expire(ctx, stateIndexKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: persist state: %w", err)
	}
	return nil
}

// List returns every cached record still alive. Index members whose record
// expired are pruned lazily.
func (s *RedisStore) List(ctx context.Context) ([]*SaleState, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.state_list")
	defer span.End()

	saleIDs, err := s.redis.SMembers(ctx, stateIndexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: list states: %w", err)
	}

	out := make([]*SaleState, 0, len(saleIDs))
	for _, saleID := range saleIDs {
		state, err := s.Get(ctx, saleID)
		if err != nil {
			if errors.Is(err, ErrStateNotFound) {
				s.redis.SRem(ctx, stateIndexKey, saleID)
				continue
			}
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

var _ StateStore = (*RedisStore)(nil)
