package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/coordinator"
)

// BattleRegistry is a Redis-aware implementation of
// coordinator.BattleRegistry. Battles stay in a local map (broadcasting is
// in-process through the broker); Redis marks battle liveness so operators
// and sibling services can see which battles exist.
type BattleRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.RWMutex
	battles map[int64]*coordinator.Battle
}

func NewBattleRegistry(client *redis.Client, ttl time.Duration) *BattleRegistry {
	return &BattleRegistry{
		client:  client,
		ttl:     ttl,
		battles: make(map[int64]*coordinator.Battle),
	}
}

func (r *BattleRegistry) Put(battle *coordinator.Battle) {
	battleID := battle.ID()
	r.mu.Lock()
	r.battles[battleID] = battle
	r.mu.Unlock()
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(battleID), "1", r.ttl).Err()
}

func (r *BattleRegistry) Get(battleID int64) (*coordinator.Battle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	battle, ok := r.battles[battleID]
	return battle, ok
}

func (r *BattleRegistry) Delete(battleID int64) {
	r.mu.Lock()
	delete(r.battles, battleID)
	r.mu.Unlock()
	_ = r.client.Del(context.Background(), r.key(battleID)).Err()
}

func (r *BattleRegistry) key(battleID int64) string {
	return "battle:session:" + strconv.FormatInt(battleID, 10)
}
