package memory

import (
	"sync"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/coordinator"
)

// BattleRegistry is an in-memory implementation of coordinator.BattleRegistry.
type BattleRegistry struct {
	mu      sync.RWMutex
	battles map[int64]*coordinator.Battle
}

func NewBattleRegistry() *BattleRegistry {
	return &BattleRegistry{battles: make(map[int64]*coordinator.Battle)}
}

func (r *BattleRegistry) Put(battle *coordinator.Battle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.battles[battle.ID()] = battle
}

func (r *BattleRegistry) Get(battleID int64) (*coordinator.Battle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	battle, ok := r.battles[battleID]
	return battle, ok
}

func (r *BattleRegistry) Delete(battleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.battles, battleID)
}
