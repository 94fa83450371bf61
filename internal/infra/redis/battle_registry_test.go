package redis

import (
	"testing"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/coordinator"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

func TestRegistryMarksLivenessInRedis(t *testing.T) {
	mr, client := testClient(t)
	registry := NewBattleRegistry(client, time.Hour)

	battle := coordinator.NewBattle(domain.BattleSession{ID: 7, Status: domain.StatusWaiting}, domain.QuizPreview{})
	registry.Put(battle)

	got, ok := registry.Get(7)
	if !ok || got.ID() != 7 {
		t.Fatalf("expected battle 7 back, got ok=%v", ok)
	}
	if !mr.Exists("battle:session:7") {
		t.Fatalf("expected liveness key in redis")
	}

	registry.Delete(7)
	if _, ok := registry.Get(7); ok {
		t.Fatalf("expected battle gone after delete")
	}
	if mr.Exists("battle:session:7") {
		t.Fatalf("expected liveness key removed")
	}
}

func TestRegistryGetMissingBattle(t *testing.T) {
	_, client := testClient(t)
	registry := NewBattleRegistry(client, time.Hour)

	if _, ok := registry.Get(99); ok {
		t.Fatalf("expected miss for unknown battle")
	}
}
