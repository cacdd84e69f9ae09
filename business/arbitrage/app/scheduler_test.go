package app

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
)

func testCycles() []domain.Cycle {
	return []domain.Cycle{
		domain.NewCycle("USDT", "ETH", "LINK"),
		domain.NewCycle("USDT", "BTC", "ETH"),
		domain.NewCycle("USDT", "BTC", "BNB"),
	}
}

func TestScheduler_PickHighestScoreTiesByID(t *testing.T) {
	s := NewScheduler(testCycles(), DefaultSchedulerConfig())

	c, ok := s.Pick()
	require.True(t, ok)
	assert.Equal(t, "USDT_BTC_BNB", c.ID(), "all at 0: lowest id wins")

	s.Penalize("USDT_BTC_BNB")
	c, _ = s.Pick()
	assert.Equal(t, "USDT_BTC_ETH", c.ID())

	s.Reward("USDT_ETH_LINK")
	c, _ = s.Pick()
	assert.Equal(t, "USDT_ETH_LINK", c.ID())
	assert.Equal(t, 10, s.Score("USDT_ETH_LINK"))
}

func TestScheduler_ScoreFloor(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		misses  int
		want    int
	}{
		{"unbounded", false, 150, -150},
		{"clamped", true, 150, -100},
		{"above_floor", true, 20, -20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSchedulerConfig()
			cfg.FloorEnabled = tt.enabled
			s := NewScheduler(testCycles(), cfg)

			for i := 0; i < tt.misses; i++ {
				s.Penalize("USDT_BTC_ETH")
			}
			assert.Equal(t, tt.want, s.Score("USDT_BTC_ETH"))
		})
	}
}

func TestScheduler_Round(t *testing.T) {
	t.Run("score_mode_returns_one", func(t *testing.T) {
		s := NewScheduler(testCycles(), DefaultSchedulerConfig())
		round := s.Round()
		require.Len(t, round, 1)
		assert.Equal(t, "USDT_BTC_BNB", round[0].ID())
	})

	t.Run("scan_all_returns_every_cycle_sorted", func(t *testing.T) {
		cfg := DefaultSchedulerConfig()
		cfg.Mode = ModeScanAll
		s := NewScheduler(testCycles(), cfg)

		round := s.Round()
		require.Len(t, round, 3)
		assert.Equal(t, "USDT_BTC_BNB", round[0].ID())
		assert.Equal(t, "USDT_BTC_ETH", round[1].ID())
		assert.Equal(t, "USDT_ETH_LINK", round[2].ID())
	})

	t.Run("empty", func(t *testing.T) {
		s := NewScheduler(nil, DefaultSchedulerConfig())
		assert.Empty(t, s.Round())
	})
}

func TestScheduler_UnknownCycleIgnored(t *testing.T) {
	s := NewScheduler(testCycles(), DefaultSchedulerConfig())
	assert.Equal(t, 0, s.Reward("EUR_X_Y"))
	assert.NotContains(t, s.Scores(), "EUR_X_Y")
}

func TestScheduler_AtMostOneInFlight(t *testing.T) {
	s := NewScheduler(testCycles(), DefaultSchedulerConfig())

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Acquire("USDT_BTC_ETH") {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), acquired.Load())

	// an in-flight cycle is not picked
	s.Penalize("USDT_BTC_BNB")
	s.Penalize("USDT_ETH_LINK")
	c, ok := s.Pick()
	require.True(t, ok)
	assert.NotEqual(t, "USDT_BTC_ETH", c.ID())

	s.Release("USDT_BTC_ETH")
	assert.True(t, s.Acquire("USDT_BTC_ETH"))
}
