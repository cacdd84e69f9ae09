package app

import (
	"sort"
	"sync"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
)

// Scheduler modes.
const (
	ModeScore   = "score"
	ModeScanAll = "scan_all"
)

// SchedulerConfig holds the scoring policy.
type SchedulerConfig struct {
	Mode         string
	Reward       int
	Penalty      int
	FloorEnabled bool
	Floor        int
}

// DefaultSchedulerConfig returns +10 / -1 greedy scoring without a floor.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Mode:    ModeScore,
		Reward:  10,
		Penalty: 1,
		Floor:   -100,
	}
}

// Scheduler owns the cycle scores and decides what to evaluate next. It
// also guarantees at most one in-flight execution per cycle.
type Scheduler struct {
	cfg SchedulerConfig

	mu       sync.Mutex
	cycles   []domain.Cycle // sorted by id
	scores   map[string]int
	inFlight map[string]struct{}
}

// NewScheduler creates a scheduler over cycles, all starting at score 0.
func NewScheduler(cycles []domain.Cycle, cfg SchedulerConfig) *Scheduler {
	sorted := append([]domain.Cycle(nil), cycles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	scores := make(map[string]int, len(sorted))
	for _, c := range sorted {
		scores[c.ID()] = 0
	}
	return &Scheduler{
		cfg:      cfg,
		cycles:   sorted,
		scores:   scores,
		inFlight: make(map[string]struct{}),
	}
}

// Len returns the number of scheduled cycles.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cycles)
}

// Pick returns the highest scoring cycle not in flight. Ties go to the
// lowest cycle id.
func (s *Scheduler) Pick() (domain.Cycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best domain.Cycle
	found := false
	bestScore := 0
	for _, c := range s.cycles {
		if _, busy := s.inFlight[c.ID()]; busy {
			continue
		}
		// cycles are sorted, so a strict comparison keeps the lowest id on ties
		if score := s.scores[c.ID()]; !found || score > bestScore {
			best, bestScore, found = c, score, true
		}
	}
	return best, found
}

// Round returns the cycles to evaluate in one loop iteration: the best one
// in score mode, every cycle in scan-all mode.
func (s *Scheduler) Round() []domain.Cycle {
	if s.cfg.Mode == ModeScanAll {
		s.mu.Lock()
		defer s.mu.Unlock()
		return append([]domain.Cycle(nil), s.cycles...)
	}
	c, ok := s.Pick()
	if !ok {
		return nil
	}
	return []domain.Cycle{c}
}

// Reward adds the reward to a cycle that was executed.
func (s *Scheduler) Reward(id string) int {
	return s.adjust(id, s.cfg.Reward)
}

// Penalize subtracts the penalty from a cycle that was not profitable.
func (s *Scheduler) Penalize(id string) int {
	return s.adjust(id, -s.cfg.Penalty)
}

func (s *Scheduler) adjust(id string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[id]
	if !ok {
		return 0
	}
	score += delta
	if s.cfg.FloorEnabled && score < s.cfg.Floor {
		score = s.cfg.Floor
	}
	s.scores[id] = score
	return score
}

// Score returns the current score of a cycle.
func (s *Scheduler) Score(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[id]
}

// Scores returns a snapshot of every score.
func (s *Scheduler) Scores() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.scores))
	for id, score := range s.scores {
		out[id] = score
	}
	return out
}

// Acquire marks a cycle in flight. It returns false if it already was.
func (s *Scheduler) Acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

// Release clears the in-flight mark.
func (s *Scheduler) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
