package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/noah-isme/routine-api/internal/models"
)

// Strategy selects how the engine searches for placements.
type Strategy string

const (
	// StrategyGreedy places sessions in one pass without revisiting earlier choices.
	StrategyGreedy Strategy = "greedy"
	// StrategyBacktracking searches for a complete assignment within a step
	// budget and falls back to the greedy pass when none is found.
	StrategyBacktracking Strategy = "backtracking"
)

const defaultBacktrackLimit = 100000

// ErrUnknownStrategy is returned by ParseStrategy for unsupported names.
var ErrUnknownStrategy = errors.New("unknown scheduling strategy")

// DefaultDays is the teaching week in calendar order.
var DefaultDays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday"}

// ParseStrategy maps a configuration value onto a Strategy. Empty means greedy.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrategyGreedy:
		return StrategyGreedy, nil
	case StrategyBacktracking:
		return StrategyBacktracking, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
	}
}

// Placement is one occupied cell. A two-slot session yields two placements
// on the same day at consecutive slot indices.
type Placement struct {
	Day       string
	Slot      models.TimeSlot
	SlotIndex int
	Course    *models.Course
	Rank      int
}

// DroppedSession is a session no slot run could accept, with every rejection
// reason seen while searching.
type DroppedSession struct {
	Session Session
	Reasons map[Reason]int
}

// String renders the diagnostic line reported for the dropped session.
func (d DroppedSession) String() string {
	return fmt.Sprintf("%s (Round %d) - Failed. Reasons: %s", d.Session.Course.Name, d.Session.Rank, formatReasons(d.Reasons))
}

// Result is the outcome of one engine run. Scheduled + len(Dropped) == Total.
type Result struct {
	Strategy   Strategy
	Placements []Placement
	Total      int
	Scheduled  int
	Dropped    []DroppedSession
	// FellBack is set when backtracking gave up and the greedy pass produced the result.
	FellBack bool
	Steps    int
}

// Diagnostics returns the report line of every dropped session.
func (r Result) Diagnostics() []string {
	lines := make([]string, 0, len(r.Dropped))
	for _, dropped := range r.Dropped {
		lines = append(lines, dropped.String())
	}
	return lines
}

// Config tunes the engine.
type Config struct {
	Days           []string
	Strategy       Strategy
	BacktrackLimit int
}

// Engine assigns planned sessions to (day, slot) runs.
type Engine struct {
	days     []string
	strategy Strategy
	limit    int
}

// NewEngine builds an engine, defaulting to the five-day week and the greedy strategy.
func NewEngine(cfg Config) *Engine {
	days := cfg.Days
	if len(days) == 0 {
		days = DefaultDays
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyGreedy
	}
	if cfg.BacktrackLimit <= 0 {
		cfg.BacktrackLimit = defaultBacktrackLimit
	}
	return &Engine{
		days:     append([]string(nil), days...),
		strategy: cfg.Strategy,
		limit:    cfg.BacktrackLimit,
	}
}

// Days returns the engine's day list in calendar order.
func (e *Engine) Days() []string {
	return append([]string(nil), e.days...)
}

// Generate validates the snapshot, plans sessions and runs them against a fresh tracker.
func (e *Engine) Generate(courses []models.Course, slots []models.TimeSlot, rng *rand.Rand) (Result, error) {
	if err := ValidateInput(courses, slots); err != nil {
		return Result{}, err
	}
	sessions := PlanSessions(courses, rng)
	return e.Run(NewTracker(), sessions, slots), nil
}

// Run places sessions in order using tracker, which must be empty.
func (e *Engine) Run(tracker *Tracker, sessions []Session, slots []models.TimeSlot) Result {
	if e.strategy == StrategyBacktracking {
		result, ok := e.runBacktracking(tracker, sessions, slots)
		if ok {
			return result
		}
		fallback := e.runGreedy(tracker, sessions, slots)
		fallback.Strategy = StrategyBacktracking
		fallback.FellBack = true
		fallback.Steps = result.Steps
		return fallback
	}
	return e.runGreedy(tracker, sessions, slots)
}

func (e *Engine) runGreedy(tracker *Tracker, sessions []Session, slots []models.TimeSlot) Result {
	result := Result{
		Strategy:   StrategyGreedy,
		Total:      len(sessions),
		Placements: make([]Placement, 0, len(sessions)),
	}
	for _, session := range sessions {
		reasons := make(map[Reason]int)
		day, start, ok := e.findRun(tracker, session, slots, reasons)
		if !ok {
			result.Dropped = append(result.Dropped, DroppedSession{Session: session, Reasons: reasons})
			continue
		}
		result.Placements = e.commit(tracker, result.Placements, session, day, start, slots)
		result.Scheduled++
	}
	return result
}

// findRun returns the first (day, offset) whose slot run accepts the session.
// Rejections are tallied into reasons when it is non-nil.
func (e *Engine) findRun(tracker *Tracker, session Session, slots []models.TimeSlot, reasons map[Reason]int) (string, int, bool) {
	if session.Duration > len(slots) {
		if reasons != nil {
			reasons[ReasonNoSlotRun]++
		}
		return "", 0, false
	}
	for _, day := range e.orderedDays(tracker) {
		for i := 0; i+session.Duration <= len(slots); i++ {
			if runFits(tracker, day, slots[i:i+session.Duration], session.Course, reasons) {
				return day, i, true
			}
		}
	}
	return "", 0, false
}

func runFits(tracker *Tracker, day string, run []models.TimeSlot, course *models.Course, reasons map[Reason]int) bool {
	for _, slot := range run {
		if reason := tracker.Check(day, slot, course); reason != ReasonNone {
			if reasons != nil {
				reasons[reason]++
			}
			return false
		}
	}
	return true
}

func (e *Engine) commit(tracker *Tracker, placements []Placement, session Session, day string, start int, slots []models.TimeSlot) []Placement {
	for i := start; i < start+session.Duration; i++ {
		tracker.Assign(day, slots[i], session.Course)
		placements = append(placements, Placement{
			Day:       day,
			Slot:      slots[i],
			SlotIndex: i,
			Course:    session.Course,
			Rank:      session.Rank,
		})
	}
	return placements
}

// orderedDays sorts days by current load, keeping calendar order on ties.
func (e *Engine) orderedDays(tracker *Tracker) []string {
	order := make([]string, len(e.days))
	copy(order, e.days)
	sort.SliceStable(order, func(i, j int) bool {
		return tracker.Load(order[i]) < tracker.Load(order[j])
	})
	return order
}

func formatReasons(reasons map[Reason]int) string {
	keys := make([]Reason, 0, len(reasons))
	for reason := range reasons {
		keys = append(keys, reason)
	}
	sort.Slice(keys, func(i, j int) bool {
		if reasons[keys[i]] == reasons[keys[j]] {
			return keys[i] < keys[j]
		}
		return reasons[keys[i]] > reasons[keys[j]]
	})
	parts := make([]string, 0, len(keys))
	for _, reason := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", reason, reasons[reason]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
