package scheduler

import "github.com/noah-isme/routine-api/internal/models"

type backtracker struct {
	engine     *Engine
	tracker    *Tracker
	sessions   []Session
	slots      []models.TimeSlot
	placements []Placement
	steps      int
	exhausted  bool
}

// runBacktracking looks for an assignment that places every session. On
// failure the tracker is left exactly as it was received.
func (e *Engine) runBacktracking(tracker *Tracker, sessions []Session, slots []models.TimeSlot) (Result, bool) {
	b := &backtracker{
		engine:     e,
		tracker:    tracker,
		sessions:   sessions,
		slots:      slots,
		placements: make([]Placement, 0, len(sessions)),
	}
	if !b.solve(0) {
		return Result{Strategy: StrategyBacktracking, Steps: b.steps}, false
	}
	return Result{
		Strategy:   StrategyBacktracking,
		Placements: b.placements,
		Total:      len(sessions),
		Scheduled:  len(sessions),
		Steps:      b.steps,
	}, true
}

func (b *backtracker) solve(idx int) bool {
	if idx >= len(b.sessions) {
		return true
	}
	if b.steps >= b.engine.limit {
		b.exhausted = true
		return false
	}
	b.steps++

	session := b.sessions[idx]
	if session.Duration > len(b.slots) {
		return false
	}
	for _, day := range b.engine.orderedDays(b.tracker) {
		for i := 0; i+session.Duration <= len(b.slots); i++ {
			run := b.slots[i : i+session.Duration]
			if !runFits(b.tracker, day, run, session.Course, nil) {
				continue
			}
			mark := len(b.placements)
			b.placements = b.engine.commit(b.tracker, b.placements, session, day, i, b.slots)
			if b.solve(idx + 1) {
				return true
			}
			for _, slot := range run {
				b.tracker.release(day, slot, session.Course)
			}
			b.placements = b.placements[:mark]
			if b.exhausted {
				return false
			}
		}
	}
	return false
}
