package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/noah-isme/routine-api/internal/models"
)

var (
	// ErrNoTimeSlots is returned when the slot axis is empty.
	ErrNoTimeSlots = errors.New("no time slots configured")
	// ErrNegativeCredits is returned for a course with credits below zero.
	ErrNegativeCredits = errors.New("course credits must not be negative")
)

// Session is one schedulable block of a course: Duration consecutive slots,
// attempted in Rank order across all courses.
type Session struct {
	Course   *models.Course
	Duration int
	Rank     int
}

// ValidateInput rejects inputs that must fail a run before planning starts.
func ValidateInput(courses []models.Course, slots []models.TimeSlot) error {
	if len(slots) == 0 {
		return ErrNoTimeSlots
	}
	for i := range courses {
		if courses[i].Credits < 0 {
			return fmt.Errorf("%w: %s has %d", ErrNegativeCredits, courses[i].Name, courses[i].Credits)
		}
	}
	return nil
}

// PlanSessions expands every course into its sessions and orders them by
// (rank asc, duration desc). The list is shuffled first so ties do not follow
// input order.
func PlanSessions(courses []models.Course, rng *rand.Rand) []Session {
	sessions := make([]Session, 0, len(courses)*2)
	for i := range courses {
		sessions = append(sessions, expandCourse(&courses[i])...)
	}

	if rng != nil {
		rng.Shuffle(len(sessions), func(i, j int) {
			sessions[i], sessions[j] = sessions[j], sessions[i]
		})
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Rank == sessions[j].Rank {
			return sessions[i].Duration > sessions[j].Duration
		}
		return sessions[i].Rank < sessions[j].Rank
	})
	return sessions
}

func expandCourse(course *models.Course) []Session {
	var sessions []Session
	if !course.IsLab() {
		for rank := 1; rank <= course.Credits; rank++ {
			sessions = append(sessions, Session{Course: course, Duration: 1, Rank: rank})
		}
		return sessions
	}

	remaining := course.Credits
	rank := 0
	for remaining >= 2 {
		rank++
		sessions = append(sessions, Session{Course: course, Duration: 2, Rank: rank})
		remaining -= 2
	}
	if remaining == 1 {
		rank++
		sessions = append(sessions, Session{Course: course, Duration: 1, Rank: rank})
	}
	return sessions
}
