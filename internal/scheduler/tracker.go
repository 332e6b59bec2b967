package scheduler

import "github.com/noah-isme/routine-api/internal/models"

// Reason names the constraint that rejected a (day, slot, course) placement.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonTeacherBusy Reason = "Teacher Busy"
	ReasonRoomBusy    Reason = "Room Busy"
	ReasonBatchBusy   Reason = "Batch Busy"
	ReasonDailyLimit  Reason = "Daily Theory Limit"
	ReasonNoSlotRun   Reason = "Not Enough Slots"
)

type teacherKey struct {
	Day     string
	Slot    string
	Teacher string
}

type roomKey struct {
	Day  string
	Slot string
	Room string
}

type batchKey struct {
	Day        string
	Slot       string
	Department string
	Semester   string
}

type dailyKey struct {
	Course string
	Day    string
}

// Tracker is the occupancy ledger of a single scheduling run.
type Tracker struct {
	teachers map[teacherKey]struct{}
	rooms    map[roomKey]struct{}
	batches  map[batchKey]struct{}
	daily    map[dailyKey]struct{}
	load     map[string]int
}

// NewTracker returns an empty ledger.
func NewTracker() *Tracker {
	return &Tracker{
		teachers: make(map[teacherKey]struct{}),
		rooms:    make(map[roomKey]struct{}),
		batches:  make(map[batchKey]struct{}),
		daily:    make(map[dailyKey]struct{}),
		load:     make(map[string]int),
	}
}

// Check returns the first violated constraint for placing course at (day, slot),
// evaluated as teacher, room, batch, then daily Theory repeat. ReasonNone means
// the placement is allowed.
func (t *Tracker) Check(day string, slot models.TimeSlot, course *models.Course) Reason {
	if course.HasTeacher() {
		if _, busy := t.teachers[teacherKey{Day: day, Slot: slot.ID, Teacher: *course.TeacherID}]; busy {
			return ReasonTeacherBusy
		}
	}
	if course.HasRoom() {
		if _, busy := t.rooms[roomKey{Day: day, Slot: slot.ID, Room: course.RoomNumber}]; busy {
			return ReasonRoomBusy
		}
	}
	if _, busy := t.batches[batchOf(day, slot, course)]; busy {
		return ReasonBatchBusy
	}
	if !course.IsLab() {
		if _, seen := t.daily[dailyKey{Course: course.ID, Day: day}]; seen {
			return ReasonDailyLimit
		}
	}
	return ReasonNone
}

// Assign records the course as occupying (day, slot) on every applicable axis.
func (t *Tracker) Assign(day string, slot models.TimeSlot, course *models.Course) {
	if course.HasTeacher() {
		t.teachers[teacherKey{Day: day, Slot: slot.ID, Teacher: *course.TeacherID}] = struct{}{}
	}
	if course.HasRoom() {
		t.rooms[roomKey{Day: day, Slot: slot.ID, Room: course.RoomNumber}] = struct{}{}
	}
	t.batches[batchOf(day, slot, course)] = struct{}{}
	if !course.IsLab() {
		t.daily[dailyKey{Course: course.ID, Day: day}] = struct{}{}
	}
	t.load[day]++
}

// Load returns the number of slot-units already assigned on day.
func (t *Tracker) Load(day string) int {
	return t.load[day]
}

// release undoes Assign. Only the backtracking strategy uses it; a Theory
// course holds at most one slot per day, so dropping its daily marker is exact.
func (t *Tracker) release(day string, slot models.TimeSlot, course *models.Course) {
	if course.HasTeacher() {
		delete(t.teachers, teacherKey{Day: day, Slot: slot.ID, Teacher: *course.TeacherID})
	}
	if course.HasRoom() {
		delete(t.rooms, roomKey{Day: day, Slot: slot.ID, Room: course.RoomNumber})
	}
	delete(t.batches, batchOf(day, slot, course))
	if !course.IsLab() {
		delete(t.daily, dailyKey{Course: course.ID, Day: day})
	}
	if t.load[day] > 0 {
		t.load[day]--
	}
}

func batchOf(day string, slot models.TimeSlot, course *models.Course) batchKey {
	return batchKey{Day: day, Slot: slot.ID, Department: course.DepartmentID, Semester: course.SemesterID}
}
