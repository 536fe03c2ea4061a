package models

import "time"

// BreakKind distinguishes the non-teaching windows inside a timetable.
type BreakKind string

const (
	BreakKindShort BreakKind = "SHORT_BREAK"
	BreakKindLunch BreakKind = "LUNCH_BREAK"
)

// Valid reports whether the kind is one of the known break kinds.
func (k BreakKind) Valid() bool {
	return k == BreakKindShort || k == BreakKindLunch
}

// Timetable is the weekly recurring schedule root for one class or class
// group within one term. At most one timetable exists per (term, class) and
// per (term, class group) pair.
type Timetable struct {
	ID           string    `db:"id" json:"id"`
	TermID       string    `db:"term_id" json:"term_id"`
	ClassID      *string   `db:"class_id" json:"class_id,omitempty"`
	ClassGroupID *string   `db:"class_group_id" json:"class_group_id,omitempty"`
	StartTime    TimeOfDay `db:"start_time" json:"start_time"`
	EndTime      TimeOfDay `db:"end_time" json:"end_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	BreakWindows []BreakWindow `db:"-" json:"break_windows"`
	Periods      []Period      `db:"-" json:"periods"`
}

// BreakWindow is a non-teaching interval owned by one timetable. Break
// windows are created with the timetable and have no update path.
type BreakWindow struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	Kind        BreakKind `db:"kind" json:"kind"`
	DayOfWeek   DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartTime   TimeOfDay `db:"start_time" json:"start_time"`
	EndTime     TimeOfDay `db:"end_time" json:"end_time"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Interval returns the break's time range.
func (b BreakWindow) Interval() Interval {
	return Interval{Day: b.DayOfWeek, Start: b.StartTime, End: b.EndTime}
}

// Period is a scheduled teaching slot binding a subject, teacher and
// classroom to an interval within a timetable.
type Period struct {
	ID              string    `db:"id" json:"id"`
	TimetableID     string    `db:"timetable_id" json:"timetable_id"`
	SubjectID       string    `db:"subject_id" json:"subject_id"`
	TeacherID       string    `db:"teacher_id" json:"teacher_id"`
	ClassroomID     string    `db:"classroom_id" json:"classroom_id"`
	DayOfWeek       DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartTime       TimeOfDay `db:"start_time" json:"start_time"`
	EndTime         TimeOfDay `db:"end_time" json:"end_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Interval returns the period's time range.
func (p Period) Interval() Interval {
	return Interval{Day: p.DayOfWeek, Start: p.StartTime, End: p.EndTime}
}

// ConflictKind labels the dimension on which a candidate period collides.
type ConflictKind string

const (
	ConflictTeacher   ConflictKind = "TEACHER"
	ConflictClassroom ConflictKind = "CLASSROOM"
	ConflictBreakTime ConflictKind = "BREAK_TIME"
)

// ScheduleConflict reports one collision between a candidate period and the
// existing schedule.
type ScheduleConflict struct {
	Kind                ConflictKind `json:"kind"`
	ConflictingInterval Interval     `json:"conflicting_interval"`
	ConflictingEntityID string       `json:"conflicting_entity_id"`
}

// AvailabilityCheck is the full result of conflict detection for one
// candidate. All conflicts are collected, not just the first.
type AvailabilityCheck struct {
	IsAvailable bool               `json:"is_available"`
	Conflicts   []ScheduleConflict `json:"conflicts,omitempty"`
}

// TimetableConflictError carries every detected conflict so the caller can
// fix all of them in one round trip.
type TimetableConflictError struct {
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface.
func (e *TimetableConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
