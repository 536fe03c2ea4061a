package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func mustTime(t *testing.T, raw string) models.TimeOfDay {
	t.Helper()
	parsed, err := models.ParseTimeOfDay(raw)
	require.NoError(t, err)
	return parsed
}

func period(t *testing.T, id, teacherID, classroomID string, day models.DayOfWeek, start, end string) models.Period {
	t.Helper()
	return models.Period{
		ID:          id,
		SubjectID:   "subj-1",
		TeacherID:   teacherID,
		ClassroomID: classroomID,
		DayOfWeek:   day,
		StartTime:   mustTime(t, start),
		EndTime:     mustTime(t, end),
	}
}

func breakWindow(t *testing.T, id string, day models.DayOfWeek, start, end string) models.BreakWindow {
	t.Helper()
	return models.BreakWindow{
		ID:        id,
		Kind:      models.BreakKindShort,
		DayOfWeek: day,
		StartTime: mustTime(t, start),
		EndTime:   mustTime(t, end),
	}
}

func TestCheckAvailabilityTeacherConflict(t *testing.T) {
	existing := []models.Period{period(t, "p1", "teacher-1", "room-1", models.Monday, "09:00", "10:00")}
	candidate := period(t, "", "teacher-1", "room-2", models.Monday, "09:30", "10:30")

	result := CheckAvailability(candidate, existing, nil)
	assert.False(t, result.IsAvailable)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, result.Conflicts[0].Kind)
	assert.Equal(t, "p1", result.Conflicts[0].ConflictingEntityID)
}

func TestCheckAvailabilityClassroomConflict(t *testing.T) {
	existing := []models.Period{period(t, "p1", "teacher-1", "room-1", models.Monday, "09:00", "10:00")}
	candidate := period(t, "", "teacher-2", "room-1", models.Monday, "09:30", "10:30")

	result := CheckAvailability(candidate, existing, nil)
	assert.False(t, result.IsAvailable)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictClassroom, result.Conflicts[0].Kind)
}

func TestCheckAvailabilityBreakConflict(t *testing.T) {
	breaks := []models.BreakWindow{breakWindow(t, "b1", models.Monday, "10:00", "10:15")}
	candidate := period(t, "", "teacher-1", "room-1", models.Monday, "09:30", "10:05")

	result := CheckAvailability(candidate, nil, breaks)
	assert.False(t, result.IsAvailable)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictBreakTime, result.Conflicts[0].Kind)
	assert.Equal(t, "b1", result.Conflicts[0].ConflictingEntityID)
}

func TestCheckAvailabilityCollectsEveryDimension(t *testing.T) {
	existing := []models.Period{
		period(t, "p1", "teacher-1", "room-2", models.Monday, "09:00", "10:00"),
		period(t, "p2", "teacher-2", "room-1", models.Monday, "09:00", "10:00"),
	}
	breaks := []models.BreakWindow{breakWindow(t, "b1", models.Monday, "09:45", "10:00")}
	candidate := period(t, "", "teacher-1", "room-1", models.Monday, "09:30", "10:30")

	result := CheckAvailability(candidate, existing, breaks)
	assert.False(t, result.IsAvailable)
	require.Len(t, result.Conflicts, 3)

	kinds := make(map[models.ConflictKind]int)
	for _, c := range result.Conflicts {
		kinds[c.Kind]++
	}
	assert.Equal(t, 1, kinds[models.ConflictTeacher])
	assert.Equal(t, 1, kinds[models.ConflictClassroom])
	assert.Equal(t, 1, kinds[models.ConflictBreakTime])
}

func TestCheckAvailabilityTouchingEndpointsAreFree(t *testing.T) {
	existing := []models.Period{period(t, "p1", "teacher-1", "room-1", models.Monday, "09:00", "10:00")}
	breaks := []models.BreakWindow{breakWindow(t, "b1", models.Monday, "08:45", "09:00")}
	candidate := period(t, "", "teacher-1", "room-1", models.Monday, "10:00", "11:00")

	result := CheckAvailability(candidate, existing, breaks)
	assert.True(t, result.IsAvailable)
	assert.Empty(t, result.Conflicts)
}

func TestCheckAvailabilityDifferentDaysNeverConflict(t *testing.T) {
	existing := []models.Period{period(t, "p1", "teacher-1", "room-1", models.Tuesday, "09:00", "10:00")}
	candidate := period(t, "", "teacher-1", "room-1", models.Monday, "09:00", "10:00")

	result := CheckAvailability(candidate, existing, nil)
	assert.True(t, result.IsAvailable)
}

func TestCheckBatchDetectsIntraBatchConflicts(t *testing.T) {
	candidates := []models.Period{
		period(t, "", "teacher-1", "room-1", models.Monday, "09:00", "10:00"),
		period(t, "", "teacher-1", "room-2", models.Monday, "09:30", "10:30"),
	}

	conflicts := CheckBatch(candidates, nil, nil)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, conflicts[0].Kind)
}

func TestCheckBatchDoesNotMutateExisting(t *testing.T) {
	existing := []models.Period{period(t, "p1", "teacher-1", "room-1", models.Monday, "08:00", "09:00")}
	candidates := []models.Period{
		period(t, "", "teacher-2", "room-2", models.Monday, "09:00", "10:00"),
		period(t, "", "teacher-3", "room-3", models.Monday, "10:00", "11:00"),
	}

	conflicts := CheckBatch(candidates, existing, nil)
	assert.Empty(t, conflicts)
	assert.Len(t, existing, 1)
	assert.Equal(t, "p1", existing[0].ID)
}

func TestCheckBatchAgainstPersistedSchedule(t *testing.T) {
	existing := []models.Period{
		period(t, "p1", "teacher-1", "room-1", models.Monday, "09:00", "10:00"),
		period(t, "p2", "teacher-2", "room-2", models.Wednesday, "09:00", "10:00"),
	}
	candidates := []models.Period{
		period(t, "", "teacher-1", "room-3", models.Monday, "09:30", "10:30"),
		period(t, "", "teacher-3", "room-2", models.Wednesday, "09:00", "09:45"),
	}

	conflicts := CheckBatch(candidates, existing, nil)
	require.Len(t, conflicts, 2)
	assert.Equal(t, models.ConflictTeacher, conflicts[0].Kind)
	assert.Equal(t, "p1", conflicts[0].ConflictingEntityID)
	assert.Equal(t, models.ConflictClassroom, conflicts[1].Kind)
	assert.Equal(t, "p2", conflicts[1].ConflictingEntityID)
}
