package service

import "github.com/noah-isme/campus-timetable-api/internal/models"

// CheckAvailability checks one candidate period against the persisted
// schedule. All three dimensions are always evaluated so a period that is
// double-booked for both teacher and classroom reports both conflicts.
func CheckAvailability(candidate models.Period, existingPeriods []models.Period, existingBreaks []models.BreakWindow) models.AvailabilityCheck {
	var conflicts []models.ScheduleConflict
	candidateInterval := candidate.Interval()

	for _, existing := range existingPeriods {
		if existing.TeacherID != candidate.TeacherID {
			continue
		}
		if candidateInterval.Overlaps(existing.Interval()) {
			conflicts = append(conflicts, models.ScheduleConflict{
				Kind:                models.ConflictTeacher,
				ConflictingInterval: existing.Interval(),
				ConflictingEntityID: existing.ID,
			})
		}
	}

	for _, existing := range existingPeriods {
		if existing.ClassroomID != candidate.ClassroomID {
			continue
		}
		if candidateInterval.Overlaps(existing.Interval()) {
			conflicts = append(conflicts, models.ScheduleConflict{
				Kind:                models.ConflictClassroom,
				ConflictingInterval: existing.Interval(),
				ConflictingEntityID: existing.ID,
			})
		}
	}

	for _, brk := range existingBreaks {
		if candidateInterval.Overlaps(brk.Interval()) {
			conflicts = append(conflicts, models.ScheduleConflict{
				Kind:                models.ConflictBreakTime,
				ConflictingInterval: brk.Interval(),
				ConflictingEntityID: brk.ID,
			})
		}
	}

	return models.AvailabilityCheck{IsAvailable: len(conflicts) == 0, Conflicts: conflicts}
}

// CheckBatch validates a batch of candidate periods against the persisted
// schedule, the timetable's break windows, and each other. Each candidate is
// also checked against the candidates before it, so two overlapping periods
// in the same request are reported as conflicts.
func CheckBatch(candidates []models.Period, existingPeriods []models.Period, breaks []models.BreakWindow) []models.ScheduleConflict {
	var conflicts []models.ScheduleConflict
	pool := make([]models.Period, len(existingPeriods), len(existingPeriods)+len(candidates))
	copy(pool, existingPeriods)

	for _, candidate := range candidates {
		check := CheckAvailability(candidate, pool, breaks)
		conflicts = append(conflicts, check.Conflicts...)
		pool = append(pool, candidate)
	}

	return conflicts
}
