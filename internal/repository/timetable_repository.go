package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// TimetableRepository manages persistence for timetables and their periods
// and break windows. Time-of-day columns are stored as minutes since
// midnight.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs a TimetableRepository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

const timetableColumns = "id, term_id, class_id, class_group_id, start_time, end_time, created_at, updated_at"
const periodColumns = "id, timetable_id, subject_id, teacher_id, classroom_id, day_of_week, start_time, end_time, duration_minutes, created_at"
const breakColumns = "id, timetable_id, kind, day_of_week, start_time, end_time, created_at"

// FindByScope looks up the timetable owning a (term, class-or-class-group)
// scope. Returns sql.ErrNoRows when the scope is unscheduled.
func (r *TimetableRepository) FindByScope(ctx context.Context, termID, classID, classGroupID string) (*models.Timetable, error) {
	const query = `SELECT ` + timetableColumns + ` FROM timetables WHERE term_id = $1 AND (($2 <> '' AND class_id = $2) OR ($3 <> '' AND class_group_id = $3)) LIMIT 1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, termID, classID, classGroupID); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// FindByID loads a timetable root by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT ` + timetableColumns + ` FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// FindAssembled loads a timetable with its break windows and periods
// attached, ordered by day and start time.
func (r *TimetableRepository) FindAssembled(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	const breaksQuery = `SELECT ` + breakColumns + ` FROM break_windows WHERE timetable_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	if err := r.db.SelectContext(ctx, &timetable.BreakWindows, breaksQuery, id); err != nil {
		return nil, fmt.Errorf("list break windows: %w", err)
	}

	const periodsQuery = `SELECT ` + periodColumns + ` FROM periods WHERE timetable_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	if err := r.db.SelectContext(ctx, &timetable.Periods, periodsQuery, id); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}

	return timetable, nil
}

// ListTermPeriods returns every persisted period in the term, across all
// timetables. This is the set candidates are conflict-checked against.
func (r *TimetableRepository) ListTermPeriods(ctx context.Context, termID string) ([]models.Period, error) {
	const query = `SELECT p.id, p.timetable_id, p.subject_id, p.teacher_id, p.classroom_id, p.day_of_week, p.start_time, p.end_time, p.duration_minutes, p.created_at
		FROM periods p JOIN timetables t ON t.id = p.timetable_id
		WHERE t.term_id = $1
		ORDER BY p.day_of_week ASC, p.start_time ASC`
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query, termID); err != nil {
		return nil, fmt.Errorf("list term periods: %w", err)
	}
	return periods, nil
}

// Create persists the timetable root, its break windows and its periods in
// one transaction. Any failure rolls the whole timetable back.
func (r *TimetableRepository) Create(ctx context.Context, timetable *models.Timetable) error {
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create timetable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const rootQuery = `INSERT INTO timetables (id, term_id, class_id, class_group_id, start_time, end_time, created_at, updated_at)
		VALUES (:id, :term_id, :class_id, :class_group_id, :start_time, :end_time, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, rootQuery, timetable); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}

	if err = r.insertBreakWindows(ctx, tx, timetable.ID, timetable.BreakWindows, now); err != nil {
		return err
	}
	if err = r.insertPeriods(ctx, tx, timetable.ID, timetable.Periods, now); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create timetable: %w", err)
	}
	return nil
}

func (r *TimetableRepository) insertBreakWindows(ctx context.Context, tx *sqlx.Tx, timetableID string, breaks []models.BreakWindow, now time.Time) error {
	for i := range breaks {
		payload := breaks[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.TimetableID = timetableID
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}

		const query = `INSERT INTO break_windows (id, timetable_id, kind, day_of_week, start_time, end_time, created_at)
			VALUES (:id, :timetable_id, :kind, :day_of_week, :start_time, :end_time, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, &payload); err != nil {
			return fmt.Errorf("insert break window: %w", err)
		}
		breaks[i] = payload
	}
	return nil
}

func (r *TimetableRepository) insertPeriods(ctx context.Context, tx *sqlx.Tx, timetableID string, periods []models.Period, now time.Time) error {
	for i := range periods {
		payload := periods[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.TimetableID = timetableID
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}

		const query = `INSERT INTO periods (id, timetable_id, subject_id, teacher_id, classroom_id, day_of_week, start_time, end_time, duration_minutes, created_at)
			VALUES (:id, :timetable_id, :subject_id, :teacher_id, :classroom_id, :day_of_week, :start_time, :end_time, :duration_minutes, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, &payload); err != nil {
			return fmt.Errorf("insert period: %w", err)
		}
		periods[i] = payload
	}
	return nil
}

// Delete removes a timetable and its children.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete timetable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM periods WHERE timetable_id = $1`, id); err != nil {
		return fmt.Errorf("delete periods: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM break_windows WHERE timetable_id = $1`, id); err != nil {
		return fmt.Errorf("delete break windows: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete timetable: %w", err)
	}
	return nil
}
