package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
)

type timetableRepository interface {
	FindByScope(ctx context.Context, termID, classID, classGroupID string) (*models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	FindAssembled(ctx context.Context, id string) (*models.Timetable, error)
	ListTermPeriods(ctx context.Context, termID string) ([]models.Period, error)
	Create(ctx context.Context, timetable *models.Timetable) error
	Delete(ctx context.Context, id string) error
}

type referenceChecker interface {
	TeacherExists(ctx context.Context, id string) (bool, error)
	ClassroomExists(ctx context.Context, id string) (bool, error)
	SubjectExists(ctx context.Context, id string) (bool, error)
	ClassExists(ctx context.Context, id string) (bool, error)
	ClassGroupExists(ctx context.Context, id string) (bool, error)
	TermExists(ctx context.Context, id string) (bool, error)
}

// BreakTimeInput describes one break window in a creation request.
type BreakTimeInput struct {
	StartTime string           `json:"start_time" validate:"required"`
	EndTime   string           `json:"end_time" validate:"required"`
	Kind      models.BreakKind `json:"kind" validate:"required"`
	DayOfWeek int              `json:"day_of_week" validate:"required,min=1,max=7"`
}

// PeriodInput describes one teaching slot in a creation request. A period
// with multiple days expands to one record per day.
type PeriodInput struct {
	StartTime       string `json:"start_time" validate:"required"`
	EndTime         string `json:"end_time" validate:"required"`
	DaysOfWeek      []int  `json:"days_of_week" validate:"required,min=1,dive,min=1,max=7"`
	SubjectID       string `json:"subject_id" validate:"required"`
	TeacherID       string `json:"teacher_id" validate:"required"`
	ClassroomID     string `json:"classroom_id" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=1"`
}

// CreateTimetableRequest is the payload for creating a timetable. Exactly
// one of class_id and class_group_id must be set.
type CreateTimetableRequest struct {
	TermID       string           `json:"term_id" validate:"required"`
	ClassID      string           `json:"class_id"`
	ClassGroupID string           `json:"class_group_id"`
	StartTime    string           `json:"start_time" validate:"required"`
	EndTime      string           `json:"end_time" validate:"required"`
	BreakTimes   []BreakTimeInput `json:"break_times" validate:"dive"`
	Periods      []PeriodInput    `json:"periods" validate:"dive"`
}

// AvailabilityRequest probes one candidate slot against a term's persisted
// schedule without persisting anything.
type AvailabilityRequest struct {
	TermID      string      `json:"term_id" validate:"required"`
	TimetableID string      `json:"timetable_id"`
	Period      PeriodInput `json:"period" validate:"required"`
}

// TimetableService coordinates timetable creation and retrieval.
type TimetableService struct {
	repo      timetableRepository
	refs      referenceChecker
	cache     *CacheService
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger

	// scopeLocks serializes read-check-write per creation scope so two
	// concurrent requests for the same scope cannot both pass validation.
	mu         sync.Mutex
	scopeLocks map[string]*sync.Mutex
}

// NewTimetableService instantiates TimetableService.
func NewTimetableService(repo timetableRepository, refs referenceChecker, cache *CacheService, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		repo:       repo,
		refs:       refs,
		cache:      cache,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
		scopeLocks: make(map[string]*sync.Mutex),
	}
}

func (s *TimetableService) lockScope(key string) func() {
	s.mu.Lock()
	lock, ok := s.scopeLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.scopeLocks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func scopeKey(termID, classID, classGroupID string) string {
	if classID != "" {
		return fmt.Sprintf("%s|class|%s", termID, classID)
	}
	return fmt.Sprintf("%s|group|%s", termID, classGroupID)
}

// Create builds and persists a timetable for one (term, class-or-group)
// scope. The whole operation is atomic: either the assembled timetable is
// returned or nothing is persisted.
func (s *TimetableService) Create(ctx context.Context, req CreateTimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	if (req.ClassID == "") == (req.ClassGroupID == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of class_id and class_group_id must be set")
	}

	dayStart, dayEnd, err := parseBounds(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	breaks, err := buildBreakWindows(req.BreakTimes)
	if err != nil {
		return nil, err
	}

	candidates, err := buildPeriods(req.Periods)
	if err != nil {
		return nil, err
	}

	unlock := s.lockScope(scopeKey(req.TermID, req.ClassID, req.ClassGroupID))
	defer unlock()

	if err := s.ensureScopeFree(ctx, req.TermID, req.ClassID, req.ClassGroupID); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, req, candidates); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListTermPeriods(ctx, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term schedule")
	}

	conflicts := CheckBatch(candidates, existing, breaks)
	if s.metrics != nil {
		s.metrics.RecordConflictCheck(len(conflicts))
	}
	if len(conflicts) > 0 {
		domainErr := &models.TimetableConflictError{
			Message:   fmt.Sprintf("%d schedule conflict(s) detected", len(conflicts)),
			Conflicts: conflicts,
		}
		return nil, appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, domainErr.Message)
	}

	timetable := &models.Timetable{
		TermID:       req.TermID,
		StartTime:    dayStart,
		EndTime:      dayEnd,
		BreakWindows: breaks,
		Periods:      candidates,
	}
	if req.ClassID != "" {
		timetable.ClassID = &req.ClassID
	}
	if req.ClassGroupID != "" {
		timetable.ClassGroupID = &req.ClassGroupID
	}

	if err := s.repo.Create(ctx, timetable); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
	}

	assembled, err := s.repo.FindAssembled(ctx, timetable.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load created timetable")
	}

	s.invalidateScopeCache(ctx, req.TermID)
	s.logger.Info("timetable created",
		zap.String("timetable_id", assembled.ID),
		zap.String("term_id", req.TermID),
		zap.Int("periods", len(assembled.Periods)),
		zap.Int("break_windows", len(assembled.BreakWindows)),
	)
	return assembled, nil
}

func (s *TimetableService) ensureScopeFree(ctx context.Context, termID, classID, classGroupID string) error {
	existing, err := s.repo.FindByScope(ctx, termID, classID, classGroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing timetable")
	}
	return appErrors.Clone(appErrors.ErrDuplicateTimetable, fmt.Sprintf("timetable %s already covers this scope", existing.ID))
}

func (s *TimetableService) checkReferences(ctx context.Context, req CreateTimetableRequest, candidates []models.Period) error {
	if s.refs == nil {
		return nil
	}

	check := func(kind, id string, exists bool, err error) error {
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve "+kind)
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrReferenceNotFound, fmt.Sprintf("%s %s not found", kind, id))
		}
		return nil
	}

	exists, err := s.refs.TermExists(ctx, req.TermID)
	if err := check("term", req.TermID, exists, err); err != nil {
		return err
	}
	if req.ClassID != "" {
		exists, err := s.refs.ClassExists(ctx, req.ClassID)
		if err := check("class", req.ClassID, exists, err); err != nil {
			return err
		}
	}
	if req.ClassGroupID != "" {
		exists, err := s.refs.ClassGroupExists(ctx, req.ClassGroupID)
		if err := check("class group", req.ClassGroupID, exists, err); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{})
	for _, candidate := range candidates {
		if _, ok := seen["t:"+candidate.TeacherID]; !ok {
			seen["t:"+candidate.TeacherID] = struct{}{}
			exists, err := s.refs.TeacherExists(ctx, candidate.TeacherID)
			if err := check("teacher", candidate.TeacherID, exists, err); err != nil {
				return err
			}
		}
		if _, ok := seen["r:"+candidate.ClassroomID]; !ok {
			seen["r:"+candidate.ClassroomID] = struct{}{}
			exists, err := s.refs.ClassroomExists(ctx, candidate.ClassroomID)
			if err := check("classroom", candidate.ClassroomID, exists, err); err != nil {
				return err
			}
		}
		if _, ok := seen["s:"+candidate.SubjectID]; !ok {
			seen["s:"+candidate.SubjectID] = struct{}{}
			exists, err := s.refs.SubjectExists(ctx, candidate.SubjectID)
			if err := check("subject", candidate.SubjectID, exists, err); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckAvailability probes one candidate slot against the term's persisted
// schedule, expanding multi-day inputs and aggregating every conflict.
func (s *TimetableService) CheckAvailability(ctx context.Context, req AvailabilityRequest) (*models.AvailabilityCheck, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}

	candidates, err := buildPeriods([]PeriodInput{req.Period})
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListTermPeriods(ctx, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term schedule")
	}

	var breaks []models.BreakWindow
	if req.TimetableID != "" {
		assembled, err := s.repo.FindAssembled(ctx, req.TimetableID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
		}
		breaks = assembled.BreakWindows
	}

	var conflicts []models.ScheduleConflict
	for _, candidate := range candidates {
		check := CheckAvailability(candidate, existing, breaks)
		conflicts = append(conflicts, check.Conflicts...)
	}
	if s.metrics != nil {
		s.metrics.RecordConflictCheck(len(conflicts))
	}

	return &models.AvailabilityCheck{IsAvailable: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// GetByScope returns the assembled timetable for a scope, served from cache
// when possible.
func (s *TimetableService) GetByScope(ctx context.Context, termID, classID, classGroupID string) (*models.Timetable, error) {
	if termID == "" || (classID == "") == (classGroupID == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "term_id and exactly one of class_id and class_group_id are required")
	}

	cacheKey := "timetable:scope:" + scopeKey(termID, classID, classGroupID)
	if s.cache.Enabled() {
		var cached models.Timetable
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	root, err := s.repo.FindByScope(ctx, termID, classID, classGroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable for this scope")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	assembled, err := s.repo.FindAssembled(ctx, root.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assemble timetable")
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, assembled, 0)
	}
	return assembled, nil
}

// GetByID returns one assembled timetable.
func (s *TimetableService) GetByID(ctx context.Context, id string) (*models.Timetable, error) {
	assembled, err := s.repo.FindAssembled(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return assembled, nil
}

// Delete removes a timetable; this is the out-of-band path for replacing a
// scope's schedule.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	timetable, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}

	s.invalidateScopeCache(ctx, timetable.TermID)
	s.logger.Info("timetable deleted", zap.String("timetable_id", id), zap.String("term_id", timetable.TermID))
	return nil
}

func (s *TimetableService) invalidateScopeCache(ctx context.Context, termID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "timetable:scope:"+termID+"|*"); err != nil {
		s.logger.Warn("failed to invalidate timetable cache", zap.String("term_id", termID), zap.Error(err))
	}
}

// ExportGrid renders a timetable as a weekly grid for CSV or PDF export.
func (s *TimetableService) ExportGrid(ctx context.Context, id, format string) ([]byte, string, error) {
	assembled, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	grid := buildGrid(assembled)

	switch format {
	case "csv":
		payload, err := export.NewCSVExporter().Render(grid)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.NewPDFExporter().Render(grid)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func buildGrid(timetable *models.Timetable) export.Grid {
	daySet := make(map[models.DayOfWeek]struct{})

	type cellKey struct {
		Day   models.DayOfWeek
		Start models.TimeOfDay
		End   models.TimeOfDay
	}
	cells := make(map[cellKey]string)
	type timeRange struct{ Start, End models.TimeOfDay }
	rangesSeen := make(map[timeRange]struct{})

	for _, period := range timetable.Periods {
		daySet[period.DayOfWeek] = struct{}{}
		rangesSeen[timeRange{period.StartTime, period.EndTime}] = struct{}{}
		cells[cellKey{period.DayOfWeek, period.StartTime, period.EndTime}] = fmt.Sprintf("%s / %s / %s", period.SubjectID, period.TeacherID, period.ClassroomID)
	}
	for _, brk := range timetable.BreakWindows {
		daySet[brk.DayOfWeek] = struct{}{}
		rangesSeen[timeRange{brk.StartTime, brk.EndTime}] = struct{}{}
		cells[cellKey{brk.DayOfWeek, brk.StartTime, brk.EndTime}] = string(brk.Kind)
	}

	days := make([]models.DayOfWeek, 0, len(daySet))
	for day := range daySet {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	if len(days) == 0 {
		days = []models.DayOfWeek{models.Monday, models.Tuesday, models.Wednesday, models.Thursday, models.Friday}
	}

	ranges := make([]timeRange, 0, len(rangesSeen))
	for tr := range rangesSeen {
		ranges = append(ranges, tr)
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].End < ranges[j].End
	})

	grid := export.Grid{Title: fmt.Sprintf("Weekly timetable %s", timetable.ID)}
	for _, day := range days {
		grid.Days = append(grid.Days, day.String())
	}
	for _, tr := range ranges {
		row := export.GridRow{
			TimeRange: fmt.Sprintf("%s-%s", tr.Start, tr.End),
			Cells:     make(map[string]string, len(days)),
		}
		for _, day := range days {
			row.Cells[day.String()] = cells[cellKey{day, tr.Start, tr.End}]
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}

func parseBounds(start, end string) (models.TimeOfDay, models.TimeOfDay, error) {
	dayStart, err := models.ParseTimeOfDay(start)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}
	dayEnd, err := models.ParseTimeOfDay(end)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end time")
	}
	if dayStart >= dayEnd {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	return dayStart, dayEnd, nil
}

func buildBreakWindows(inputs []BreakTimeInput) ([]models.BreakWindow, error) {
	breaks := make([]models.BreakWindow, 0, len(inputs))
	for _, input := range inputs {
		if !input.Kind.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown break kind %q", input.Kind))
		}
		start, err := models.ParseTimeOfDay(input.StartTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid break start time")
		}
		end, err := models.ParseTimeOfDay(input.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid break end time")
		}
		interval, err := models.NewInterval(models.DayOfWeek(input.DayOfWeek), start, end)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid break window")
		}
		breaks = append(breaks, models.BreakWindow{
			Kind:      input.Kind,
			DayOfWeek: interval.Day,
			StartTime: interval.Start,
			EndTime:   interval.End,
		})
	}
	return breaks, nil
}

func buildPeriods(inputs []PeriodInput) ([]models.Period, error) {
	var periods []models.Period
	for _, input := range inputs {
		start, err := models.ParseTimeOfDay(input.StartTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period start time")
		}
		end, err := models.ParseTimeOfDay(input.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period end time")
		}

		duration := input.DurationMinutes
		if duration == 0 {
			duration = int(end - start)
		}
		if duration != int(end-start) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration %dm does not match interval %s-%s", input.DurationMinutes, start, end))
		}

		for _, day := range input.DaysOfWeek {
			interval, err := models.NewInterval(models.DayOfWeek(day), start, end)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period interval")
			}
			periods = append(periods, models.Period{
				SubjectID:       input.SubjectID,
				TeacherID:       input.TeacherID,
				ClassroomID:     input.ClassroomID,
				DayOfWeek:       interval.Day,
				StartTime:       interval.Start,
				EndTime:         interval.End,
				DurationMinutes: duration,
			})
		}
	}
	return periods, nil
}
