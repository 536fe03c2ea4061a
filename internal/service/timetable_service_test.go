package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type timetableRepoStub struct {
	mu         sync.Mutex
	timetables map[string]*models.Timetable

	createErr error
}

func newTimetableRepoStub() *timetableRepoStub {
	return &timetableRepoStub{timetables: make(map[string]*models.Timetable)}
}

func (r *timetableRepoStub) FindByScope(ctx context.Context, termID, classID, classGroupID string) (*models.Timetable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tt := range r.timetables {
		if tt.TermID != termID {
			continue
		}
		if classID != "" && tt.ClassID != nil && *tt.ClassID == classID {
			return tt, nil
		}
		if classGroupID != "" && tt.ClassGroupID != nil && *tt.ClassGroupID == classGroupID {
			return tt, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *timetableRepoStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.timetables[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tt, nil
}

func (r *timetableRepoStub) FindAssembled(ctx context.Context, id string) (*models.Timetable, error) {
	return r.FindByID(ctx, id)
}

func (r *timetableRepoStub) ListTermPeriods(ctx context.Context, termID string) ([]models.Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var periods []models.Period
	for _, tt := range r.timetables {
		if tt.TermID == termID {
			periods = append(periods, tt.Periods...)
		}
	}
	return periods, nil
}

func (r *timetableRepoStub) Create(ctx context.Context, timetable *models.Timetable) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	for i := range timetable.Periods {
		if timetable.Periods[i].ID == "" {
			timetable.Periods[i].ID = uuid.NewString()
		}
		timetable.Periods[i].TimetableID = timetable.ID
	}
	r.timetables[timetable.ID] = timetable
	return nil
}

func (r *timetableRepoStub) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timetables, id)
	return nil
}

type refCheckerStub struct {
	missing map[string]bool
}

func (r refCheckerStub) exists(id string) (bool, error) { return !r.missing[id], nil }

func (r refCheckerStub) TeacherExists(ctx context.Context, id string) (bool, error) {
	return r.exists(id)
}
func (r refCheckerStub) ClassroomExists(ctx context.Context, id string) (bool, error) {
	return r.exists(id)
}
func (r refCheckerStub) SubjectExists(ctx context.Context, id string) (bool, error) {
	return r.exists(id)
}
func (r refCheckerStub) ClassExists(ctx context.Context, id string) (bool, error) {
	return r.exists(id)
}
func (r refCheckerStub) ClassGroupExists(ctx context.Context, id string) (bool, error) {
	return r.exists(id)
}
func (r refCheckerStub) TermExists(ctx context.Context, id string) (bool, error) {
	return r.exists(id)
}

func newTimetableServiceFixture(repo *timetableRepoStub, refs referenceChecker) *TimetableService {
	return NewTimetableService(repo, refs, nil, nil, NewMetricsService(), nil)
}

func validCreateRequest() CreateTimetableRequest {
	return CreateTimetableRequest{
		TermID:    "term-1",
		ClassID:   "class-1",
		StartTime: "07:30",
		EndTime:   "15:30",
		BreakTimes: []BreakTimeInput{
			{StartTime: "10:00", EndTime: "10:15", Kind: models.BreakKindShort, DayOfWeek: 1},
		},
		Periods: []PeriodInput{
			{
				StartTime:   "08:00",
				EndTime:     "09:00",
				DaysOfWeek:  []int{1, 3, 5},
				SubjectID:   "subj-1",
				TeacherID:   "teacher-1",
				ClassroomID: "room-1",
			},
		},
	}
}

func TestTimetableServiceCreateSuccess(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	created, err := service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	assert.Len(t, created.Periods, 3, "one period per scheduled day")
	assert.Len(t, created.BreakWindows, 1)

	days := make(map[models.DayOfWeek]bool)
	for _, p := range created.Periods {
		days[p.DayOfWeek] = true
		assert.Equal(t, "08:00", p.StartTime.String())
		assert.Equal(t, "09:00", p.EndTime.String())
		assert.Equal(t, 60, p.DurationMinutes)
	}
	assert.True(t, days[models.Monday])
	assert.True(t, days[models.Wednesday])
	assert.True(t, days[models.Friday])
}

func TestTimetableServiceCreateRequiresExactlyOneScope(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	req := validCreateRequest()
	req.ClassGroupID = "group-1"
	_, err := service.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.ClassID = ""
	req.ClassGroupID = ""
	_, err = service.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCreateRejectsDuplicateScope(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	_, err := service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = service.Create(context.Background(), validCreateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateTimetable.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCreateAggregatesConflicts(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	_, err := service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	req := validCreateRequest()
	req.ClassID = "class-2"
	req.BreakTimes = nil
	req.Periods = []PeriodInput{
		{
			StartTime:   "08:30",
			EndTime:     "09:30",
			DaysOfWeek:  []int{1, 3},
			SubjectID:   "subj-2",
			TeacherID:   "teacher-1",
			ClassroomID: "room-1",
		},
	}

	_, err = service.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	var conflictErr *models.TimetableConflictError
	require.True(t, errors.As(err, &conflictErr))
	// teacher-1 and room-1 each collide on Monday and Wednesday
	assert.Len(t, conflictErr.Conflicts, 4)
}

func TestTimetableServiceCreateRejectsIntraBatchOverlap(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	req := validCreateRequest()
	req.BreakTimes = nil
	req.Periods = []PeriodInput{
		{StartTime: "08:00", EndTime: "09:00", DaysOfWeek: []int{1}, SubjectID: "subj-1", TeacherID: "teacher-1", ClassroomID: "room-1"},
		{StartTime: "08:30", EndTime: "09:30", DaysOfWeek: []int{1}, SubjectID: "subj-2", TeacherID: "teacher-1", ClassroomID: "room-2"},
	}

	_, err := service.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCreateRejectsPeriodOverlappingBreak(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	req := validCreateRequest()
	req.Periods = []PeriodInput{
		{StartTime: "09:30", EndTime: "10:05", DaysOfWeek: []int{1}, SubjectID: "subj-1", TeacherID: "teacher-1", ClassroomID: "room-1"},
	}

	_, err := service.Create(context.Background(), req)
	require.Error(t, err)

	var conflictErr *models.TimetableConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, models.ConflictBreakTime, conflictErr.Conflicts[0].Kind)
}

func TestTimetableServiceCreateRejectsUnknownReference(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{missing: map[string]bool{"teacher-1": true}})

	_, err := service.Create(context.Background(), validCreateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReferenceNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCreateRejectsBadTimes(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	req := validCreateRequest()
	req.StartTime = "25:00"
	_, err := service.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.Periods[0].DurationMinutes = 45 // interval is 60 minutes
	_, err = service.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.Periods[0].DaysOfWeek = []int{8}
	_, err = service.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceConcurrentCreateSameScope(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Create(context.Background(), validCreateRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, duplicates int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		if appErrors.FromError(err).Code == appErrors.ErrDuplicateTimetable.Code {
			duplicates++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one create may win per scope")
	assert.Equal(t, workers-1, duplicates)
}

func TestTimetableServiceCheckAvailability(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	_, err := service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	result, err := service.CheckAvailability(context.Background(), AvailabilityRequest{
		TermID: "term-1",
		Period: PeriodInput{
			StartTime:   "08:30",
			EndTime:     "09:30",
			DaysOfWeek:  []int{1},
			SubjectID:   "subj-9",
			TeacherID:   "teacher-1",
			ClassroomID: "room-9",
		},
	})
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, result.Conflicts[0].Kind)

	result, err = service.CheckAvailability(context.Background(), AvailabilityRequest{
		TermID: "term-1",
		Period: PeriodInput{
			StartTime:   "09:00",
			EndTime:     "10:00",
			DaysOfWeek:  []int{2},
			SubjectID:   "subj-9",
			TeacherID:   "teacher-1",
			ClassroomID: "room-1",
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsAvailable)
}

func TestTimetableServiceGetByScope(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	created, err := service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	found, err := service.GetByScope(context.Background(), "term-1", "class-1", "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = service.GetByScope(context.Background(), "term-1", "class-missing", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = service.GetByScope(context.Background(), "term-1", "", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceDelete(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	created, err := service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, service.Delete(context.Background(), created.ID))

	err = service.Delete(context.Background(), created.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	// scope is free again after deletion
	_, err = service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
}

func TestTimetableServiceExportGrid(t *testing.T) {
	repo := newTimetableRepoStub()
	service := newTimetableServiceFixture(repo, refCheckerStub{})

	created, err := service.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	payload, contentType, err := service.ExportGrid(context.Background(), created.ID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(payload), "MONDAY")
	assert.Contains(t, string(payload), "subj-1 / teacher-1 / room-1")

	payload, contentType, err = service.ExportGrid(context.Background(), created.ID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)

	_, _, err = service.ExportGrid(context.Background(), created.ID, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
