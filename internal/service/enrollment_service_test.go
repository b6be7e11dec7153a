package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

var testNow = time.Date(2026, time.August, 10, 12, 0, 0, 0, time.UTC)

type enrollmentHarness struct {
	store   *fakeStore
	svc     *EnrollmentService
	metrics *MetricsService
}

func newEnrollmentHarness(t *testing.T) *enrollmentHarness {
	t.Helper()
	store := newFakeStore()
	metrics := NewMetricsService()
	svc := NewEnrollmentService(store, fakeClasses{store}, fakeEnrollments{store}, fakeWaitlists{store}, fakeDrops{store}, fakeConfigs{store},
		DefaultEnrollmentRules(), validator.New(), metrics, nil, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return &enrollmentHarness{store: store, svc: svc, metrics: metrics}
}

func (h *enrollmentHarness) addClass(id string, capacity int) models.Class {
	class := models.Class{
		ID:              id,
		CourseID:        "course-" + id,
		DepartmentCode:  "CPSC",
		CourseNo:        449,
		SectionNo:       1,
		AcademicYear:    2026,
		Semester:        models.SemesterFall,
		InstructorID:    "instructor-1",
		RoomNumber:      "CS-104",
		RoomCapacity:    capacity,
		CourseStartDate: testNow.Add(14 * 24 * time.Hour),
		EnrollmentStart: testNow.Add(-7 * 24 * time.Hour),
		EnrollmentEnd:   testNow.Add(7 * 24 * time.Hour),
	}
	h.store.putClass(class)
	return class
}

func (h *enrollmentHarness) setCapacity(t *testing.T, classID string, capacity int) {
	t.Helper()
	class, err := fakeClasses{h.store}.FindByID(context.Background(), nil, classID)
	require.NoError(t, err)
	class.RoomCapacity = capacity
	h.store.putClass(*class)
}

func (h *enrollmentHarness) request(t *testing.T, classID, studentID string, at time.Time) *models.EnrollmentOutcome {
	t.Helper()
	outcome, err := h.svc.RequestEnrollment(context.Background(), classID, studentID, at)
	require.NoError(t, err)
	return outcome
}

func TestAvailableSeats(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 3)
	h.request(t, "c1", "s1", testNow)

	seats, err := h.svc.AvailableSeats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, seats)

	_, err = h.svc.AvailableSeats(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	deletedAt := testNow
	deleted := h.addClass("gone", 5)
	deleted.DeletedAt = &deletedAt
	h.store.putClass(deleted)
	_, err = h.svc.AvailableSeats(context.Background(), "gone")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAvailableSeatsWrapsStoreFailure(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 3)
	h.store.failOn("enrollment.count", errFakeStore)

	_, err := h.svc.AvailableSeats(context.Background(), "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStore)
	assert.ErrorIs(t, err, errFakeStore)
}

func TestRequestEnrollmentSeatsWhenSeatFree(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 2)

	outcome := h.request(t, "c1", "s1", testNow)
	assert.Equal(t, models.EnrollmentStatusSeated, outcome.Status)
	assert.Zero(t, outcome.WaitlistPosition)
	assert.True(t, h.store.isEnrolled("c1", "s1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.enrollmentRequests.WithLabelValues("seated")))
}

func TestRequestEnrollmentWaitlistsWhenFull(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 1)
	h.request(t, "c1", "s1", testNow)

	first := h.request(t, "c1", "s2", testNow.Add(time.Minute))
	second := h.request(t, "c1", "s3", testNow.Add(2*time.Minute))

	assert.Equal(t, models.EnrollmentStatusWaitlisted, first.Status)
	assert.Equal(t, 1, first.WaitlistPosition)
	assert.Equal(t, 2, second.WaitlistPosition)
	assert.Equal(t, []string{"s2", "s3"}, h.store.waitlistStudents("c1"))
}

func TestRequestEnrollmentRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *enrollmentHarness, t *testing.T)
		classID string
		at      time.Time
		wantErr *appErrors.Error
	}{
		{
			name:    "unknown class",
			setup:   func(h *enrollmentHarness, t *testing.T) {},
			classID: "missing",
			at:      testNow,
			wantErr: appErrors.ErrNotFound,
		},
		{
			name:    "before window",
			setup:   func(h *enrollmentHarness, t *testing.T) { h.addClass("c1", 5) },
			classID: "c1",
			at:      testNow.Add(-7*24*time.Hour - time.Second),
			wantErr: appErrors.ErrWindowClosed,
		},
		{
			name:    "after window",
			setup:   func(h *enrollmentHarness, t *testing.T) { h.addClass("c1", 5) },
			classID: "c1",
			at:      testNow.Add(7*24*time.Hour + time.Second),
			wantErr: appErrors.ErrWindowClosed,
		},
		{
			name: "window checked before duplicate enrollment",
			setup: func(h *enrollmentHarness, t *testing.T) {
				h.addClass("c1", 5)
				h.request(t, "c1", "student", testNow)
			},
			classID: "c1",
			at:      testNow.Add(30 * 24 * time.Hour),
			wantErr: appErrors.ErrWindowClosed,
		},
		{
			name: "already enrolled",
			setup: func(h *enrollmentHarness, t *testing.T) {
				h.addClass("c1", 5)
				h.request(t, "c1", "student", testNow)
			},
			classID: "c1",
			at:      testNow,
			wantErr: appErrors.ErrConflict,
		},
		{
			name: "already waitlisted",
			setup: func(h *enrollmentHarness, t *testing.T) {
				h.addClass("c1", 0)
				h.request(t, "c1", "student", testNow)
			},
			classID: "c1",
			at:      testNow,
			wantErr: appErrors.ErrConflict,
		},
		{
			name: "student waitlist limit with room on the class waitlist",
			setup: func(h *enrollmentHarness, t *testing.T) {
				for i := 0; i < 3; i++ {
					id := fmt.Sprintf("full-%d", i)
					h.addClass(id, 0)
					h.request(t, id, "student", testNow)
				}
				h.addClass("c1", 0)
			},
			classID: "c1",
			at:      testNow,
			wantErr: appErrors.ErrWaitlistLimitExceeded,
		},
		{
			name: "limit checked before class waitlist capacity",
			setup: func(h *enrollmentHarness, t *testing.T) {
				for i := 0; i < 3; i++ {
					id := fmt.Sprintf("full-%d", i)
					h.addClass(id, 0)
					h.request(t, id, "student", testNow)
				}
				h.addClass("c1", 0)
				for i := 0; i < 15; i++ {
					h.request(t, "c1", fmt.Sprintf("other-%d", i), testNow)
				}
			},
			classID: "c1",
			at:      testNow,
			wantErr: appErrors.ErrWaitlistLimitExceeded,
		},
		{
			name: "class waitlist full",
			setup: func(h *enrollmentHarness, t *testing.T) {
				h.addClass("c1", 0)
				for i := 0; i < 15; i++ {
					h.request(t, "c1", fmt.Sprintf("other-%d", i), testNow)
				}
			},
			classID: "c1",
			at:      testNow,
			wantErr: appErrors.ErrWaitlistFull,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newEnrollmentHarness(t)
			tc.setup(h, t)
			before := h.store.snapshotLocked()

			outcome, err := h.svc.RequestEnrollment(context.Background(), tc.classID, "student", tc.at)
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.ErrorIs(t, err, tc.wantErr)

			after := h.store.snapshotLocked()
			assert.Equal(t, before.enrollments, after.enrollments)
			assert.Equal(t, before.waitlist, after.waitlist)
		})
	}
}

func TestRequestEnrollmentWindowBoundsInclusive(t *testing.T) {
	h := newEnrollmentHarness(t)
	class := h.addClass("c1", 5)

	start := h.request(t, "c1", "early", class.EnrollmentStart)
	end := h.request(t, "c1", "late", class.EnrollmentEnd)

	assert.Equal(t, models.EnrollmentStatusSeated, start.Status)
	assert.Equal(t, models.EnrollmentStatusSeated, end.Status)
}

func TestRequestEnrollmentSeatIgnoresStudentWaitlistCount(t *testing.T) {
	h := newEnrollmentHarness(t)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("full-%d", i)
		h.addClass(id, 0)
		h.request(t, id, "student", testNow)
	}
	h.addClass("open", 1)

	outcome := h.request(t, "open", "student", testNow)
	assert.Equal(t, models.EnrollmentStatusSeated, outcome.Status)
}

func TestRequestEnrollmentValidatesIDs(t *testing.T) {
	h := newEnrollmentHarness(t)
	_, err := h.svc.RequestEnrollment(context.Background(), "", "student", testNow)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRequestEnrollmentRollsBackOnStoreFailure(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 1)
	h.store.failOn("enrollment.create", errFakeStore)

	_, err := h.svc.RequestEnrollment(context.Background(), "c1", "s1", testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStore)
	assert.Zero(t, h.store.enrolledCount("c1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.enrollmentRequests.WithLabelValues("store_error")))
}

func TestScenarioDropPromotesWaitlistedStudent(t *testing.T) {
	h := newEnrollmentHarness(t)
	ctx := context.Background()
	h.addClass("c1", 1)

	_, err := h.svc.SetAutoEnroll(ctx, true, "registrar-1")
	require.NoError(t, err)

	a := h.request(t, "c1", "A", testNow)
	require.Equal(t, models.EnrollmentStatusSeated, a.Status)
	b := h.request(t, "c1", "B", testNow.Add(time.Minute))
	require.Equal(t, models.EnrollmentStatusWaitlisted, b.Status)
	require.Equal(t, 1, b.WaitlistPosition)

	result, err := h.svc.Drop(ctx, DropCommand{ClassID: "c1", StudentID: "A", Now: testNow.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Promoted)

	assert.True(t, h.store.isEnrolled("c1", "B"))
	assert.Empty(t, h.store.waitlistStudents("c1"))
	seats, err := h.svc.AvailableSeats(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, seats)

	_, err = h.svc.WaitlistPosition(ctx, "c1", "B")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.promotions))
}

func TestScenarioWaitlistCapacity(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)

	for i := 1; i <= 15; i++ {
		outcome := h.request(t, "c1", fmt.Sprintf("s%02d", i), testNow.Add(time.Duration(i)*time.Second))
		require.Equal(t, models.EnrollmentStatusWaitlisted, outcome.Status)
		require.Equal(t, i, outcome.WaitlistPosition)
	}

	_, err := h.svc.RequestEnrollment(context.Background(), "c1", "s16", testNow.Add(time.Minute))
	assert.ErrorIs(t, err, appErrors.ErrWaitlistFull)
	assert.Len(t, h.store.waitlistStudents("c1"), 15)
}

func TestScenarioStudentWaitlistLimit(t *testing.T) {
	h := newEnrollmentHarness(t)
	for i := 0; i < 5; i++ {
		h.addClass(fmt.Sprintf("c%d", i), 0)
	}
	for i := 0; i < 3; i++ {
		h.request(t, fmt.Sprintf("c%d", i), "student", testNow)
	}

	for i := 3; i < 5; i++ {
		_, err := h.svc.RequestEnrollment(context.Background(), fmt.Sprintf("c%d", i), "student", testNow)
		assert.ErrorIs(t, err, appErrors.ErrWaitlistLimitExceeded)
	}
	assert.Equal(t, 3, h.store.studentWaitlists("student"))
}

func TestPromoteIsFIFO(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)
	t1 := testNow.Add(-3 * time.Hour)
	t2 := testNow.Add(-2 * time.Hour)
	t3 := testNow.Add(-1 * time.Hour)

	// inserted out of date order
	h.request(t, "c1", "second", t2)
	h.request(t, "c1", "third", t3)
	h.request(t, "c1", "first", t1)

	h.setCapacity(t, "c1", 2)
	promoted, err := h.svc.Promote(context.Background(), []string{"c1"}, testNow)
	require.NoError(t, err)

	assert.Equal(t, 2, promoted)
	assert.True(t, h.store.isEnrolled("c1", "first"))
	assert.True(t, h.store.isEnrolled("c1", "second"))
	assert.False(t, h.store.isEnrolled("c1", "third"))
	assert.Equal(t, []string{"third"}, h.store.waitlistStudents("c1"))

	position, err := h.svc.WaitlistPosition(context.Background(), "c1", "third")
	require.NoError(t, err)
	assert.Equal(t, 1, position)
}

func TestPromoteBreaksTiesByRequestOrder(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)
	h.request(t, "c1", "zed", testNow)
	h.request(t, "c1", "amy", testNow)

	h.setCapacity(t, "c1", 1)
	promoted, err := h.svc.Promote(context.Background(), []string{"c1"}, testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, promoted)
	assert.True(t, h.store.isEnrolled("c1", "zed"))
	assert.Equal(t, []string{"amy"}, h.store.waitlistStudents("c1"))
}

func TestPromoteSkipsUnknownDeletedAndRepeatedClasses(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)
	h.request(t, "c1", "s1", testNow)
	h.request(t, "c1", "s2", testNow.Add(time.Second))
	h.setCapacity(t, "c1", 1)

	deletedAt := testNow
	gone := h.addClass("gone", 0)
	h.request(t, "gone", "s3", testNow)
	gone.RoomCapacity = 5
	gone.DeletedAt = &deletedAt
	h.store.putClass(gone)

	promoted, err := h.svc.Promote(context.Background(), []string{"c1", "missing", "gone", "c1", ""}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.Equal(t, 1, h.store.enrolledCount("c1"))
	assert.Zero(t, h.store.enrolledCount("gone"))
}

func TestPromoteWithoutSlotsPromotesNothing(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 1)
	h.request(t, "c1", "s1", testNow)
	h.request(t, "c1", "s2", testNow)

	promoted, err := h.svc.Promote(context.Background(), []string{"c1"}, testNow)
	require.NoError(t, err)
	assert.Zero(t, promoted)
	assert.Equal(t, []string{"s2"}, h.store.waitlistStudents("c1"))
}

func TestPromoteDiscardsEntriesForSeatedStudents(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)
	h.request(t, "c1", "stale", testNow)
	h.request(t, "c1", "next", testNow.Add(time.Second))

	// a seat obtained behind the engine's back
	require.NoError(t, fakeEnrollments{h.store}.Create(context.Background(), nil, &models.Enrollment{ClassID: "c1", StudentID: "stale", EnrollmentDate: testNow}))
	h.setCapacity(t, "c1", 2)

	promoted, err := h.svc.Promote(context.Background(), []string{"c1"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.True(t, h.store.isEnrolled("c1", "next"))
	assert.Empty(t, h.store.waitlistStudents("c1"))
}

func TestPromoteRollsBackClassOnFailure(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)
	h.request(t, "c1", "s1", testNow)
	h.setCapacity(t, "c1", 1)
	h.store.failOn("enrollment.create", errFakeStore)

	promoted, err := h.svc.Promote(context.Background(), []string{"c1"}, testNow)
	require.Error(t, err)
	assert.Zero(t, promoted)
	assert.ErrorIs(t, err, appErrors.ErrStore)
	assert.Equal(t, []string{"s1"}, h.store.waitlistStudents("c1"))
	assert.Zero(t, h.store.enrolledCount("c1"))
}

func TestDropRecordsDroplistEntry(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 1)
	h.request(t, "c1", "s1", testNow)
	h.request(t, "c1", "s2", testNow)

	result, err := h.svc.Drop(context.Background(), DropCommand{ClassID: "c1", StudentID: "s1", Administrative: true, Now: testNow.Add(time.Hour)})
	require.NoError(t, err)

	assert.Zero(t, result.Promoted)
	assert.False(t, h.store.isEnrolled("c1", "s1"))
	assert.Equal(t, []string{"s2"}, h.store.waitlistStudents("c1"))
	drops := h.store.dropEntries()
	require.Len(t, drops, 1)
	assert.Equal(t, "s1", drops[0].StudentID)
	assert.True(t, drops[0].Administrative)
	assert.Equal(t, testNow.Add(time.Hour), drops[0].DropDate)
}

func TestDropNotEnrolledWritesNothing(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 1)

	_, err := h.svc.Drop(context.Background(), DropCommand{ClassID: "c1", StudentID: "nobody"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, h.store.dropEntries())

	_, err = h.svc.Drop(context.Background(), DropCommand{ClassID: "missing", StudentID: "nobody"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDropIsAtomic(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 1)
	h.request(t, "c1", "s1", testNow)
	h.store.failOn("drop.create", errFakeStore)

	_, err := h.svc.Drop(context.Background(), DropCommand{ClassID: "c1", StudentID: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStore)
	assert.True(t, h.store.isEnrolled("c1", "s1"))
	assert.Empty(t, h.store.dropEntries())
}

func TestRemoveFromWaitlistIsNotRepeatable(t *testing.T) {
	h := newEnrollmentHarness(t)
	ctx := context.Background()
	h.addClass("c1", 0)
	h.request(t, "c1", "s1", testNow)

	require.NoError(t, h.svc.RemoveFromWaitlist(ctx, "c1", "s1"))
	err := h.svc.RemoveFromWaitlist(ctx, "c1", "s1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, h.store.waitlistStudents("c1"))
	assert.Empty(t, h.store.dropEntries())
}

func TestWaitlistPositionNotQueued(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)

	_, err := h.svc.WaitlistPosition(context.Background(), "c1", "s1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSetAutoEnrollPromotesOpenClasses(t *testing.T) {
	h := newEnrollmentHarness(t)
	ctx := context.Background()
	h.addClass("open", 0)
	h.request(t, "open", "s1", testNow)
	h.request(t, "open", "s2", testNow.Add(time.Second))
	h.setCapacity(t, "open", 1)

	started := h.addClass("started", 0)
	h.request(t, "started", "s3", testNow)
	started.RoomCapacity = 1
	started.CourseStartDate = testNow.Add(-15 * 24 * time.Hour)
	h.store.putClass(started)

	promoted, err := h.svc.SetAutoEnroll(ctx, true, "registrar-1")
	require.NoError(t, err)

	assert.Equal(t, 1, promoted)
	assert.True(t, h.svc.AutoEnrollEnabled())
	assert.True(t, h.store.isEnrolled("open", "s1"))
	assert.Equal(t, []string{"s2"}, h.store.waitlistStudents("open"))
	assert.Equal(t, []string{"s3"}, h.store.waitlistStudents("started"))

	cfg, err := fakeConfigs{h.store}.Get(ctx, models.ConfigKeyAutomaticEnrollment)
	require.NoError(t, err)
	assert.Equal(t, "true", cfg.Value)
	require.NotNil(t, cfg.UpdatedBy)
	assert.Equal(t, "registrar-1", *cfg.UpdatedBy)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.autoEnroll))
}

func TestSetAutoEnrollGraceCountsWholeDays(t *testing.T) {
	h := newEnrollmentHarness(t)
	cutoffDay := time.Date(2026, time.July, 27, 0, 0, 0, 0, time.UTC)

	for id, start := range map[string]time.Time{"cutoff-day": cutoffDay, "day-before": cutoffDay.Add(-time.Minute)} {
		class := h.addClass(id, 0)
		h.request(t, id, "s-"+id, testNow)
		class.RoomCapacity = 1
		class.CourseStartDate = start
		h.store.putClass(class)
	}

	promoted, err := h.svc.SetAutoEnroll(context.Background(), true, "")
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.True(t, h.store.isEnrolled("cutoff-day", "s-cutoff-day"))
	assert.Equal(t, []string{"s-day-before"}, h.store.waitlistStudents("day-before"))
}

func TestSetAutoEnrollOnlyPromotesOnTransition(t *testing.T) {
	h := newEnrollmentHarness(t)
	ctx := context.Background()
	h.addClass("c1", 0)

	_, err := h.svc.SetAutoEnroll(ctx, true, "")
	require.NoError(t, err)
	h.request(t, "c1", "s1", testNow)
	h.setCapacity(t, "c1", 1)

	promoted, err := h.svc.SetAutoEnroll(ctx, true, "")
	require.NoError(t, err)
	assert.Zero(t, promoted)
	assert.Equal(t, []string{"s1"}, h.store.waitlistStudents("c1"))

	promoted, err = h.svc.SetAutoEnroll(ctx, false, "")
	require.NoError(t, err)
	assert.Zero(t, promoted)
	assert.False(t, h.svc.AutoEnrollEnabled())
}

func TestSetAutoEnrollKeepsStateWhenPersistFails(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.store.failOn("config.upsert", errFakeStore)

	_, err := h.svc.SetAutoEnroll(context.Background(), true, "")
	assert.ErrorIs(t, err, appErrors.ErrStore)
	assert.False(t, h.svc.AutoEnrollEnabled())
}

func TestLoadAutoEnroll(t *testing.T) {
	t.Run("falls back when unset", func(t *testing.T) {
		h := newEnrollmentHarness(t)
		require.NoError(t, h.svc.LoadAutoEnroll(context.Background(), true))
		assert.True(t, h.svc.AutoEnrollEnabled())
	})

	t.Run("stored value wins", func(t *testing.T) {
		h := newEnrollmentHarness(t)
		require.NoError(t, fakeConfigs{h.store}.Upsert(context.Background(), nil, &models.Configuration{
			Key: models.ConfigKeyAutomaticEnrollment, Value: "true", Type: models.ConfigurationTypeBoolean,
		}))
		require.NoError(t, h.svc.LoadAutoEnroll(context.Background(), false))
		assert.True(t, h.svc.AutoEnrollEnabled())
	})

	t.Run("store failure falls back", func(t *testing.T) {
		h := newEnrollmentHarness(t)
		h.store.failOn("config.get", errFakeStore)
		err := h.svc.LoadAutoEnroll(context.Background(), false)
		assert.ErrorIs(t, err, appErrors.ErrStore)
		assert.False(t, h.svc.AutoEnrollEnabled())
	})
}

func TestConcurrentRequestsNeverOverbook(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 1)

	const students = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		seated   int
		queued   int
		rejected int
	)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := h.svc.RequestEnrollment(context.Background(), "c1", fmt.Sprintf("s%02d", i), testNow)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				rejected++
			case outcome.Status == models.EnrollmentStatusSeated:
				seated++
			default:
				queued++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, seated)
	assert.Equal(t, 15, queued)
	assert.Equal(t, 4, rejected)
	assert.Equal(t, 1, h.store.enrolledCount("c1"))
	assert.Len(t, h.store.waitlistStudents("c1"), 15)
}

func TestConcurrentDropsAndPromotionsKeepCapacity(t *testing.T) {
	h := newEnrollmentHarness(t)
	ctx := context.Background()
	h.addClass("c1", 3)
	_, err := h.svc.SetAutoEnroll(ctx, true, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.request(t, "c1", fmt.Sprintf("seat-%d", i), testNow)
	}
	for i := 0; i < 10; i++ {
		h.request(t, "c1", fmt.Sprintf("wait-%d", i), testNow.Add(time.Duration(i)*time.Second))
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.Drop(ctx, DropCommand{ClassID: "c1", StudentID: fmt.Sprintf("seat-%d", i)})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := h.svc.Promote(ctx, []string{"c1"}, testNow)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, h.store.enrolledCount("c1"))
	assert.Equal(t, []string{"wait-3", "wait-4", "wait-5", "wait-6", "wait-7", "wait-8", "wait-9"}, h.store.waitlistStudents("c1"))
	for i := 0; i < 3; i++ {
		assert.True(t, h.store.isEnrolled("c1", fmt.Sprintf("wait-%d", i)))
	}
}

// overlappingTx runs units of work side by side with no rollback, the way
// separate database connections do.
type overlappingTx struct{}

func (overlappingTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	return fn(nil)
}

// rendezvousWaitlists holds every student count until a second caller has
// counted too or the wait runs out.
type rendezvousWaitlists struct {
	fakeWaitlists
	counted *atomic.Int32
}

func (r rendezvousWaitlists) CountByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) (int, error) {
	n, err := r.fakeWaitlists.CountByStudent(ctx, exec, studentID)
	r.counted.Add(1)
	deadline := time.Now().Add(200 * time.Millisecond)
	for r.counted.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return n, err
}

func TestConcurrentWaitlistRequestsRespectStudentLimit(t *testing.T) {
	h := newEnrollmentHarness(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		h.addClass(id, 0)
	}
	h.request(t, "a", "s", testNow)
	h.request(t, "b", "s", testNow)

	svc := NewEnrollmentService(overlappingTx{}, fakeClasses{h.store}, fakeEnrollments{h.store},
		rendezvousWaitlists{fakeWaitlists: fakeWaitlists{h.store}, counted: &atomic.Int32{}},
		fakeDrops{h.store}, fakeConfigs{h.store}, DefaultEnrollmentRules(), validator.New(), h.metrics, nil, zap.NewNop())

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, classID := range []string{"c", "d"} {
		wg.Add(1)
		go func(classID string) {
			defer wg.Done()
			_, err := svc.RequestEnrollment(context.Background(), classID, "s", testNow)
			errs <- err
		}(classID)
	}
	wg.Wait()
	close(errs)

	var accepted, limited int
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, appErrors.ErrWaitlistLimitExceeded)
		limited++
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, limited)
	assert.Equal(t, 3, h.store.studentWaitlists("s"))
}

func TestRequestEnrollmentStudentLockFailure(t *testing.T) {
	h := newEnrollmentHarness(t)
	h.addClass("c1", 0)
	h.store.failOn("waitlist.lock", errFakeStore)

	_, err := h.svc.RequestEnrollment(context.Background(), "c1", "s1", testNow)
	assert.ErrorIs(t, err, appErrors.ErrStore)
	assert.Empty(t, h.store.waitlistStudents("c1"))
}
