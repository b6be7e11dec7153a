package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
)

var errFakeStore = errors.New("fake store failure")

// fakeStore is an in-memory record store. Transactions are serialized and
// roll back to a snapshot when the unit of work fails.
type fakeStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	courses     map[string]models.Course
	classes     map[string]models.Class
	enrollments map[string]models.Enrollment
	waitlist    []models.WaitlistEntry
	drops       []models.DropEntry
	configs     map[string]models.Configuration
	seq         int64
	nextID      int

	txCount  int
	failNext map[string]error
}

type fakeSnapshot struct {
	classes     map[string]models.Class
	enrollments map[string]models.Enrollment
	waitlist    []models.WaitlistEntry
	drops       []models.DropEntry
	configs     map[string]models.Configuration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		courses:     make(map[string]models.Course),
		classes:     make(map[string]models.Class),
		enrollments: make(map[string]models.Enrollment),
		configs:     make(map[string]models.Configuration),
		failNext:    make(map[string]error),
	}
}

func enrollmentKey(classID, studentID string) string {
	return classID + "/" + studentID
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	f.txCount++
	snap := f.snapshotLocked()
	f.mu.Unlock()

	if err := fn(nil); err != nil {
		f.mu.Lock()
		f.restoreLocked(snap)
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) snapshotLocked() fakeSnapshot {
	snap := fakeSnapshot{
		classes:     make(map[string]models.Class, len(f.classes)),
		enrollments: make(map[string]models.Enrollment, len(f.enrollments)),
		waitlist:    append([]models.WaitlistEntry(nil), f.waitlist...),
		drops:       append([]models.DropEntry(nil), f.drops...),
		configs:     make(map[string]models.Configuration, len(f.configs)),
	}
	for k, v := range f.classes {
		snap.classes[k] = v
	}
	for k, v := range f.enrollments {
		snap.enrollments[k] = v
	}
	for k, v := range f.configs {
		snap.configs[k] = v
	}
	return snap
}

func (f *fakeStore) restoreLocked(snap fakeSnapshot) {
	f.classes = snap.classes
	f.enrollments = snap.enrollments
	f.waitlist = snap.waitlist
	f.drops = snap.drops
	f.configs = snap.configs
}

// failOn makes the next call of op return err.
func (f *fakeStore) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = err
}

func (f *fakeStore) takeFailure(op string) error {
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return prefix + "-" + strconv.Itoa(f.nextID)
}

func (f *fakeStore) putClass(class models.Class) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes[class.ID] = class
}

func (f *fakeStore) enrolledCount(classID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.enrollments {
		if e.ClassID == classID {
			n++
		}
	}
	return n
}

func (f *fakeStore) isEnrolled(classID, studentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.enrollments[enrollmentKey(classID, studentID)]
	return ok
}

func (f *fakeStore) waitlistStudents(classID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, entry := range f.sortedWaitlistLocked(classID) {
		out = append(out, entry.StudentID)
	}
	return out
}

func (f *fakeStore) studentWaitlists(studentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, entry := range f.waitlist {
		if entry.StudentID == studentID {
			n++
		}
	}
	return n
}

func (f *fakeStore) dropEntries() []models.DropEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DropEntry(nil), f.drops...)
}

func (f *fakeStore) sortedWaitlistLocked(classID string) []models.WaitlistEntry {
	var entries []models.WaitlistEntry
	for _, entry := range f.waitlist {
		if entry.ClassID == classID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].WaitlistDate.Equal(entries[j].WaitlistDate) {
			return entries[i].WaitlistDate.Before(entries[j].WaitlistDate)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries
}

type fakeClasses struct{ *fakeStore }

func (f fakeClasses) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("class.find"); err != nil {
		return nil, err
	}
	class, ok := f.classes[id]
	if !ok || class.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &class, nil
}

func (f fakeClasses) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	return f.FindByID(ctx, exec, id)
}

func (f fakeClasses) ListOpenWithWaitlist(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, class := range f.classes {
		if class.DeletedAt != nil || class.CourseStartDate.Before(cutoff) {
			continue
		}
		if len(f.sortedWaitlistLocked(id)) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f fakeClasses) Create(ctx context.Context, class *models.Class) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.classes {
		if existing.DeletedAt == nil && existing.DepartmentCode == class.DepartmentCode &&
			existing.CourseNo == class.CourseNo && existing.SectionNo == class.SectionNo &&
			existing.AcademicYear == class.AcademicYear && existing.Semester == class.Semester {
			return repository.ErrDuplicate
		}
	}
	if class.ID == "" {
		class.ID = f.id("class")
	}
	f.classes[class.ID] = *class
	return nil
}

func (f fakeClasses) Update(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.classes[class.ID]
	if !ok || existing.DeletedAt != nil {
		return sql.ErrNoRows
	}
	f.classes[class.ID] = *class
	return nil
}

func (f fakeClasses) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	class, ok := f.classes[id]
	if !ok || class.DeletedAt != nil {
		return sql.ErrNoRows
	}
	class.DeletedAt = &at
	f.classes[id] = class
	return nil
}

func (f fakeClasses) ListAvailability(ctx context.Context) ([]models.ClassAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassAvailability
	for id, class := range f.classes {
		if class.DeletedAt != nil {
			continue
		}
		enrolled := 0
		for _, e := range f.enrollments {
			if e.ClassID == id {
				enrolled++
			}
		}
		out = append(out, models.ClassAvailability{
			Class:          class,
			EnrolledCount:  enrolled,
			WaitlistCount:  len(f.sortedWaitlistLocked(id)),
			AvailableSeats: class.RoomCapacity - enrolled,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCourses struct{ *fakeStore }

func (f fakeCourses) Create(ctx context.Context, course *models.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.courses {
		if existing.DepartmentCode == course.DepartmentCode && existing.CourseNo == course.CourseNo {
			return repository.ErrDuplicate
		}
	}
	if course.ID == "" {
		course.ID = f.id("course")
	}
	f.courses[course.ID] = *course
	return nil
}

func (f fakeCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	course, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (f fakeCourses) List(ctx context.Context) ([]models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Course
	for _, course := range f.courses {
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeEnrollments struct{ *fakeStore }

func (f fakeEnrollments) CountByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("enrollment.count"); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range f.enrollments {
		if e.ClassID == classID {
			n++
		}
	}
	return n, nil
}

func (f fakeEnrollments) Exists(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.enrollments[enrollmentKey(classID, studentID)]
	return ok, nil
}

func (f fakeEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("enrollment.create"); err != nil {
		return err
	}
	key := enrollmentKey(enrollment.ClassID, enrollment.StudentID)
	if _, ok := f.enrollments[key]; ok {
		return repository.ErrDuplicate
	}
	if enrollment.ID == "" {
		enrollment.ID = f.id("enrollment")
	}
	f.enrollments[key] = *enrollment
	return nil
}

func (f fakeEnrollments) Delete(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := enrollmentKey(classID, studentID)
	if _, ok := f.enrollments[key]; !ok {
		return false, nil
	}
	delete(f.enrollments, key)
	return true, nil
}

func (f fakeEnrollments) ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Enrollment
	for _, e := range f.enrollments {
		if e.ClassID == classID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrollmentDate.Equal(out[j].EnrollmentDate) {
			return out[i].EnrollmentDate.Before(out[j].EnrollmentDate)
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

type fakeWaitlists struct{ *fakeStore }

func (f fakeWaitlists) LockStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.takeFailure("waitlist.lock")
}

func (f fakeWaitlists) CountByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, entry := range f.waitlist {
		if entry.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f fakeWaitlists) CountByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sortedWaitlistLocked(classID)), nil
}

func (f fakeWaitlists) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("waitlist.create"); err != nil {
		return err
	}
	for _, existing := range f.waitlist {
		if existing.ClassID == entry.ClassID && existing.StudentID == entry.StudentID {
			return repository.ErrDuplicate
		}
	}
	f.seq++
	entry.Seq = f.seq
	f.waitlist = append(f.waitlist, *entry)
	return nil
}

func (f fakeWaitlists) Delete(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, entry := range f.waitlist {
		if entry.ClassID == classID && entry.StudentID == studentID {
			f.waitlist = append(f.waitlist[:i:i], f.waitlist[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f fakeWaitlists) DeleteByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.waitlist[:0:0]
	removed := 0
	for _, entry := range f.waitlist {
		if entry.ClassID == classID {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	f.waitlist = kept
	return removed, nil
}

func (f fakeWaitlists) Head(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) ([]models.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.sortedWaitlistLocked(classID)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f fakeWaitlists) Position(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, entry := range f.sortedWaitlistLocked(classID) {
		if entry.StudentID == studentID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (f fakeWaitlists) ListByClass(ctx context.Context, classID string) ([]models.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedWaitlistLocked(classID), nil
}

type fakeDrops struct{ *fakeStore }

func (f fakeDrops) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.DropEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("drop.create"); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = f.id("drop")
	}
	f.drops = append(f.drops, *entry)
	return nil
}

func (f fakeDrops) ListByClass(ctx context.Context, classID string) ([]models.DropEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DropEntry
	for i := len(f.drops) - 1; i >= 0; i-- {
		if f.drops[i].ClassID == classID {
			out = append(out, f.drops[i])
		}
	}
	return out, nil
}

type fakeConfigs struct{ *fakeStore }

func (f fakeConfigs) Get(ctx context.Context, key string) (*models.Configuration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("config.get"); err != nil {
		return nil, err
	}
	cfg, ok := f.configs[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &cfg, nil
}

func (f fakeConfigs) Upsert(ctx context.Context, exec sqlx.ExtContext, cfg *models.Configuration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("config.upsert"); err != nil {
		return err
	}
	f.configs[cfg.Key] = *cfg
	return nil
}
