package models

import "time"

// Semester codes accepted for a class.
const (
	SemesterSpring = "SP"
	SemesterSummer = "SU"
	SemesterFall   = "FA"
	SemesterWinter = "WI"
)

// Course is a catalog entry such as "CPSC 449".
type Course struct {
	ID             string    `db:"id" json:"id"`
	DepartmentCode string    `db:"department_code" json:"department_code"`
	CourseNo       int       `db:"course_no" json:"course_no"`
	Title          string    `db:"title" json:"title"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Class is one section of a course offered in a given term.
type Class struct {
	ID              string     `db:"id" json:"id"`
	CourseID        string     `db:"course_id" json:"course_id"`
	DepartmentCode  string     `db:"department_code" json:"department_code"`
	CourseNo        int        `db:"course_no" json:"course_no"`
	SectionNo       int        `db:"section_no" json:"section_no"`
	AcademicYear    int        `db:"academic_year" json:"academic_year"`
	Semester        string     `db:"semester" json:"semester"`
	InstructorID    string     `db:"instructor_id" json:"instructor_id"`
	RoomNumber      string     `db:"room_number" json:"room_number"`
	RoomCapacity    int        `db:"room_capacity" json:"room_capacity"`
	CourseStartDate time.Time  `db:"course_start_date" json:"course_start_date"`
	EnrollmentStart time.Time  `db:"enrollment_start" json:"enrollment_start"`
	EnrollmentEnd   time.Time  `db:"enrollment_end" json:"enrollment_end"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// WindowOpen reports whether now falls inside the enrollment window. Both
// bounds are inclusive.
func (c *Class) WindowOpen(now time.Time) bool {
	return !now.Before(c.EnrollmentStart) && !now.After(c.EnrollmentEnd)
}

// ClassAvailability is a class together with its seat and waitlist counters.
type ClassAvailability struct {
	Class
	EnrolledCount  int `db:"enrolled_count" json:"enrolled_count"`
	WaitlistCount  int `db:"waitlist_count" json:"waitlist_count"`
	AvailableSeats int `db:"-" json:"available_seats"`
}

// ClassPatch carries the optional fields a registrar may change.
type ClassPatch struct {
	SectionNo       *int
	InstructorID    *string
	RoomNumber      *string
	RoomCapacity    *int
	CourseStartDate *time.Time
	EnrollmentStart *time.Time
	EnrollmentEnd   *time.Time
}

// Apply copies the set fields onto the class.
func (p ClassPatch) Apply(c *Class) {
	if p.SectionNo != nil {
		c.SectionNo = *p.SectionNo
	}
	if p.InstructorID != nil {
		c.InstructorID = *p.InstructorID
	}
	if p.RoomNumber != nil {
		c.RoomNumber = *p.RoomNumber
	}
	if p.RoomCapacity != nil {
		c.RoomCapacity = *p.RoomCapacity
	}
	if p.CourseStartDate != nil {
		c.CourseStartDate = p.CourseStartDate.UTC()
	}
	if p.EnrollmentStart != nil {
		c.EnrollmentStart = p.EnrollmentStart.UTC()
	}
	if p.EnrollmentEnd != nil {
		c.EnrollmentEnd = p.EnrollmentEnd.UTC()
	}
}
