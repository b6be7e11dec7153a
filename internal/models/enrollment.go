package models

import "time"

// EnrollmentStatus is the outcome of a successful enrollment request.
type EnrollmentStatus string

// Possible enrollment outcomes. Rejections are reported as errors.
const (
	EnrollmentStatusSeated     EnrollmentStatus = "SEATED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
)

// Enrollment is a seat held by a student in a class.
type Enrollment struct {
	ID             string    `db:"id" json:"id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	EnrollmentDate time.Time `db:"enrollment_date" json:"enrollment_date"`
}

// WaitlistEntry queues a student for a seat. Seq is the insertion sequence
// and breaks ties between equal waitlist dates.
type WaitlistEntry struct {
	Seq          int64     `db:"seq" json:"-"`
	ClassID      string    `db:"class_id" json:"class_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	WaitlistDate time.Time `db:"waitlist_date" json:"waitlist_date"`
}

// DropEntry is an append-only audit record of a dropped enrollment.
type DropEntry struct {
	ID             string    `db:"id" json:"id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	DropDate       time.Time `db:"drop_date" json:"drop_date"`
	Administrative bool      `db:"administrative" json:"administrative"`
}

// EnrollmentOutcome reports where a request landed.
type EnrollmentOutcome struct {
	Status           EnrollmentStatus `json:"status"`
	ClassID          string           `json:"class_id"`
	StudentID        string           `json:"student_id"`
	At               time.Time        `json:"at"`
	WaitlistPosition int              `json:"waitlist_position,omitempty"`
}

// DropResult reports a completed drop and any follow-up promotions.
type DropResult struct {
	ClassID        string    `json:"class_id"`
	StudentID      string    `json:"student_id"`
	Administrative bool      `json:"administrative"`
	DroppedAt      time.Time `json:"dropped_at"`
	Promoted       int       `json:"promoted"`
}

// PromotionResult summarises a promotion run.
type PromotionResult struct {
	Promoted int `json:"promoted"`
}
