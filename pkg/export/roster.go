package export

import (
	"strconv"
	"time"
)

// Roster column headers.
const (
	HeaderNo             = "No"
	HeaderStudentID      = "Student CWID"
	HeaderEnrollmentDate = "Enrolled At"
)

// RosterLine is one enrolled student.
type RosterLine struct {
	StudentID      string
	EnrollmentDate time.Time
}

// RosterDataset lays out a class roster in the given order.
func RosterDataset(lines []RosterLine) Dataset {
	data := Dataset{
		Headers: []string{HeaderNo, HeaderStudentID, HeaderEnrollmentDate},
		Rows:    make([]map[string]string, 0, len(lines)),
	}
	for i, line := range lines {
		data.Rows = append(data.Rows, map[string]string{
			HeaderNo:             strconv.Itoa(i + 1),
			HeaderStudentID:      line.StudentID,
			HeaderEnrollmentDate: line.EnrollmentDate.UTC().Format(time.RFC3339),
		})
	}
	return data
}
