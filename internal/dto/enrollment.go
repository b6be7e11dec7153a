package dto

// EnrollRequest is the student payload for POST /enrollments.
type EnrollRequest struct {
	ClassID string `json:"class_id" binding:"required"`
}

// SeatsResponse reports the open seats of a class.
type SeatsResponse struct {
	ClassID        string `json:"class_id"`
	AvailableSeats int    `json:"available_seats"`
}

// WaitlistPositionResponse reports a student's place in line.
type WaitlistPositionResponse struct {
	ClassID   string `json:"class_id"`
	StudentID string `json:"student_id"`
	Position  int    `json:"position"`
}
