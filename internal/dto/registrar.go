package dto

// AutoEnrollmentRequest toggles automatic enrollment.
type AutoEnrollmentRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// AutoEnrollmentResponse reports the switch and any students promoted by
// turning it on.
type AutoEnrollmentResponse struct {
	Enabled  bool `json:"enabled"`
	Promoted int  `json:"promoted"`
}

// PromoteRequest asks for a promotion run over the listed classes.
type PromoteRequest struct {
	ClassIDs []string `json:"class_ids" binding:"required,min=1,dive,required"`
}
