package models

import "time"

// Student is a document in the students collection. AssignedCoachID is a
// denormalized copy of the currently active assignment's coach; the
// assignments collection is the source of truth and the roster service is the
// only writer of this field.
type Student struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	ParentName      string    `json:"parentName,omitempty"`
	ParentPhone     string    `json:"parentPhone,omitempty"`
	AssignedCoachID *string   `json:"assignedCoachId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// StudentDetail enriches a student with the resolved coach name for list views.
type StudentDetail struct {
	Student
	CoachName *string `json:"coach_name,omitempty"`
}
