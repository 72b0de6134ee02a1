package models

import "time"

// AssignmentStatus is the lifecycle state of an assignment record. Records
// move from active to inactive exactly once and never back; re-assigning a
// student to the same coach creates a fresh record so AssignedDate stays
// meaningful as a history trail.
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentInactive AssignmentStatus = "inactive"
)

// Assignment is one historical binding of a student to a coach. The roster
// service guarantees at most one active assignment per student.
type Assignment struct {
	ID           string           `json:"id"`
	StudentID    string           `json:"studentId"`
	CoachID      string           `json:"coachId"`
	AssignedDate time.Time        `json:"assignedDate"`
	Status       AssignmentStatus `json:"status"`
}

// AssignmentDetail enriches an assignment with resolved names for roster views.
type AssignmentDetail struct {
	Assignment
	StudentName string `json:"student_name,omitempty"`
	CoachName   string `json:"coach_name,omitempty"`
}
