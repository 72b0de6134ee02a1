package models

import "time"

// ClassType distinguishes one-on-one sessions from group sessions.
type ClassType string

const (
	ClassIndividual ClassType = "individual"
	ClassGroup      ClassType = "group"
)

// PaymentStatus tracks whether a recorded class has been paid out.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// ClassRecord is a document in the classes collection. Individual classes
// reference the student; group classes carry no student reference. Class
// records are never re-pointed when a student changes coach: historical
// attribution is per class.
type ClassRecord struct {
	ID            string        `json:"id"`
	CoachID       string        `json:"coachId"`
	StudentID     *string       `json:"studentId,omitempty"`
	ClassType     ClassType     `json:"classType"`
	ClassDate     time.Time     `json:"classDate"`
	Duration      int           `json:"duration"`
	ClassFee      float64       `json:"classFee"`
	Notes         string        `json:"notes,omitempty"`
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	PaymentDate   *time.Time    `json:"paymentDate,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// ClassDetail enriches a class record with resolved names for list views.
type ClassDetail struct {
	ClassRecord
	CoachName   string `json:"coach_name,omitempty"`
	StudentName string `json:"student_name,omitempty"`
}

// ClassFilter narrows class listings. Month is "YYYY-MM" and, matching the
// store's equality-only predicates, is applied in memory after the query.
type ClassFilter struct {
	CoachID       string
	StudentID     string
	ClassType     ClassType
	Month         string
	PaymentStatus PaymentStatus
	From          *time.Time
	To            *time.Time
}

// ClassStats aggregates a coach's recorded classes.
type ClassStats struct {
	TotalClasses int     `json:"total_classes"`
	TotalAmount  float64 `json:"total_amount"`
}

// PaymentSummary aggregates fee totals by payment status.
type PaymentSummary struct {
	PendingAmount   float64 `json:"pending_amount"`
	CompletedAmount float64 `json:"completed_amount"`
	TotalAmount     float64 `json:"total_amount"`
	ClassCount      int     `json:"class_count"`
}
