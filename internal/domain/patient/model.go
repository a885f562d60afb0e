// Package patient handles registration and the movement of patients
// through the visit: waiting, with the doctor, completed.
package patient

import "errors"

// Collection is the document store collection for patient visits.
const Collection = "patients"

// Visit statuses. Transitions only move forward.
const (
	StatusWaiting    = "waiting"
	StatusWithDoctor = "with-doctor"
	StatusCompleted  = "completed"
)

var (
	ErrNotWaiting    = errors.New("patient is not waiting")
	ErrNotWithDoctor = errors.New("patient is not with the doctor")
)

// validNextStatus maps a status to the statuses it may move to.
var validNextStatus = map[string]string{
	StatusWaiting:    StatusWithDoctor,
	StatusWithDoctor: StatusCompleted,
}

// Patient is one visit record. A returning patient gets a fresh
// record, token and date each day.
type Patient struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Contact        string `json:"contact"`
	Symptoms       string `json:"symptoms"`
	Token          int    `json:"token"`
	Status         string `json:"status"`
	RegisteredBy   string `json:"registeredBy"`
	Date           string `json:"date"`
	AssignedAt     int64  `json:"assignedAt,omitempty"`
	CompletedAt    int64  `json:"completedAt,omitempty"`
	PrescriptionID string `json:"prescriptionId,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// RegisterInput is the front-desk registration payload.
type RegisterInput struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Contact  string `json:"contact"`
	Symptoms string `json:"symptoms"`
}
