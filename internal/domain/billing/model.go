// Package billing tracks the money side of a visit: one bill per
// filed prescription, pending until the desk collects payment.
package billing

import "errors"

// Collection is the document store collection for bills.
const Collection = "billing"

// Bill statuses.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

var ErrAlreadyPaid = errors.New("bill is already paid")

// Bill is one visit's charges. TotalAmount is computed once at
// creation and never recomputed from the parts.
type Bill struct {
	ID              string  `json:"id"`
	PatientID       string  `json:"patientId"`
	PrescriptionID  string  `json:"prescriptionId"`
	ConsultationFee float64 `json:"consultationFee"`
	MedicineCost    float64 `json:"medicineCost"`
	TotalAmount     float64 `json:"totalAmount"`
	Status          string  `json:"status"`
	Date            string  `json:"date"`
	PaidAt          int64   `json:"paidAt,omitempty"`
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`
}
