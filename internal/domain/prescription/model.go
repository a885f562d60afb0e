// Package prescription records the doctor's consultation outcome.
// Filing one closes the visit and opens the bill in the same call.
package prescription

// Collection is the document store collection for prescriptions.
const Collection = "prescriptions"

// Prescription is one consultation's record. Timestamp orders the
// history view; Date groups by clinic day.
type Prescription struct {
	ID              string  `json:"id"`
	PatientID       string  `json:"patientId"`
	DoctorID        string  `json:"doctorId"`
	Diagnosis       string  `json:"diagnosis"`
	Prescription    string  `json:"prescription"`
	ConsultationFee float64 `json:"consultationFee"`
	MedicineCost    float64 `json:"medicineCost"`
	Date            string  `json:"date"`
	Timestamp       int64   `json:"timestamp"`
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`
}

// FileInput carries the doctor's submission.
type FileInput struct {
	PatientID       string  `json:"patientId"`
	Diagnosis       string  `json:"diagnosis"`
	Prescription    string  `json:"prescription"`
	ConsultationFee float64 `json:"consultationFee"`
	MedicineCost    float64 `json:"medicineCost"`
}
