package billing

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
)

// billTemplate is the printable bill page handed to the patient.
var billTemplate = template.Must(template.New("bill").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Bill {{.BillID}}</title>
<style>
body { font-family: sans-serif; max-width: 480px; margin: 2em auto; }
h1 { font-size: 1.2em; text-align: center; }
table { width: 100%; border-collapse: collapse; margin-top: 1em; }
td { padding: 4px 0; }
td.amount { text-align: right; }
tr.total td { border-top: 1px solid #000; font-weight: bold; }
.status { text-align: center; margin-top: 1.5em; text-transform: uppercase; }
</style>
</head>
<body>
<h1>Clinic Bill</h1>
<p>Date: {{.Date}}<br>
Bill No: {{.BillID}}<br>
Patient: {{.PatientName}}{{if .Token}} (Token {{.Token}}){{end}}</p>
<table>
<tr><td>Consultation Fee</td><td class="amount">{{.ConsultationFee}}</td></tr>
<tr><td>Medicine Cost</td><td class="amount">{{.MedicineCost}}</td></tr>
<tr class="total"><td>Total</td><td class="amount">{{.Total}}</td></tr>
</table>
<p class="status">{{.Status}}</p>
</body>
</html>`))

type billPage struct {
	BillID          string
	Date            string
	PatientName     string
	Token           int
	ConsultationFee string
	MedicineCost    string
	Total           string
	Status          string
}

// RenderBill produces the printable HTML for a bill. The patient may
// be zero when the visit record is gone; the bill still renders.
func RenderBill(b Bill, p patient.Patient) (string, error) {
	page := billPage{
		BillID:          b.ID,
		Date:            b.Date,
		PatientName:     p.Name,
		Token:           p.Token,
		ConsultationFee: fmt.Sprintf("%.2f", b.ConsultationFee),
		MedicineCost:    fmt.Sprintf("%.2f", b.MedicineCost),
		Total:           fmt.Sprintf("%.2f", b.TotalAmount),
		Status:          b.Status,
	}
	if page.PatientName == "" {
		page.PatientName = "Unknown"
	}

	var sb strings.Builder
	if err := billTemplate.Execute(&sb, page); err != nil {
		return "", fmt.Errorf("render bill: %w", err)
	}
	return sb.String(), nil
}
