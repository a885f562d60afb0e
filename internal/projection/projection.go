// Package projection computes the read-side desk views from raw
// collection snapshots. Each view is a pure function: same snapshot
// in, same view out, no store access.
package projection

import (
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// HistoryLimit bounds the prescription history view to the most
// recent entries.
const HistoryLimit = 500

func str(r store.Record, key string) string {
	s, _ := r[key].(string)
	return s
}

// ReceptionQueue returns today's patients ordered by token number.
// Patients from previous days never appear, whatever their status.
func ReceptionQueue(patients []store.Record, today string) []store.Record {
	out := make([]store.Record, 0, len(patients))
	for _, p := range patients {
		if str(p, "date") == today {
			out = append(out, p)
		}
	}
	store.Sort(out, store.OrderBy{Field: "token"})
	return out
}

// AssignedPatients returns today's patients currently with the
// doctor, in hand-off order.
func AssignedPatients(patients []store.Record, today string) []store.Record {
	out := make([]store.Record, 0, len(patients))
	for _, p := range patients {
		if str(p, "date") == today && str(p, "status") == "with-doctor" {
			out = append(out, p)
		}
	}
	store.Sort(out, store.OrderBy{Field: "assignedAt"})
	return out
}

// BillingLedger returns today's billing entries, newest first, each
// joined with the patient's name and token. A bill whose patient is
// missing still appears, with empty join fields.
func BillingLedger(bills, patients []store.Record, today string) []store.Record {
	byID := make(map[string]store.Record, len(patients))
	for _, p := range patients {
		byID[p.ID()] = p
	}

	out := make([]store.Record, 0, len(bills))
	for _, b := range bills {
		if str(b, "date") != today {
			continue
		}
		entry := store.Record{}
		for k, v := range b {
			entry[k] = v
		}
		if p, ok := byID[str(b, "patientId")]; ok {
			entry["patientName"] = p["name"]
			entry["patientToken"] = p["token"]
		} else {
			entry["patientName"] = ""
			entry["patientToken"] = nil
		}
		out = append(out, entry)
	}
	store.Sort(out, store.OrderBy{Field: "createdAt", Desc: true})
	return out
}

// PrescriptionHistory returns prescriptions newest first, joined with
// patient names, optionally filtered by a case-insensitive substring
// match on diagnosis or prescription text. The view is capped at
// HistoryLimit entries after filtering.
func PrescriptionHistory(prescriptions, patients []store.Record, query string) []store.Record {
	byID := make(map[string]store.Record, len(patients))
	for _, p := range patients {
		byID[p.ID()] = p
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]store.Record, 0, len(prescriptions))
	for _, rx := range prescriptions {
		if q != "" {
			diagnosis := strings.ToLower(str(rx, "diagnosis"))
			text := strings.ToLower(str(rx, "prescription"))
			if !strings.Contains(diagnosis, q) && !strings.Contains(text, q) {
				continue
			}
		}
		entry := store.Record{}
		for k, v := range rx {
			entry[k] = v
		}
		if p, ok := byID[str(rx, "patientId")]; ok {
			entry["patientName"] = p["name"]
		} else {
			entry["patientName"] = ""
		}
		out = append(out, entry)
	}
	store.Sort(out, store.OrderBy{Field: "timestamp", Desc: true})
	if len(out) > HistoryLimit {
		out = out[:HistoryLimit]
	}
	return out
}
