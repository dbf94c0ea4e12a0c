package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an addressed resource does not exist.
var ErrNotFound = errors.New("api: not found")

// Appointment is a scheduled visit.
type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	DoctorID  string    `json:"doctorId"`
	Scheduled time.Time `json:"scheduled"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
}

// Prescription is an issued medication order.
type Prescription struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patientId"`
	Medication   string    `json:"medication"`
	Dosage       string    `json:"dosage"`
	PrescribedBy string    `json:"prescribedBy"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// MedicalRecord is one entry in a patient's chart.
type MedicalRecord struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	AuthorID  string    `json:"authorId"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Directory is the read/write surface the portal handlers need. The backing
// system of record is out of scope here; deployments plug their own in.
type Directory interface {
	AppointmentsByPatient(ctx context.Context, patientID string) ([]Appointment, error)
	CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	CancelAppointment(ctx context.Context, patientID, id string) error
	PrescriptionsByPatient(ctx context.Context, patientID string) ([]Prescription, error)
	RecordsByPatient(ctx context.Context, patientID string) ([]MedicalRecord, error)
}

// MemoryDirectory is an in-process Directory for tests and demos.
type MemoryDirectory struct {
	mu            sync.RWMutex
	appointments  map[string]Appointment
	prescriptions map[string]Prescription
	records       map[string]MedicalRecord
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		appointments:  make(map[string]Appointment),
		prescriptions: make(map[string]Prescription),
		records:       make(map[string]MedicalRecord),
	}
}

func (d *MemoryDirectory) AppointmentsByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Appointment
	for _, a := range d.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scheduled.Before(out[j].Scheduled) })
	return out, nil
}

func (d *MemoryDirectory) CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if appt.Status == "" {
		appt.Status = "scheduled"
	}
	d.appointments[appt.ID] = appt
	return appt, nil
}

func (d *MemoryDirectory) CancelAppointment(ctx context.Context, patientID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	appt, ok := d.appointments[id]
	if !ok || appt.PatientID != patientID {
		return ErrNotFound
	}
	appt.Status = "cancelled"
	d.appointments[id] = appt
	return nil
}

// AddPrescription seeds a prescription, used by tests and demo data.
func (d *MemoryDirectory) AddPrescription(p Prescription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	d.prescriptions[p.ID] = p
}

func (d *MemoryDirectory) PrescriptionsByPatient(ctx context.Context, patientID string) ([]Prescription, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Prescription
	for _, p := range d.prescriptions {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

// AddRecord seeds a medical record.
func (d *MemoryDirectory) AddRecord(rec MedicalRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	d.records[rec.ID] = rec
}

func (d *MemoryDirectory) RecordsByPatient(ctx context.Context, patientID string) ([]MedicalRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []MedicalRecord
	for _, rec := range d.records {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
