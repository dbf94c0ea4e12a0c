package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/caregate/caregate/pkg/contextkeys"
	"github.com/caregate/caregate/pkg/httputil"
	"github.com/caregate/caregate/pkg/observability"
	"github.com/caregate/caregate/pkg/token"
)

// PortalHandlers implements the patient-facing resource endpoints.
type PortalHandlers struct {
	directory Directory
}

func NewPortalHandlers(directory Directory) *PortalHandlers {
	return &PortalHandlers{directory: directory}
}

// getProfile handles GET /api/v1/profile
func (h *PortalHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := r.Context().Value(contextkeys.PrincipalKey).(*token.Principal)
	if !ok {
		httputil.WriteUnauthenticated(w)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, map[string]interface{}{
		"subject":  principal.Subject,
		"role":     principal.Role,
		"verified": principal.Verified,
	})
}

// listAppointments handles GET /api/v1/patients/{patientId}/appointments
func (h *PortalHandlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	patientID := httputil.ParsePathString(r, "patientId")
	appts, err := h.directory.AppointmentsByPatient(r.Context(), patientID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Appointment lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, appts)
}

// createAppointment handles POST /api/v1/patients/{patientId}/appointments
func (h *PortalHandlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	patientID := httputil.ParsePathString(r, "patientId")

	var req struct {
		DoctorID  string    `json:"doctorId"`
		Scheduled time.Time `json:"scheduled"`
		Reason    string    `json:"reason"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.DoctorID == "" || req.Scheduled.IsZero() {
		httputil.WriteBadRequest(w, "doctorId and scheduled are required")
		return
	}

	appt, err := h.directory.CreateAppointment(r.Context(), Appointment{
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		Scheduled: req.Scheduled,
		Reason:    req.Reason,
	})
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Appointment create failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteData(w, r, http.StatusCreated, appt)
}

// cancelAppointment handles DELETE /api/v1/patients/{patientId}/appointments/{id}
func (h *PortalHandlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	patientID := httputil.ParsePathString(r, "patientId")
	id := httputil.ParsePathString(r, "id")

	err := h.directory.CancelAppointment(r.Context(), patientID, id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "appointment not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Appointment cancel failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, map[string]string{"status": "cancelled"})
}

// listPrescriptions handles GET /api/v1/patients/{patientId}/prescriptions
func (h *PortalHandlers) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	patientID := httputil.ParsePathString(r, "patientId")
	scripts, err := h.directory.PrescriptionsByPatient(r.Context(), patientID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Prescription lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, scripts)
}

// listRecords handles GET /api/v1/patients/{patientId}/records
func (h *PortalHandlers) listRecords(w http.ResponseWriter, r *http.Request) {
	patientID := httputil.ParsePathString(r, "patientId")
	records, err := h.directory.RecordsByPatient(r.Context(), patientID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Record lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, records)
}
