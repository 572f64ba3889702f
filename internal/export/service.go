package export

import (
	"context"
	"fmt"
	"time"

	"github.com/alonsobrenes/Api-sub001/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetTenant(ctx context.Context, tenantID string) (store.Tenant, error)
	GetPatient(ctx context.Context, tenantID, patientID string) (store.Patient, error)
	ListSessionsByPatient(ctx context.Context, tenantID, patientID string) ([]store.ClinicalSession, error)
	ListInterviewsByPatient(ctx context.Context, tenantID, patientID string) ([]store.Interview, error)
	ListAttemptsByPatient(ctx context.Context, tenantID, patientID string) ([]store.TestAttempt, error)
}

// Service provides patient summary export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// ExportPatientSummary renders the full clinical record of one patient as PDF
func (s *Service) ExportPatientSummary(ctx context.Context, tenantID, patientID string) (*Result, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	patient, err := s.store.GetPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}

	sessions, err := s.store.ListSessionsByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	interviews, err := s.store.ListInterviewsByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}

	attempts, err := s.store.ListAttemptsByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	data := TemplateData{
		PracticeName: tenant.Name,
		PatientName:  patient.FirstName + " " + patient.LastName,
		IDNumber:     patient.IDNumber,
		BirthDate:    patient.BirthDate,
		Notes:        patient.Notes,
		GeneratedAt:  time.Now(),
	}

	for _, sess := range sessions {
		data.Sessions = append(data.Sessions, TemplateSession{
			Title:     sess.Title,
			StartedAt: sess.StartedAt,
			EndedAt:   sess.EndedAt,
			Notes:     sess.Notes,
		})
	}
	for _, iv := range interviews {
		data.Interviews = append(data.Interviews, TemplateInterview{
			Title:       iv.Title,
			StartedAt:   iv.StartedAt,
			CompletedAt: iv.CompletedAt,
			Summary:     iv.Summary,
		})
	}
	for _, att := range attempts {
		score := ""
		if att.Score != nil {
			score = fmt.Sprintf("%.1f", *att.Score)
		}
		data.Attempts = append(data.Attempts, TemplateAttempt{
			TestName:    att.TestName,
			Status:      att.Status,
			Score:       score,
			CompletedAt: att.CompletedAt,
		})
	}

	html, err := RenderSummaryHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, patient.FirstName+" "+patient.LastName+" summary")
}
