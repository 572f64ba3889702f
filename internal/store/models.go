package store

import "time"

type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID                    string
	TenantID              string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Patient struct {
	ID         string
	TenantID   string
	FirstName  string
	LastName   string
	IDNumber   string
	Email      string
	Phone      string
	BirthDate  *time.Time
	Notes      string
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ClinicalSession carries no tenant column of its own; it is scoped through
// the patient it belongs to.
type ClinicalSession struct {
	ID                  string
	PatientID           string
	Title               string
	Notes               string
	Transcript          string
	AIOpinion           string
	TranscriptUpdatedAt *time.Time
	AIOpinionUpdatedAt  *time.Time
	StartedAt           time.Time
	EndedAt             *time.Time
	CreatedBy           string
	CreatedAt           time.Time
}

type Interview struct {
	ID               string
	TenantID         string
	PatientID        string
	Title            string
	Summary          string
	StartedAt        time.Time
	CompletedAt      *time.Time
	SummaryUpdatedAt *time.Time
	CreatedAt        time.Time
}

// Test is a catalog entry; the catalog is global, attempts are per-patient.
type Test struct {
	ID            string
	Code          string
	Name          string
	Description   string
	QuestionCount int
}

type TestAttempt struct {
	ID          string
	PatientID   string
	TestID      string
	TestName    string // joined from tests
	Status      string
	Score       *float64
	Report      string
	StartedAt   time.Time
	CompletedAt *time.Time
	ScoredAt    *time.Time
}

// Attachment metadata lives in Postgres; the payload lives in object storage
// under ObjectKey. Scoped through the owning patient.
type Attachment struct {
	ID          string
	PatientID   string
	FileName    string
	Description string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	UploadedBy  string
	UploadedAt  time.Time
}

type Label struct {
	ID        string
	TenantID  string
	Code      string
	Name      string
	ColorHex  string
	CreatedAt time.Time
}

type Hashtag struct {
	ID        string
	TenantID  string
	Tag       string
	CreatedAt time.Time
}

type BillingRecord struct {
	ID          string
	TenantID    string
	PatientID   string
	Concept     string
	AmountCents int64
	Currency    string
	Status      string // pending, paid, void
	IssuedAt    time.Time
	PaidAt      *time.Time
}

type Notification struct {
	ID        string
	TenantID  string
	UserID    string
	Kind      string
	Title     string
	Body      string
	ReadAt    *time.Time
	CreatedAt time.Time
}

type SupportTicket struct {
	ID        string
	TenantID  string
	OpenedBy  string
	Subject   string
	Body      string
	Status    string // open, in_progress, closed
	CreatedAt time.Time
	UpdatedAt time.Time
}
