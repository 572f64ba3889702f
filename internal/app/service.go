package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/alonsobrenes/Api-sub001/internal/auth"
	"github.com/alonsobrenes/Api-sub001/internal/authpw"
	"github.com/alonsobrenes/Api-sub001/internal/blob"
	"github.com/alonsobrenes/Api-sub001/internal/config"
	"github.com/alonsobrenes/Api-sub001/internal/email"
	"github.com/alonsobrenes/Api-sub001/internal/export"
	"github.com/alonsobrenes/Api-sub001/internal/rbac"
	"github.com/alonsobrenes/Api-sub001/internal/search"
	"github.com/alonsobrenes/Api-sub001/internal/store"
	"github.com/alonsobrenes/Api-sub001/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	TenantID     string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type PatientInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	IDNumber  string `json:"idNumber"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birthDate"`
	Notes     string `json:"notes"`
}

type SessionInput struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
}

type InterviewInput struct {
	Title string `json:"title"`
}

type ScoreInput struct {
	Score  float64 `json:"score"`
	Report string  `json:"report"`
}

type LabelInput struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	ColorHex string `json:"colorHex"`
}

type BillingInput struct {
	PatientID   string `json:"patientId"`
	Concept     string `json:"concept"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

type TicketInput struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type SearchInput struct {
	Q        string
	Types    []string
	From     string
	To       string
	Page     int
	PageSize int
}

var allowedAssignTargets = map[string]struct{}{
	"patient":      {},
	"session":      {},
	"interview":    {},
	"test_attempt": {},
	"attachment":   {},
}

var allowedBillingStatus = map[string]struct{}{
	"pending": {},
	"paid":    {},
	"void":    {},
}

var allowedTicketStatus = map[string]struct{}{
	"open":        {},
	"in_progress": {},
	"closed":      {},
}

type dataStore interface {
	CreateTenant(context.Context, store.Tenant) error
	GetTenant(context.Context, string) (store.Tenant, error)
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserVerificationToken(context.Context, string, string, time.Time) error
	VerifyUserEmail(context.Context, string) error
	UpdateUserPassword(context.Context, string, string) error
	CreatePasswordReset(context.Context, string, string, time.Time) error
	GetPasswordReset(context.Context, string) (string, error)
	MarkPasswordResetUsed(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertPatient(context.Context, store.Patient) error
	GetPatient(context.Context, string, string) (store.Patient, error)
	ListPatients(context.Context, string, bool, int, int) ([]store.Patient, error)
	UpdatePatient(context.Context, store.Patient) error
	ArchivePatient(context.Context, string, string) error
	InsertSession(context.Context, string, store.ClinicalSession) error
	GetSession(context.Context, string, string) (store.ClinicalSession, error)
	ListSessionsByPatient(context.Context, string, string) ([]store.ClinicalSession, error)
	UpdateSessionNotes(context.Context, string, string, string, string) error
	UpdateSessionTranscript(context.Context, string, string, string) error
	UpdateSessionAIOpinion(context.Context, string, string, string) error
	EndSession(context.Context, string, string) error
	DeleteSession(context.Context, string, string) error
	InsertInterview(context.Context, store.Interview) error
	GetInterview(context.Context, string, string) (store.Interview, error)
	ListInterviewsByPatient(context.Context, string, string) ([]store.Interview, error)
	UpdateInterviewSummary(context.Context, string, string, string) error
	CompleteInterview(context.Context, string, string) error
	ListTests(context.Context) ([]store.Test, error)
	InsertAttempt(context.Context, string, store.TestAttempt) error
	GetAttempt(context.Context, string, string) (store.TestAttempt, error)
	ListAttemptsByPatient(context.Context, string, string) ([]store.TestAttempt, error)
	CompleteAttempt(context.Context, string, string) error
	ScoreAttempt(context.Context, string, string, float64, string) error
	InsertAttachment(context.Context, string, store.Attachment) error
	GetAttachment(context.Context, string, string) (store.Attachment, error)
	ListAttachmentsByPatient(context.Context, string, string) ([]store.Attachment, error)
	DeleteAttachment(context.Context, string, string) error
	InsertLabel(context.Context, store.Label) error
	ListLabels(context.Context, string) ([]store.Label, error)
	DeleteLabel(context.Context, string, string) error
	AssignLabel(context.Context, string, string, string, string) error
	UnassignLabel(context.Context, string, string, string, string) error
	EnsureHashtag(context.Context, string, string, string) (string, error)
	ListHashtags(context.Context, string) ([]store.Hashtag, error)
	AssignHashtag(context.Context, string, string, string, string) error
	UnassignHashtag(context.Context, string, string, string, string) error
	InsertBillingRecord(context.Context, store.BillingRecord) error
	ListBillingRecords(context.Context, string, int, int) ([]store.BillingRecord, error)
	UpdateBillingStatus(context.Context, string, string, string) error
	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, string, bool, int) ([]store.Notification, error)
	MarkNotificationRead(context.Context, string, string, string) error
	InsertTicket(context.Context, store.SupportTicket) error
	GetTicket(context.Context, string, string) (store.SupportTicket, error)
	ListTickets(context.Context, string) ([]store.SupportTicket, error)
	UpdateTicketStatus(context.Context, string, string, string) error
	Ping(ctx context.Context) error
}

// SessionStore keeps refresh sessions; Redis in production, Postgres as the
// fallback when no Redis is configured.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pgSessionStore struct {
	store *store.PostgresStore
}

func NewPostgresSessionStore(s *store.PostgresStore) SessionStore {
	return pgSessionStore{store: s}
}

func (p pgSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Page, error)
	Suggest(ctx context.Context, tenantID, prefix string, limit int) *search.Suggestions
}

type blobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

type exporter interface {
	ExportPatientSummary(ctx context.Context, tenantID, patientID string) (*export.Result, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	accounts *authpw.Service
	email    *email.Service
	blob     blobStore
	exporter exporter
	search   searcher
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, blobStore *blob.Store, emailSvc *email.Service) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: authpw.NewService(dataStore),
		email:    emailSvc,
		exporter: export.NewService(dataStore),
		search:   search.NewEngine(dataStore.DB()),
	}
	if blobStore != nil {
		svc.blob = blobStore
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- auth ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (map[string]any, error) {
	resp, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	payload := map[string]any{
		"userId":              resp.UserID,
		"tenantId":            resp.TenantID,
		"requiresEmailVerify": resp.RequiresEmailVerify,
	}
	if s.email != nil && s.email.IsConfigured() {
		verifyURL := s.cfg.AppBaseURL + "/verify-email?token=" + resp.VerificationToken
		if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, verifyURL); err != nil {
			log.Printf("send verification email: %v", err)
		}
	} else {
		// No mail transport in this environment; hand the token back so
		// the flow can complete.
		payload["verificationToken"] = resp.VerificationToken
	}
	return payload, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	resp, err := s.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "email address is not verified", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if err := s.accounts.VerifyEmail(ctx, token); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (map[string]any, error) {
	token, err := s.accounts.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"ok": true}
	if token == "" {
		return payload, nil
	}
	if s.email != nil && s.email.IsConfigured() {
		resetURL := s.cfg.AppBaseURL + "/reset-password?token=" + token
		if err := s.email.SendPasswordResetEmail(emailAddr, "", resetURL); err != nil {
			log.Printf("send password reset email: %v", err)
		}
	} else {
		payload["resetToken"] = token
	}
	return payload, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.accounts.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword}); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:    user.ID,
		Name:   user.DisplayName,
		Role:   string(rbac.Normalize(user.Role)),
		Tenant: user.TenantID,
		JTI:    jti,
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		TenantID:     user.TenantID,
		UserName:     user.DisplayName,
		Role:         string(rbac.Normalize(user.Role)),
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Pick up role or deactivation changes since the session was minted.
	current, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	if current.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, current)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		TenantID:  user.TenantID,
		UserName:  user.DisplayName,
		Role:      string(rbac.Normalize(user.Role)),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// --- search ---

func (s *Service) Search(ctx context.Context, session Session, input SearchInput) (*search.Page, error) {
	types := make([]search.EntityType, 0, len(input.Types))
	for _, raw := range input.Types {
		typ, ok := search.ParseType(raw)
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown entity type", map[string]any{
				"field": "types",
				"value": raw,
			})
		}
		types = append(types, typ)
	}

	from, err := parseDateParam(input.From, "from")
	if err != nil {
		return nil, err
	}
	to, err := parseDateParam(input.To, "to")
	if err != nil {
		return nil, err
	}
	if to != nil {
		// The bound arrives as an inclusive calendar date.
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from must not be after to", map[string]any{
			"field": "from",
		})
	}

	freeText, labelCodes, hashtags := search.Tokenize(input.Q)
	return s.search.Search(ctx, search.Query{
		TenantID:   session.TenantID,
		FreeText:   freeText,
		LabelCodes: labelCodes,
		Hashtags:   hashtags,
		Types:      types,
		DateFrom:   from,
		DateTo:     to,
		Page:       input.Page,
		PageSize:   input.PageSize,
	})
}

func (s *Service) Suggest(ctx context.Context, session Session, prefix string, limit int) *search.Suggestions {
	return s.search.Suggest(ctx, session.TenantID, prefix, limit)
}

func parseDateParam(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid date, expected YYYY-MM-DD", map[string]any{
			"field": field,
			"value": raw,
		})
	}
	return &t, nil
}

// --- patients ---

func (s *Service) CreatePatient(ctx context.Context, session Session, input PatientInput) (map[string]any, error) {
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if firstName == "" || lastName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "firstName and lastName are required", nil)
	}
	birthDate, err := parseDateParam(input.BirthDate, "birthDate")
	if err != nil {
		return nil, err
	}

	patient := store.Patient{
		ID:        util.NewID("pat"),
		TenantID:  session.TenantID,
		FirstName: firstName,
		LastName:  lastName,
		IDNumber:  strings.TrimSpace(input.IDNumber),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		BirthDate: birthDate,
		Notes:     input.Notes,
	}
	if err := s.store.InsertPatient(ctx, patient); err != nil {
		return nil, err
	}
	return patientPayload(patient), nil
}

func (s *Service) ListPatients(ctx context.Context, session Session, includeArchived bool, limit, offset int) ([]map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	patients, err := s.store.ListPatients(ctx, session.TenantID, includeArchived, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(patients))
	for _, patient := range patients {
		items = append(items, patientPayload(patient))
	}
	return items, nil
}

func (s *Service) GetPatient(ctx context.Context, session Session, patientID string) (map[string]any, error) {
	patient, err := s.store.GetPatient(ctx, session.TenantID, patientID)
	if err != nil {
		return nil, err
	}
	return patientPayload(patient), nil
}

func (s *Service) UpdatePatient(ctx context.Context, session Session, patientID string, input PatientInput) (map[string]any, error) {
	patient, err := s.store.GetPatient(ctx, session.TenantID, patientID)
	if err != nil {
		return nil, err
	}
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if firstName == "" || lastName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "firstName and lastName are required", nil)
	}
	birthDate, err := parseDateParam(input.BirthDate, "birthDate")
	if err != nil {
		return nil, err
	}

	patient.FirstName = firstName
	patient.LastName = lastName
	patient.IDNumber = strings.TrimSpace(input.IDNumber)
	patient.Email = strings.TrimSpace(input.Email)
	patient.Phone = strings.TrimSpace(input.Phone)
	patient.BirthDate = birthDate
	patient.Notes = input.Notes
	if err := s.store.UpdatePatient(ctx, patient); err != nil {
		return nil, err
	}
	return s.GetPatient(ctx, session, patientID)
}

func (s *Service) ArchivePatient(ctx context.Context, session Session, patientID string) error {
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return err
	}
	return s.store.ArchivePatient(ctx, session.TenantID, patientID)
}

// --- clinical sessions ---

func (s *Service) CreateSession(ctx context.Context, session Session, patientID string, input SessionInput) (map[string]any, error) {
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	cs := store.ClinicalSession{
		ID:        util.NewID("ses"),
		PatientID: patientID,
		Title:     strings.TrimSpace(input.Title),
		Notes:     input.Notes,
		StartedAt: time.Now(),
		CreatedBy: session.UserID,
	}
	if err := s.store.InsertSession(ctx, session.TenantID, cs); err != nil {
		return nil, err
	}
	return sessionPayload(cs), nil
}

func (s *Service) GetSession(ctx context.Context, session Session, sessionID string) (map[string]any, error) {
	cs, err := s.store.GetSession(ctx, session.TenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return sessionPayload(cs), nil
}

func (s *Service) ListSessions(ctx context.Context, session Session, patientID string) ([]map[string]any, error) {
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsByPatient(ctx, session.TenantID, patientID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(sessions))
	for _, cs := range sessions {
		items = append(items, sessionPayload(cs))
	}
	return items, nil
}

func (s *Service) UpdateSessionNotes(ctx context.Context, session Session, sessionID string, input SessionInput) (map[string]any, error) {
	if err := s.store.UpdateSessionNotes(ctx, session.TenantID, sessionID, strings.TrimSpace(input.Title), input.Notes); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, session, sessionID)
}

func (s *Service) UpdateSessionTranscript(ctx context.Context, session Session, sessionID, transcript string) (map[string]any, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "transcript is required", nil)
	}
	if err := s.store.UpdateSessionTranscript(ctx, session.TenantID, sessionID, transcript); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, session, sessionID)
}

func (s *Service) UpdateSessionAIOpinion(ctx context.Context, session Session, sessionID, opinion string) (map[string]any, error) {
	if strings.TrimSpace(opinion) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "opinion is required", nil)
	}
	if err := s.store.UpdateSessionAIOpinion(ctx, session.TenantID, sessionID, opinion); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, session, sessionID)
}

func (s *Service) EndSession(ctx context.Context, session Session, sessionID string) (map[string]any, error) {
	if err := s.store.EndSession(ctx, session.TenantID, sessionID); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, session, sessionID)
}

func (s *Service) DeleteSession(ctx context.Context, session Session, sessionID string) error {
	if _, err := s.store.GetSession(ctx, session.TenantID, sessionID); err != nil {
		return err
	}
	return s.store.DeleteSession(ctx, session.TenantID, sessionID)
}

// --- interviews ---

func (s *Service) CreateInterview(ctx context.Context, session Session, patientID string, input InterviewInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	interview := store.Interview{
		ID:        util.NewID("itv"),
		TenantID:  session.TenantID,
		PatientID: patientID,
		Title:     title,
		StartedAt: time.Now(),
	}
	if err := s.store.InsertInterview(ctx, interview); err != nil {
		return nil, err
	}
	return interviewPayload(interview), nil
}

func (s *Service) GetInterview(ctx context.Context, session Session, interviewID string) (map[string]any, error) {
	interview, err := s.store.GetInterview(ctx, session.TenantID, interviewID)
	if err != nil {
		return nil, err
	}
	return interviewPayload(interview), nil
}

func (s *Service) ListInterviews(ctx context.Context, session Session, patientID string) ([]map[string]any, error) {
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	interviews, err := s.store.ListInterviewsByPatient(ctx, session.TenantID, patientID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(interviews))
	for _, interview := range interviews {
		items = append(items, interviewPayload(interview))
	}
	return items, nil
}

func (s *Service) UpdateInterviewSummary(ctx context.Context, session Session, interviewID, summary string) (map[string]any, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "summary is required", nil)
	}
	if err := s.store.UpdateInterviewSummary(ctx, session.TenantID, interviewID, summary); err != nil {
		return nil, err
	}
	return s.GetInterview(ctx, session, interviewID)
}

func (s *Service) CompleteInterview(ctx context.Context, session Session, interviewID string) (map[string]any, error) {
	if err := s.store.CompleteInterview(ctx, session.TenantID, interviewID); err != nil {
		return nil, err
	}
	return s.GetInterview(ctx, session, interviewID)
}

// --- tests and attempts ---

func (s *Service) ListTests(ctx context.Context) ([]map[string]any, error) {
	tests, err := s.store.ListTests(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tests))
	for _, test := range tests {
		items = append(items, map[string]any{
			"id":            test.ID,
			"code":          test.Code,
			"name":          test.Name,
			"description":   test.Description,
			"questionCount": test.QuestionCount,
		})
	}
	return items, nil
}

func (s *Service) StartAttempt(ctx context.Context, session Session, patientID, testID string) (map[string]any, error) {
	if strings.TrimSpace(testID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "testId is required", nil)
	}
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	attempt := store.TestAttempt{
		ID:        util.NewID("att"),
		PatientID: patientID,
		TestID:    testID,
		Status:    "in_progress",
		StartedAt: time.Now(),
	}
	if err := s.store.InsertAttempt(ctx, session.TenantID, attempt); err != nil {
		return nil, err
	}
	return s.GetAttempt(ctx, session, attempt.ID)
}

func (s *Service) GetAttempt(ctx context.Context, session Session, attemptID string) (map[string]any, error) {
	attempt, err := s.store.GetAttempt(ctx, session.TenantID, attemptID)
	if err != nil {
		return nil, err
	}
	return attemptPayload(attempt), nil
}

func (s *Service) ListAttempts(ctx context.Context, session Session, patientID string) ([]map[string]any, error) {
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttemptsByPatient(ctx, session.TenantID, patientID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, attemptPayload(attempt))
	}
	return items, nil
}

func (s *Service) CompleteAttempt(ctx context.Context, session Session, attemptID string) (map[string]any, error) {
	if err := s.store.CompleteAttempt(ctx, session.TenantID, attemptID); err != nil {
		return nil, err
	}
	return s.GetAttempt(ctx, session, attemptID)
}

func (s *Service) ScoreAttempt(ctx context.Context, session Session, attemptID string, input ScoreInput) (map[string]any, error) {
	if input.Score < 0 || input.Score > 100 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "score must be between 0 and 100", nil)
	}
	attempt, err := s.store.GetAttempt(ctx, session.TenantID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.CompletedAt == nil {
		return nil, domainError(http.StatusConflict, "ATTEMPT_NOT_COMPLETED", "attempt must be completed before scoring", nil)
	}
	if err := s.store.ScoreAttempt(ctx, session.TenantID, attemptID, input.Score, input.Report); err != nil {
		return nil, err
	}
	return s.GetAttempt(ctx, session, attemptID)
}

// --- attachments ---

func (s *Service) UploadAttachment(ctx context.Context, session Session, patientID, fileName, description, contentType string, size int64, r io.Reader) (map[string]any, error) {
	if s.blob == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "object storage is not configured", nil)
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file name is required", nil)
	}
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}

	attachment := store.Attachment{
		ID:          util.NewID("atc"),
		PatientID:   patientID,
		FileName:    fileName,
		Description: strings.TrimSpace(description),
		ContentType: contentType,
		SizeBytes:   size,
		UploadedBy:  session.UserID,
	}
	attachment.ObjectKey = blob.ObjectKey(session.TenantID, attachment.ID, fileName)

	if err := s.blob.Put(ctx, attachment.ObjectKey, r, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertAttachment(ctx, session.TenantID, attachment); err != nil {
		// Orphaned objects are cheaper than dangling rows.
		_ = s.blob.Remove(ctx, attachment.ObjectKey)
		return nil, err
	}
	return attachmentPayload(attachment), nil
}

func (s *Service) ListAttachments(ctx context.Context, session Session, patientID string) ([]map[string]any, error) {
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachmentsByPatient(ctx, session.TenantID, patientID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attachments))
	for _, attachment := range attachments {
		items = append(items, attachmentPayload(attachment))
	}
	return items, nil
}

func (s *Service) DownloadAttachment(ctx context.Context, session Session, attachmentID string) (store.Attachment, io.ReadCloser, error) {
	attachment, err := s.store.GetAttachment(ctx, session.TenantID, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	if s.blob == nil {
		return store.Attachment{}, nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "object storage is not configured", nil)
	}
	body, err := s.blob.Get(ctx, attachment.ObjectKey)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	return attachment, body, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, session Session, attachmentID string) error {
	attachment, err := s.store.GetAttachment(ctx, session.TenantID, attachmentID)
	if err != nil {
		return err
	}
	if s.blob != nil {
		if err := s.blob.Remove(ctx, attachment.ObjectKey); err != nil {
			log.Printf("remove attachment object %s: %v", attachment.ObjectKey, err)
		}
	}
	return s.store.DeleteAttachment(ctx, session.TenantID, attachmentID)
}

// --- labels and hashtags ---

func (s *Service) CreateLabel(ctx context.Context, session Session, input LabelInput) (map[string]any, error) {
	code := strings.ToLower(strings.TrimSpace(input.Code))
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "code and name are required", nil)
	}
	if strings.ContainsAny(code, " \t") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "code must not contain whitespace", nil)
	}
	label := store.Label{
		ID:       util.NewID("lbl"),
		TenantID: session.TenantID,
		Code:     code,
		Name:     name,
		ColorHex: strings.TrimSpace(input.ColorHex),
	}
	if err := s.store.InsertLabel(ctx, label); err != nil {
		return nil, err
	}
	return labelPayload(label), nil
}

func (s *Service) ListLabels(ctx context.Context, session Session) ([]map[string]any, error) {
	labels, err := s.store.ListLabels(ctx, session.TenantID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(labels))
	for _, label := range labels {
		items = append(items, labelPayload(label))
	}
	return items, nil
}

func (s *Service) DeleteLabel(ctx context.Context, session Session, labelID string) error {
	return s.store.DeleteLabel(ctx, session.TenantID, labelID)
}

func (s *Service) AssignLabel(ctx context.Context, session Session, targetType, targetID, labelID string) error {
	if _, ok := allowedAssignTargets[targetType]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid target type", map[string]any{"field": "targetType"})
	}
	return s.store.AssignLabel(ctx, session.TenantID, targetType, targetID, labelID)
}

func (s *Service) UnassignLabel(ctx context.Context, session Session, targetType, targetID, labelID string) error {
	if _, ok := allowedAssignTargets[targetType]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid target type", map[string]any{"field": "targetType"})
	}
	return s.store.UnassignLabel(ctx, session.TenantID, targetType, targetID, labelID)
}

func (s *Service) ListHashtags(ctx context.Context, session Session) ([]map[string]any, error) {
	hashtags, err := s.store.ListHashtags(ctx, session.TenantID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(hashtags))
	for _, hashtag := range hashtags {
		items = append(items, map[string]any{
			"id":  hashtag.ID,
			"tag": hashtag.Tag,
		})
	}
	return items, nil
}

func (s *Service) AssignHashtag(ctx context.Context, session Session, targetType, targetID, tag string) (map[string]any, error) {
	if _, ok := allowedAssignTargets[targetType]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid target type", map[string]any{"field": "targetType"})
	}
	tag = normalizeHashtag(tag)
	if tag == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tag is required", nil)
	}
	hashtagID, err := s.store.EnsureHashtag(ctx, session.TenantID, tag, util.NewID("tag"))
	if err != nil {
		return nil, err
	}
	if err := s.store.AssignHashtag(ctx, session.TenantID, targetType, targetID, hashtagID); err != nil {
		return nil, err
	}
	return map[string]any{"id": hashtagID, "tag": tag}, nil
}

func (s *Service) UnassignHashtag(ctx context.Context, session Session, targetType, targetID, hashtagID string) error {
	if _, ok := allowedAssignTargets[targetType]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid target type", map[string]any{"field": "targetType"})
	}
	return s.store.UnassignHashtag(ctx, session.TenantID, targetType, targetID, hashtagID)
}

func normalizeHashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "#")
	return strings.ToLower(tag)
}

// --- billing ---

func (s *Service) CreateBillingRecord(ctx context.Context, session Session, input BillingInput) (map[string]any, error) {
	concept := strings.TrimSpace(input.Concept)
	if concept == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "concept is required", nil)
	}
	if input.AmountCents <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "amountCents must be positive", nil)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	if input.PatientID != "" {
		if _, err := s.store.GetPatient(ctx, session.TenantID, input.PatientID); err != nil {
			return nil, err
		}
	}
	record := store.BillingRecord{
		ID:          util.NewID("bil"),
		TenantID:    session.TenantID,
		PatientID:   input.PatientID,
		Concept:     concept,
		AmountCents: input.AmountCents,
		Currency:    currency,
		Status:      "pending",
		IssuedAt:    time.Now(),
	}
	if err := s.store.InsertBillingRecord(ctx, record); err != nil {
		return nil, err
	}
	return billingPayload(record), nil
}

func (s *Service) ListBillingRecords(ctx context.Context, session Session, limit, offset int) ([]map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.store.ListBillingRecords(ctx, session.TenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, billingPayload(record))
	}
	return items, nil
}

func (s *Service) UpdateBillingStatus(ctx context.Context, session Session, recordID, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if _, ok := allowedBillingStatus[status]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of pending, paid, void", nil)
	}
	return s.store.UpdateBillingStatus(ctx, session.TenantID, recordID, status)
}

// --- notifications ---

func (s *Service) ListNotifications(ctx context.Context, session Session, unreadOnly bool, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	notifications, err := s.store.ListNotifications(ctx, session.TenantID, session.UserID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, map[string]any{
			"id":        n.ID,
			"kind":      n.Kind,
			"title":     n.Title,
			"body":      n.Body,
			"readAt":    formatTimePtr(n.ReadAt),
			"createdAt": n.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, session.TenantID, session.UserID, notificationID)
}

// --- support tickets ---

func (s *Service) OpenTicket(ctx context.Context, session Session, input TicketInput) (map[string]any, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "subject is required", nil)
	}
	ticket := store.SupportTicket{
		ID:       util.NewID("tck"),
		TenantID: session.TenantID,
		OpenedBy: session.UserID,
		Subject:  subject,
		Body:     input.Body,
		Status:   "open",
	}
	if err := s.store.InsertTicket(ctx, ticket); err != nil {
		return nil, err
	}
	return ticketPayload(ticket), nil
}

func (s *Service) ListTickets(ctx context.Context, session Session) ([]map[string]any, error) {
	tickets, err := s.store.ListTickets(ctx, session.TenantID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tickets))
	for _, ticket := range tickets {
		items = append(items, ticketPayload(ticket))
	}
	return items, nil
}

func (s *Service) UpdateTicketStatus(ctx context.Context, session Session, ticketID, status string) (map[string]any, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if _, ok := allowedTicketStatus[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of open, in_progress, closed", nil)
	}
	ticket, err := s.store.GetTicket(ctx, session.TenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTicketStatus(ctx, session.TenantID, ticketID, status); err != nil {
		return nil, err
	}
	if ticket.OpenedBy != "" && ticket.OpenedBy != session.UserID {
		if err := s.store.InsertNotification(ctx, store.Notification{
			ID:       util.NewID("ntf"),
			TenantID: session.TenantID,
			UserID:   ticket.OpenedBy,
			Kind:     "ticket_status",
			Title:    "Support ticket updated",
			Body:     ticket.Subject + " is now " + status,
		}); err != nil {
			log.Printf("notify ticket status: %v", err)
		}
	}
	ticket.Status = status
	return ticketPayload(ticket), nil
}

// --- export ---

func (s *Service) ExportPatientSummary(ctx context.Context, session Session, patientID string) (*export.Result, error) {
	if _, err := s.store.GetPatient(ctx, session.TenantID, patientID); err != nil {
		return nil, err
	}
	return s.exporter.ExportPatientSummary(ctx, session.TenantID, patientID)
}

// --- payload helpers ---

func patientPayload(p store.Patient) map[string]any {
	payload := map[string]any{
		"id":        p.ID,
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"idNumber":  p.IDNumber,
		"email":     p.Email,
		"phone":     p.Phone,
		"notes":     p.Notes,
		"archived":  p.ArchivedAt != nil,
	}
	if p.BirthDate != nil {
		payload["birthDate"] = p.BirthDate.Format("2006-01-02")
	}
	if !p.UpdatedAt.IsZero() {
		payload["updatedAt"] = p.UpdatedAt.Format(time.RFC3339)
	}
	return payload
}

func sessionPayload(cs store.ClinicalSession) map[string]any {
	return map[string]any{
		"id":         cs.ID,
		"patientId":  cs.PatientID,
		"title":      cs.Title,
		"notes":      cs.Notes,
		"transcript": cs.Transcript,
		"aiOpinion":  cs.AIOpinion,
		"startedAt":  cs.StartedAt.Format(time.RFC3339),
		"endedAt":    formatTimePtr(cs.EndedAt),
		"createdBy":  cs.CreatedBy,
	}
}

func interviewPayload(iv store.Interview) map[string]any {
	return map[string]any{
		"id":          iv.ID,
		"patientId":   iv.PatientID,
		"title":       iv.Title,
		"summary":     iv.Summary,
		"startedAt":   iv.StartedAt.Format(time.RFC3339),
		"completedAt": formatTimePtr(iv.CompletedAt),
	}
}

func attemptPayload(a store.TestAttempt) map[string]any {
	payload := map[string]any{
		"id":          a.ID,
		"patientId":   a.PatientID,
		"testId":      a.TestID,
		"testName":    a.TestName,
		"status":      a.Status,
		"report":      a.Report,
		"startedAt":   a.StartedAt.Format(time.RFC3339),
		"completedAt": formatTimePtr(a.CompletedAt),
		"scoredAt":    formatTimePtr(a.ScoredAt),
	}
	if a.Score != nil {
		payload["score"] = *a.Score
	}
	return payload
}

func attachmentPayload(a store.Attachment) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"patientId":   a.PatientID,
		"fileName":    a.FileName,
		"description": a.Description,
		"contentType": a.ContentType,
		"sizeBytes":   a.SizeBytes,
		"uploadedBy":  a.UploadedBy,
		"uploadedAt":  a.UploadedAt.Format(time.RFC3339),
	}
}

func labelPayload(l store.Label) map[string]any {
	return map[string]any{
		"id":       l.ID,
		"code":     l.Code,
		"name":     l.Name,
		"colorHex": l.ColorHex,
	}
}

func billingPayload(b store.BillingRecord) map[string]any {
	payload := map[string]any{
		"id":          b.ID,
		"concept":     b.Concept,
		"amountCents": b.AmountCents,
		"currency":    b.Currency,
		"status":      b.Status,
		"issuedAt":    b.IssuedAt.Format(time.RFC3339),
		"paidAt":      formatTimePtr(b.PaidAt),
	}
	if b.PatientID != "" {
		payload["patientId"] = b.PatientID
	}
	return payload
}

func ticketPayload(t store.SupportTicket) map[string]any {
	return map[string]any{
		"id":       t.ID,
		"openedBy": t.OpenedBy,
		"subject":  t.Subject,
		"body":     t.Body,
		"status":   t.Status,
	}
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
