package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alonsobrenes/Api-sub001/internal/auth"
	"github.com/alonsobrenes/Api-sub001/internal/authpw"
	"github.com/alonsobrenes/Api-sub001/internal/config"
	"github.com/alonsobrenes/Api-sub001/internal/export"
	"github.com/alonsobrenes/Api-sub001/internal/search"
	"github.com/alonsobrenes/Api-sub001/internal/store"
)

type fakeStore struct {
	getUserByEmailFn       func(context.Context, string) (store.User, error)
	getUserByIDFn          func(context.Context, string) (store.User, error)
	createUserFn           func(context.Context, store.User) error
	createTenantFn         func(context.Context, store.Tenant) error
	getPatientFn           func(context.Context, string, string) (store.Patient, error)
	insertPatientFn        func(context.Context, store.Patient) error
	getAttemptFn           func(context.Context, string, string) (store.TestAttempt, error)
	scoreAttemptFn         func(context.Context, string, string, float64, string) error
	ensureHashtagFn        func(context.Context, string, string, string) (string, error)
	assignHashtagFn        func(context.Context, string, string, string, string) error
	getTicketFn            func(context.Context, string, string) (store.SupportTicket, error)
	updateTicketStatusFn   func(context.Context, string, string, string) error
	insertNotificationFn   func(context.Context, store.Notification) error
	isAccessTokenRevokedFn func(context.Context, string) (bool, error)
}

func (f *fakeStore) CreateTenant(ctx context.Context, tenant store.Tenant) error {
	if f.createTenantFn != nil {
		return f.createTenantFn(ctx, tenant)
	}
	return nil
}
func (f *fakeStore) GetTenant(context.Context, string) (store.Tenant, error) {
	return store.Tenant{}, sql.ErrNoRows
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateUserVerificationToken(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) VerifyUserEmail(context.Context, string) error        { return nil }
func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }
func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) InsertPatient(ctx context.Context, p store.Patient) error {
	if f.insertPatientFn != nil {
		return f.insertPatientFn(ctx, p)
	}
	return nil
}
func (f *fakeStore) GetPatient(ctx context.Context, tenantID, patientID string) (store.Patient, error) {
	if f.getPatientFn != nil {
		return f.getPatientFn(ctx, tenantID, patientID)
	}
	return store.Patient{}, sql.ErrNoRows
}
func (f *fakeStore) ListPatients(context.Context, string, bool, int, int) ([]store.Patient, error) {
	return nil, nil
}
func (f *fakeStore) UpdatePatient(context.Context, store.Patient) error   { return nil }
func (f *fakeStore) ArchivePatient(context.Context, string, string) error { return nil }
func (f *fakeStore) InsertSession(context.Context, string, store.ClinicalSession) error {
	return nil
}
func (f *fakeStore) GetSession(context.Context, string, string) (store.ClinicalSession, error) {
	return store.ClinicalSession{}, sql.ErrNoRows
}
func (f *fakeStore) ListSessionsByPatient(context.Context, string, string) ([]store.ClinicalSession, error) {
	return nil, nil
}
func (f *fakeStore) UpdateSessionNotes(context.Context, string, string, string, string) error {
	return nil
}
func (f *fakeStore) UpdateSessionTranscript(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) UpdateSessionAIOpinion(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) EndSession(context.Context, string, string) error    { return nil }
func (f *fakeStore) DeleteSession(context.Context, string, string) error { return nil }
func (f *fakeStore) InsertInterview(context.Context, store.Interview) error {
	return nil
}
func (f *fakeStore) GetInterview(context.Context, string, string) (store.Interview, error) {
	return store.Interview{}, sql.ErrNoRows
}
func (f *fakeStore) ListInterviewsByPatient(context.Context, string, string) ([]store.Interview, error) {
	return nil, nil
}
func (f *fakeStore) UpdateInterviewSummary(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) CompleteInterview(context.Context, string, string) error { return nil }
func (f *fakeStore) ListTests(context.Context) ([]store.Test, error)         { return nil, nil }
func (f *fakeStore) InsertAttempt(context.Context, string, store.TestAttempt) error {
	return nil
}
func (f *fakeStore) GetAttempt(ctx context.Context, tenantID, attemptID string) (store.TestAttempt, error) {
	if f.getAttemptFn != nil {
		return f.getAttemptFn(ctx, tenantID, attemptID)
	}
	return store.TestAttempt{}, sql.ErrNoRows
}
func (f *fakeStore) ListAttemptsByPatient(context.Context, string, string) ([]store.TestAttempt, error) {
	return nil, nil
}
func (f *fakeStore) CompleteAttempt(context.Context, string, string) error { return nil }
func (f *fakeStore) ScoreAttempt(ctx context.Context, tenantID, attemptID string, score float64, report string) error {
	if f.scoreAttemptFn != nil {
		return f.scoreAttemptFn(ctx, tenantID, attemptID, score, report)
	}
	return nil
}
func (f *fakeStore) InsertAttachment(context.Context, string, store.Attachment) error {
	return nil
}
func (f *fakeStore) GetAttachment(context.Context, string, string) (store.Attachment, error) {
	return store.Attachment{}, sql.ErrNoRows
}
func (f *fakeStore) ListAttachmentsByPatient(context.Context, string, string) ([]store.Attachment, error) {
	return nil, nil
}
func (f *fakeStore) DeleteAttachment(context.Context, string, string) error { return nil }
func (f *fakeStore) InsertLabel(context.Context, store.Label) error         { return nil }
func (f *fakeStore) ListLabels(context.Context, string) ([]store.Label, error) {
	return nil, nil
}
func (f *fakeStore) DeleteLabel(context.Context, string, string) error { return nil }
func (f *fakeStore) AssignLabel(context.Context, string, string, string, string) error {
	return nil
}
func (f *fakeStore) UnassignLabel(context.Context, string, string, string, string) error {
	return nil
}
func (f *fakeStore) EnsureHashtag(ctx context.Context, tenantID, tag, id string) (string, error) {
	if f.ensureHashtagFn != nil {
		return f.ensureHashtagFn(ctx, tenantID, tag, id)
	}
	return id, nil
}
func (f *fakeStore) ListHashtags(context.Context, string) ([]store.Hashtag, error) {
	return nil, nil
}
func (f *fakeStore) AssignHashtag(ctx context.Context, tenantID, targetType, targetID, hashtagID string) error {
	if f.assignHashtagFn != nil {
		return f.assignHashtagFn(ctx, tenantID, targetType, targetID, hashtagID)
	}
	return nil
}
func (f *fakeStore) UnassignHashtag(context.Context, string, string, string, string) error {
	return nil
}
func (f *fakeStore) InsertBillingRecord(context.Context, store.BillingRecord) error {
	return nil
}
func (f *fakeStore) ListBillingRecords(context.Context, string, int, int) ([]store.BillingRecord, error) {
	return nil, nil
}
func (f *fakeStore) UpdateBillingStatus(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) InsertNotification(ctx context.Context, n store.Notification) error {
	if f.insertNotificationFn != nil {
		return f.insertNotificationFn(ctx, n)
	}
	return nil
}
func (f *fakeStore) ListNotifications(context.Context, string, string, bool, int) ([]store.Notification, error) {
	return nil, nil
}
func (f *fakeStore) MarkNotificationRead(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) InsertTicket(context.Context, store.SupportTicket) error { return nil }
func (f *fakeStore) GetTicket(ctx context.Context, tenantID, ticketID string) (store.SupportTicket, error) {
	if f.getTicketFn != nil {
		return f.getTicketFn(ctx, tenantID, ticketID)
	}
	return store.SupportTicket{}, sql.ErrNoRows
}
func (f *fakeStore) ListTickets(context.Context, string) ([]store.SupportTicket, error) {
	return nil, nil
}
func (f *fakeStore) UpdateTicketStatus(ctx context.Context, tenantID, ticketID, status string) error {
	if f.updateTicketStatusFn != nil {
		return f.updateTicketStatusFn(ctx, tenantID, ticketID, status)
	}
	return nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	mu      sync.Mutex
	records map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{records: make(map[string]store.User)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.records[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, tokenHash)
	return nil
}

type fakeSearcher struct {
	lastQuery   *search.Query
	lastPrefix  string
	lastLimit   int
	page        *search.Page
	suggestions *search.Suggestions
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) (*search.Page, error) {
	f.lastQuery = &q
	if f.page != nil {
		return f.page, nil
	}
	return &search.Page{Page: 1, PageSize: 20, Items: []search.ResultItem{}}, nil
}

func (f *fakeSearcher) Suggest(_ context.Context, tenantID, prefix string, limit int) *search.Suggestions {
	f.lastPrefix = prefix
	f.lastLimit = limit
	if f.suggestions != nil {
		return f.suggestions
	}
	return &search.Suggestions{Hashtags: []string{}, Labels: []search.LabelSuggestion{}, Entities: []search.EntitySuggestion{}}
}

func newTestService(fs *fakeStore, se searcher) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: time.Hour,
		},
		store:    fs,
		sessions: newFakeSessions(),
		accounts: authpw.NewService(fs),
		exporter: export.NewService(fs),
		search:   se,
	}
}

func testSession() Session {
	return Session{
		UserID:   "usr_1",
		TenantID: "ten_1",
		UserName: "Dr. Vega",
		Role:     "clinician",
	}
}

func domainErrFrom(t *testing.T, err error) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr
}

func TestSearchRejectsUnknownType(t *testing.T) {
	se := &fakeSearcher{}
	svc := newTestService(&fakeStore{}, se)

	_, err := svc.Search(context.Background(), testSession(), SearchInput{Types: []string{"patient", "bogus"}})
	domainErr := domainErrFrom(t, err)
	if domainErr.Status != http.StatusUnprocessableEntity || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error %d %s", domainErr.Status, domainErr.Code)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok || details["field"] != "types" || details["value"] != "bogus" {
		t.Fatalf("unexpected details %v", domainErr.Details)
	}
	if se.lastQuery != nil {
		t.Fatal("engine should not run for invalid input")
	}
}

func TestSearchTokenizesAndScopesQuery(t *testing.T) {
	se := &fakeSearcher{}
	svc := newTestService(&fakeStore{}, se)

	_, err := svc.Search(context.Background(), testSession(), SearchInput{
		Q:        "anxiety label:vip #panic",
		Types:    []string{"patient", "session"},
		From:     "2024-01-01",
		To:       "2024-02-01",
		Page:     2,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	q := se.lastQuery
	if q == nil {
		t.Fatal("engine did not run")
	}
	if q.TenantID != "ten_1" {
		t.Fatalf("expected tenant scoping, got %q", q.TenantID)
	}
	if q.FreeText != "anxiety" {
		t.Fatalf("free text = %q", q.FreeText)
	}
	if len(q.LabelCodes) != 1 || q.LabelCodes[0] != "vip" {
		t.Fatalf("label codes = %v", q.LabelCodes)
	}
	if len(q.Hashtags) != 1 || q.Hashtags[0] != "panic" {
		t.Fatalf("hashtags = %v", q.Hashtags)
	}
	if len(q.Types) != 2 || q.Types[0] != search.TypePatient || q.Types[1] != search.TypeSession {
		t.Fatalf("types = %v", q.Types)
	}
	if q.DateFrom == nil || !q.DateFrom.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date from = %v", q.DateFrom)
	}
	// The "to" date is inclusive at the API, exclusive inside the engine.
	if q.DateTo == nil || !q.DateTo.Equal(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date to = %v", q.DateTo)
	}
	if q.Page != 2 || q.PageSize != 10 {
		t.Fatalf("paging = %d/%d", q.Page, q.PageSize)
	}
}

func TestSearchRejectsMalformedDate(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeSearcher{})

	_, err := svc.Search(context.Background(), testSession(), SearchInput{From: "01/02/2024"})
	domainErr := domainErrFrom(t, err)
	details, _ := domainErr.Details.(map[string]any)
	if details["field"] != "from" {
		t.Fatalf("unexpected details %v", domainErr.Details)
	}
}

func TestSearchRejectsInvertedDateRange(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeSearcher{})

	_, err := svc.Search(context.Background(), testSession(), SearchInput{From: "2024-03-01", To: "2024-01-01"})
	domainErr := domainErrFrom(t, err)
	if domainErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", domainErr.Status)
	}
}

func TestIssueSessionCarriesTenantAndRole(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeSearcher{})

	session, err := svc.issueSession(context.Background(), store.User{
		ID:          "usr_9",
		TenantID:    "ten_9",
		DisplayName: "Dr. Okafor",
		Role:        "admin",
	})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	claims, err := auth.ParseToken([]byte("test-secret"), session.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Tenant != "ten_9" || claims.Role != "admin" || claims.Sub != "usr_9" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if session.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}

	saved, err := svc.sessions.LookupRefreshSession(context.Background(), auth.HashToken(session.RefreshToken))
	if err != nil {
		t.Fatalf("refresh session not saved: %v", err)
	}
	if saved.ID != "usr_9" {
		t.Fatalf("saved user = %q", saved.ID)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, TenantID: "ten_1", DisplayName: "Dr. Vega", Role: "clinician"}, nil
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	first, err := svc.issueSession(context.Background(), store.User{ID: "usr_1", TenantID: "ten_1", Role: "clinician"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("expected old refresh token to be revoked")
	}
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	deactivated := time.Now()
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, TenantID: "ten_1", Role: "clinician", DeactivatedAt: &deactivated}, nil
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	session, err := svc.issueSession(context.Background(), store.User{ID: "usr_1", TenantID: "ten_1", Role: "clinician"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionFromTokenRejectsRevokedJTI(t *testing.T) {
	fs := &fakeStore{
		isAccessTokenRevokedFn: func(context.Context, string) (bool, error) { return true, nil },
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, TenantID: "ten_1", Role: "clinician"}, nil
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	issued, err := svc.issueSession(context.Background(), store.User{ID: "usr_1", TenantID: "ten_1", Role: "clinician"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), issued.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCreatePatientValidatesNames(t *testing.T) {
	var inserted *store.Patient
	fs := &fakeStore{
		insertPatientFn: func(_ context.Context, p store.Patient) error {
			inserted = &p
			return nil
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	_, err := svc.CreatePatient(context.Background(), testSession(), PatientInput{FirstName: "Ana"})
	domainErr := domainErrFrom(t, err)
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %s", domainErr.Code)
	}

	payload, err := svc.CreatePatient(context.Background(), testSession(), PatientInput{
		FirstName: "  Ana ",
		LastName:  "Mora",
		BirthDate: "1990-06-15",
	})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	if inserted == nil {
		t.Fatal("patient not inserted")
	}
	if inserted.TenantID != "ten_1" {
		t.Fatalf("tenant = %q", inserted.TenantID)
	}
	if inserted.FirstName != "Ana" {
		t.Fatalf("first name = %q", inserted.FirstName)
	}
	if !strings.HasPrefix(inserted.ID, "pat_") {
		t.Fatalf("id = %q", inserted.ID)
	}
	if payload["firstName"] != "Ana" || payload["birthDate"] != "1990-06-15" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestScoreAttemptRequiresCompletion(t *testing.T) {
	fs := &fakeStore{
		getAttemptFn: func(_ context.Context, _, attemptID string) (store.TestAttempt, error) {
			return store.TestAttempt{ID: attemptID, Status: "in_progress"}, nil
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	_, err := svc.ScoreAttempt(context.Background(), testSession(), "att_1", ScoreInput{Score: 42})
	domainErr := domainErrFrom(t, err)
	if domainErr.Status != http.StatusConflict || domainErr.Code != "ATTEMPT_NOT_COMPLETED" {
		t.Fatalf("unexpected error %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestScoreAttemptRejectsOutOfRange(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeSearcher{})

	_, err := svc.ScoreAttempt(context.Background(), testSession(), "att_1", ScoreInput{Score: 120})
	domainErr := domainErrFrom(t, err)
	if domainErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", domainErr.Status)
	}
}

func TestAssignHashtagNormalizesTag(t *testing.T) {
	var ensured string
	fs := &fakeStore{
		ensureHashtagFn: func(_ context.Context, _, tag, id string) (string, error) {
			ensured = tag
			return id, nil
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	payload, err := svc.AssignHashtag(context.Background(), testSession(), "patient", "pat_1", "  #Anxiety ")
	if err != nil {
		t.Fatalf("assign hashtag: %v", err)
	}
	if ensured != "anxiety" {
		t.Fatalf("tag = %q", ensured)
	}
	if payload["tag"] != "anxiety" {
		t.Fatalf("payload tag = %v", payload["tag"])
	}

	_, err = svc.AssignHashtag(context.Background(), testSession(), "proposal", "pat_1", "#calm")
	domainErr := domainErrFrom(t, err)
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %s", domainErr.Code)
	}
}

func TestUpdateTicketStatusNotifiesOpener(t *testing.T) {
	var notified *store.Notification
	fs := &fakeStore{
		getTicketFn: func(_ context.Context, _, ticketID string) (store.SupportTicket, error) {
			return store.SupportTicket{ID: ticketID, OpenedBy: "usr_other", Subject: "Login broken", Status: "open"}, nil
		},
		insertNotificationFn: func(_ context.Context, n store.Notification) error {
			notified = &n
			return nil
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	payload, err := svc.UpdateTicketStatus(context.Background(), testSession(), "tck_1", "closed")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if payload["status"] != "closed" {
		t.Fatalf("status = %v", payload["status"])
	}
	if notified == nil {
		t.Fatal("opener was not notified")
	}
	if notified.UserID != "usr_other" || notified.Kind != "ticket_status" {
		t.Fatalf("unexpected notification %+v", notified)
	}

	_, err = svc.UpdateTicketStatus(context.Background(), testSession(), "tck_1", "resolved")
	domainErr := domainErrFrom(t, err)
	if domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %s", domainErr.Code)
	}
}

func TestUploadAttachmentWithoutStorage(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeSearcher{})

	_, err := svc.UploadAttachment(context.Background(), testSession(), "pat_1", "scan.pdf", "", "application/pdf", 4, strings.NewReader("data"))
	domainErr := domainErrFrom(t, err)
	if domainErr.Status != http.StatusServiceUnavailable || domainErr.Code != "STORAGE_UNAVAILABLE" {
		t.Fatalf("unexpected error %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs, &fakeSearcher{})

	_, err := svc.SignIn(context.Background(), "dr@example.com", "nope")
	domainErr := domainErrFrom(t, err)
	if domainErr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", domainErr.Status)
	}
}
