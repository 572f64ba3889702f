package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Tenants & users ──

func (s *PostgresStore) CreateTenant(ctx context.Context, tenant Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name) VALUES ($1, $2)
	`, tenant.ID, tenant.Name)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, tenantID string) (Tenant, error) {
	var tenant Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM tenants WHERE id=$1
	`, tenantID).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt)
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return tenant, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, display_name, email, password_hash, role, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.TenantID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, tenant_id, display_name, email, password_hash, role, is_email_verified, deactivated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.TenantID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified, &user.DeactivatedAt)
	return user, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ── Refresh sessions (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.display_name, u.email, u.password_hash, u.role, u.is_email_verified, u.deactivated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	row := s.db.QueryRowContext(ctx, query, tokenHash)
	return scanUser(row)
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ── Patients ──

const patientColumns = `id, tenant_id, first_name, last_name, id_number, email, phone, birth_date, notes, archived_at, created_at, updated_at`

func scanPatient(row interface{ Scan(...any) error }) (Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.IDNumber, &p.Email, &p.Phone, &p.BirthDate, &p.Notes, &p.ArchivedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) InsertPatient(ctx context.Context, p Patient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (id, tenant_id, first_name, last_name, id_number, email, phone, birth_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.TenantID, p.FirstName, p.LastName, p.IDNumber, p.Email, p.Phone, p.BirthDate, p.Notes)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPatient(ctx context.Context, tenantID, patientID string) (Patient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+patientColumns+` FROM patients WHERE tenant_id=$1 AND id=$2
	`, tenantID, patientID)
	return scanPatient(row)
}

func (s *PostgresStore) ListPatients(ctx context.Context, tenantID string, includeArchived bool, limit, offset int) ([]Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE tenant_id=$1`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY last_name, first_name LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	items := make([]Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdatePatient(ctx context.Context, p Patient) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE patients
		SET first_name=$3, last_name=$4, id_number=$5, email=$6, phone=$7, birth_date=$8, notes=$9, updated_at=NOW()
		WHERE tenant_id=$1 AND id=$2
	`, p.TenantID, p.ID, p.FirstName, p.LastName, p.IDNumber, p.Email, p.Phone, p.BirthDate, p.Notes)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) ArchivePatient(ctx context.Context, tenantID, patientID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE patients SET archived_at=NOW(), updated_at=NOW() WHERE tenant_id=$1 AND id=$2 AND archived_at IS NULL
	`, tenantID, patientID)
	if err != nil {
		return fmt.Errorf("archive patient: %w", err)
	}
	return requireRow(result)
}

// patientBelongs reports whether the patient exists inside the tenant. Used
// by child-entity operations whose tables carry no tenant column.
func (s *PostgresStore) patientBelongs(ctx context.Context, tenantID, patientID string) error {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM patients WHERE tenant_id=$1 AND id=$2)
	`, tenantID, patientID).Scan(&ok)
	if err != nil {
		return fmt.Errorf("check patient tenancy: %w", err)
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

// ── Clinical sessions ──

const sessionColumns = `s.id, s.patient_id, s.title, s.notes, s.transcript, s.ai_opinion, s.transcript_updated_at, s.ai_opinion_updated_at, s.started_at, s.ended_at, s.created_by, s.created_at`

func scanSession(row interface{ Scan(...any) error }) (ClinicalSession, error) {
	var cs ClinicalSession
	err := row.Scan(&cs.ID, &cs.PatientID, &cs.Title, &cs.Notes, &cs.Transcript, &cs.AIOpinion, &cs.TranscriptUpdatedAt, &cs.AIOpinionUpdatedAt, &cs.StartedAt, &cs.EndedAt, &cs.CreatedBy, &cs.CreatedAt)
	return cs, err
}

func (s *PostgresStore) InsertSession(ctx context.Context, tenantID string, cs ClinicalSession) error {
	if err := s.patientBelongs(ctx, tenantID, cs.PatientID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clinical_sessions (id, patient_id, title, notes, started_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cs.ID, cs.PatientID, cs.Title, cs.Notes, cs.StartedAt, cs.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, tenantID, sessionID string) (ClinicalSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM clinical_sessions s
		JOIN patients p ON p.id = s.patient_id
		WHERE p.tenant_id=$1 AND s.id=$2
	`, tenantID, sessionID)
	return scanSession(row)
}

func (s *PostgresStore) ListSessionsByPatient(ctx context.Context, tenantID, patientID string) ([]ClinicalSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM clinical_sessions s
		JOIN patients p ON p.id = s.patient_id
		WHERE p.tenant_id=$1 AND s.patient_id=$2
		ORDER BY s.started_at DESC
	`, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	items := make([]ClinicalSession, 0)
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		items = append(items, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateSessionNotes(ctx context.Context, tenantID, sessionID, title, notes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clinical_sessions s SET title=$3, notes=$4
		FROM patients p
		WHERE p.id = s.patient_id AND p.tenant_id=$1 AND s.id=$2
	`, tenantID, sessionID, title, notes)
	if err != nil {
		return fmt.Errorf("update session notes: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateSessionTranscript(ctx context.Context, tenantID, sessionID, transcript string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clinical_sessions s SET transcript=$3, transcript_updated_at=NOW()
		FROM patients p
		WHERE p.id = s.patient_id AND p.tenant_id=$1 AND s.id=$2
	`, tenantID, sessionID, transcript)
	if err != nil {
		return fmt.Errorf("update session transcript: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateSessionAIOpinion(ctx context.Context, tenantID, sessionID, opinion string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clinical_sessions s SET ai_opinion=$3, ai_opinion_updated_at=NOW()
		FROM patients p
		WHERE p.id = s.patient_id AND p.tenant_id=$1 AND s.id=$2
	`, tenantID, sessionID, opinion)
	if err != nil {
		return fmt.Errorf("update session ai opinion: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) EndSession(ctx context.Context, tenantID, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clinical_sessions s SET ended_at=NOW()
		FROM patients p
		WHERE p.id = s.patient_id AND p.tenant_id=$1 AND s.id=$2 AND s.ended_at IS NULL
	`, tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, tenantID, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM clinical_sessions s
		USING patients p
		WHERE p.id = s.patient_id AND p.tenant_id=$1 AND s.id=$2
	`, tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(result)
}

// ── Interviews ──

const interviewColumns = `id, tenant_id, patient_id, title, summary, started_at, completed_at, summary_updated_at, created_at`

func scanInterview(row interface{ Scan(...any) error }) (Interview, error) {
	var iv Interview
	err := row.Scan(&iv.ID, &iv.TenantID, &iv.PatientID, &iv.Title, &iv.Summary, &iv.StartedAt, &iv.CompletedAt, &iv.SummaryUpdatedAt, &iv.CreatedAt)
	return iv, err
}

func (s *PostgresStore) InsertInterview(ctx context.Context, iv Interview) error {
	if err := s.patientBelongs(ctx, iv.TenantID, iv.PatientID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interviews (id, tenant_id, patient_id, title, summary, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, iv.ID, iv.TenantID, iv.PatientID, iv.Title, iv.Summary, iv.StartedAt)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInterview(ctx context.Context, tenantID, interviewID string) (Interview, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+interviewColumns+` FROM interviews WHERE tenant_id=$1 AND id=$2
	`, tenantID, interviewID)
	return scanInterview(row)
}

func (s *PostgresStore) ListInterviewsByPatient(ctx context.Context, tenantID, patientID string) ([]Interview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+interviewColumns+` FROM interviews
		WHERE tenant_id=$1 AND patient_id=$2
		ORDER BY started_at DESC
	`, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	items := make([]Interview, 0)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		items = append(items, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interviews: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateInterviewSummary(ctx context.Context, tenantID, interviewID, summary string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interviews SET summary=$3, summary_updated_at=NOW() WHERE tenant_id=$1 AND id=$2
	`, tenantID, interviewID, summary)
	if err != nil {
		return fmt.Errorf("update interview summary: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) CompleteInterview(ctx context.Context, tenantID, interviewID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interviews SET completed_at=NOW() WHERE tenant_id=$1 AND id=$2 AND completed_at IS NULL
	`, tenantID, interviewID)
	if err != nil {
		return fmt.Errorf("complete interview: %w", err)
	}
	return requireRow(result)
}

// ── Tests & attempts ──

func (s *PostgresStore) ListTests(ctx context.Context) ([]Test, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, description, question_count FROM tests ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	items := make([]Test, 0)
	for rows.Next() {
		var tst Test
		if err := rows.Scan(&tst.ID, &tst.Code, &tst.Name, &tst.Description, &tst.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		items = append(items, tst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return items, nil
}

const attemptColumns = `a.id, a.patient_id, a.test_id, t.name, a.status, a.score, a.report, a.started_at, a.completed_at, a.scored_at`

func scanAttempt(row interface{ Scan(...any) error }) (TestAttempt, error) {
	var ta TestAttempt
	err := row.Scan(&ta.ID, &ta.PatientID, &ta.TestID, &ta.TestName, &ta.Status, &ta.Score, &ta.Report, &ta.StartedAt, &ta.CompletedAt, &ta.ScoredAt)
	return ta, err
}

func (s *PostgresStore) InsertAttempt(ctx context.Context, tenantID string, ta TestAttempt) error {
	if err := s.patientBelongs(ctx, tenantID, ta.PatientID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_attempts (id, patient_id, test_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ta.ID, ta.PatientID, ta.TestID, ta.Status, ta.StartedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttempt(ctx context.Context, tenantID, attemptID string) (TestAttempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM test_attempts a
		JOIN tests t ON t.id = a.test_id
		JOIN patients p ON p.id = a.patient_id
		WHERE p.tenant_id=$1 AND a.id=$2
	`, tenantID, attemptID)
	return scanAttempt(row)
}

func (s *PostgresStore) ListAttemptsByPatient(ctx context.Context, tenantID, patientID string) ([]TestAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM test_attempts a
		JOIN tests t ON t.id = a.test_id
		JOIN patients p ON p.id = a.patient_id
		WHERE p.tenant_id=$1 AND a.patient_id=$2
		ORDER BY a.started_at DESC
	`, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	items := make([]TestAttempt, 0)
	for rows.Next() {
		ta, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		items = append(items, ta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CompleteAttempt(ctx context.Context, tenantID, attemptID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE test_attempts a SET status='completed', completed_at=NOW()
		FROM patients p
		WHERE p.id = a.patient_id AND p.tenant_id=$1 AND a.id=$2 AND a.completed_at IS NULL
	`, tenantID, attemptID)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) ScoreAttempt(ctx context.Context, tenantID, attemptID string, score float64, report string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE test_attempts a SET status='scored', score=$3, report=$4, scored_at=NOW()
		FROM patients p
		WHERE p.id = a.patient_id AND p.tenant_id=$1 AND a.id=$2
	`, tenantID, attemptID, score, report)
	if err != nil {
		return fmt.Errorf("score attempt: %w", err)
	}
	return requireRow(result)
}

// ── Attachments ──

const attachmentColumns = `a.id, a.patient_id, a.file_name, a.description, a.content_type, a.size_bytes, a.object_key, a.uploaded_by, a.uploaded_at`

func scanAttachment(row interface{ Scan(...any) error }) (Attachment, error) {
	var at Attachment
	err := row.Scan(&at.ID, &at.PatientID, &at.FileName, &at.Description, &at.ContentType, &at.SizeBytes, &at.ObjectKey, &at.UploadedBy, &at.UploadedAt)
	return at, err
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, tenantID string, at Attachment) error {
	if err := s.patientBelongs(ctx, tenantID, at.PatientID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, patient_id, file_name, description, content_type, size_bytes, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, at.ID, at.PatientID, at.FileName, at.Description, at.ContentType, at.SizeBytes, at.ObjectKey, at.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, tenantID, attachmentID string) (Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments a
		JOIN patients p ON p.id = a.patient_id
		WHERE p.tenant_id=$1 AND a.id=$2
	`, tenantID, attachmentID)
	return scanAttachment(row)
}

func (s *PostgresStore) ListAttachmentsByPatient(ctx context.Context, tenantID, patientID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments a
		JOIN patients p ON p.id = a.patient_id
		WHERE p.tenant_id=$1 AND a.patient_id=$2
		ORDER BY a.uploaded_at DESC
	`, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		at, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, tenantID, attachmentID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM attachments a
		USING patients p
		WHERE p.id = a.patient_id AND p.tenant_id=$1 AND a.id=$2
	`, tenantID, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return requireRow(result)
}

// ── Labels ──

func (s *PostgresStore) InsertLabel(ctx context.Context, label Label) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO labels (id, tenant_id, code, name, color_hex)
		VALUES ($1, $2, $3, $4, $5)
	`, label.ID, label.TenantID, label.Code, label.Name, label.ColorHex)
	if err != nil {
		return fmt.Errorf("insert label: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLabels(ctx context.Context, tenantID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, code, name, color_hex, created_at FROM labels
		WHERE tenant_id=$1 ORDER BY code
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Code, &l.Name, &l.ColorHex, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteLabel(ctx context.Context, tenantID, labelID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM labels WHERE tenant_id=$1 AND id=$2`, tenantID, labelID)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) AssignLabel(ctx context.Context, tenantID, targetType, targetID, labelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO label_assignments (tenant_id, target_type, target_id, label_id)
		SELECT $1, $2, $3, id FROM labels WHERE tenant_id=$1 AND id=$4
		ON CONFLICT DO NOTHING
	`, tenantID, targetType, targetID, labelID)
	if err != nil {
		return fmt.Errorf("assign label: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnassignLabel(ctx context.Context, tenantID, targetType, targetID, labelID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM label_assignments
		WHERE tenant_id=$1 AND target_type=$2 AND target_id=$3 AND label_id=$4
	`, tenantID, targetType, targetID, labelID)
	if err != nil {
		return fmt.Errorf("unassign label: %w", err)
	}
	return nil
}

// ── Hashtags ──

// EnsureHashtag inserts the tag if new and returns its id either way.
func (s *PostgresStore) EnsureHashtag(ctx context.Context, tenantID, tag, id string) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO hashtags (id, tenant_id, tag) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, tag) DO UPDATE SET tag=EXCLUDED.tag
		RETURNING id
	`, id, tenantID, tag).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("ensure hashtag: %w", err)
	}
	return existing, nil
}

func (s *PostgresStore) ListHashtags(ctx context.Context, tenantID string) ([]Hashtag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, tag, created_at FROM hashtags WHERE tenant_id=$1 ORDER BY tag
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list hashtags: %w", err)
	}
	defer rows.Close()

	items := make([]Hashtag, 0)
	for rows.Next() {
		var h Hashtag
		if err := rows.Scan(&h.ID, &h.TenantID, &h.Tag, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hashtag: %w", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hashtags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AssignHashtag(ctx context.Context, tenantID, targetType, targetID, hashtagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hashtag_assignments (tenant_id, target_type, target_id, hashtag_id)
		SELECT $1, $2, $3, id FROM hashtags WHERE tenant_id=$1 AND id=$4
		ON CONFLICT DO NOTHING
	`, tenantID, targetType, targetID, hashtagID)
	if err != nil {
		return fmt.Errorf("assign hashtag: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnassignHashtag(ctx context.Context, tenantID, targetType, targetID, hashtagID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM hashtag_assignments
		WHERE tenant_id=$1 AND target_type=$2 AND target_id=$3 AND hashtag_id=$4
	`, tenantID, targetType, targetID, hashtagID)
	if err != nil {
		return fmt.Errorf("unassign hashtag: %w", err)
	}
	return nil
}

// ── Billing records ──

func (s *PostgresStore) InsertBillingRecord(ctx context.Context, rec BillingRecord) error {
	if err := s.patientBelongs(ctx, rec.TenantID, rec.PatientID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_records (id, tenant_id, patient_id, concept, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.TenantID, rec.PatientID, rec.Concept, rec.AmountCents, rec.Currency, rec.Status)
	if err != nil {
		return fmt.Errorf("insert billing record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBillingRecords(ctx context.Context, tenantID string, limit, offset int) ([]BillingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, patient_id, concept, amount_cents, currency, status, issued_at, paid_at
		FROM billing_records WHERE tenant_id=$1
		ORDER BY issued_at DESC LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list billing records: %w", err)
	}
	defer rows.Close()

	items := make([]BillingRecord, 0)
	for rows.Next() {
		var rec BillingRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.PatientID, &rec.Concept, &rec.AmountCents, &rec.Currency, &rec.Status, &rec.IssuedAt, &rec.PaidAt); err != nil {
			return nil, fmt.Errorf("scan billing record: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billing records: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateBillingStatus(ctx context.Context, tenantID, recordID, status string) error {
	query := `UPDATE billing_records SET status=$3 WHERE tenant_id=$1 AND id=$2`
	if status == "paid" {
		query = `UPDATE billing_records SET status=$3, paid_at=NOW() WHERE tenant_id=$1 AND id=$2`
	}
	result, err := s.db.ExecContext(ctx, query, tenantID, recordID, status)
	if err != nil {
		return fmt.Errorf("update billing status: %w", err)
	}
	return requireRow(result)
}

// ── Notifications ──

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, tenant_id, user_id, kind, title, body)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.TenantID, n.UserID, n.Kind, n.Title, n.Body)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	query := `
		SELECT id, tenant_id, user_id, kind, title, body, read_at, created_at
		FROM notifications WHERE tenant_id=$1 AND user_id=$2`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, tenantID, userID, notificationID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at=NOW()
		WHERE tenant_id=$1 AND user_id=$2 AND id=$3 AND read_at IS NULL
	`, tenantID, userID, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireRow(result)
}

// ── Support tickets ──

func (s *PostgresStore) InsertTicket(ctx context.Context, tk SupportTicket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO support_tickets (id, tenant_id, opened_by, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tk.ID, tk.TenantID, tk.OpenedBy, tk.Subject, tk.Body, tk.Status)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, tenantID, ticketID string) (SupportTicket, error) {
	var tk SupportTicket
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, opened_by, subject, body, status, created_at, updated_at
		FROM support_tickets WHERE tenant_id=$1 AND id=$2
	`, tenantID, ticketID).Scan(&tk.ID, &tk.TenantID, &tk.OpenedBy, &tk.Subject, &tk.Body, &tk.Status, &tk.CreatedAt, &tk.UpdatedAt)
	if err != nil {
		return SupportTicket{}, err
	}
	return tk, nil
}

func (s *PostgresStore) ListTickets(ctx context.Context, tenantID string) ([]SupportTicket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, opened_by, subject, body, status, created_at, updated_at
		FROM support_tickets WHERE tenant_id=$1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	items := make([]SupportTicket, 0)
	for rows.Next() {
		var tk SupportTicket
		if err := rows.Scan(&tk.ID, &tk.TenantID, &tk.OpenedBy, &tk.Subject, &tk.Body, &tk.Status, &tk.CreatedAt, &tk.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, tk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTicketStatus(ctx context.Context, tenantID, ticketID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE support_tickets SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2
	`, tenantID, ticketID, status)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
