package search

import "fmt"

// The five source adapters. Patients and interviews are scoped by their own
// tenant_id column; sessions, test attempts and attachments carry no tenant
// column and are scoped transitively through the patient they belong to.

type patientAdapter struct{}

func (patientAdapter) typ() EntityType { return TypePatient }

const patientTitle = "TRIM(p.first_name || ' ' || p.last_name)"

var patientTextCols = []string{"p.first_name", "p.last_name", "p.id_number", "p.email"}

func (patientAdapter) searchQuery(b *builder, q Query) string {
	tenant := b.bind(q.TenantID)
	snippet := "LEFT(p.notes, 300)"
	bucket := bucketExpr(b, q, patientTitle, snippet)
	where := whereAnd([]string{
		"p.tenant_id = " + tenant,
		"p.archived_at IS NULL",
		dateClause(b, q, "p.updated_at"),
		matchClause(b, q, TypePatient, tenant, "p.id", patientTextCols),
	})
	return fmt.Sprintf(`SELECT 'patient'::text AS type, p.id AS id, %s AS title, %s AS snippet,
	p.updated_at AS updated_at, NULL::text AS parent_id, %s AS rank_bucket
FROM patients p
WHERE %s`, patientTitle, snippet, bucket, where)
}

func (patientAdapter) suggestQuery(b *builder, tenantID, pattern string, limit int) string {
	tenant := b.bind(tenantID)
	match := textOr(patientTextCols, b.bind(pattern))
	return fmt.Sprintf(`SELECT 'patient'::text AS type, p.id AS id, %s AS title
FROM patients p
WHERE p.tenant_id = %s AND p.archived_at IS NULL AND %s
ORDER BY p.updated_at DESC NULLS LAST
LIMIT %s`, patientTitle, tenant, match, b.bind(limit))
}

type sessionAdapter struct{}

func (sessionAdapter) typ() EntityType { return TypeSession }

// The session freshness timestamp is the latest of every candidate that can
// mean "last touched". GREATEST ignores null candidates.
const sessionFreshness = "GREATEST(s.ai_opinion_updated_at, s.transcript_updated_at, s.ended_at, s.started_at)"

var sessionTextCols = []string{"s.title", "s.notes"}

func (sessionAdapter) searchQuery(b *builder, q Query) string {
	tenant := b.bind(q.TenantID)
	snippet := "LEFT(s.notes, 300)"
	bucket := bucketExpr(b, q, "s.title", snippet)
	where := whereAnd([]string{
		"p.tenant_id = " + tenant,
		dateClause(b, q, sessionFreshness),
		matchClause(b, q, TypeSession, tenant, "s.id", sessionTextCols),
	})
	return fmt.Sprintf(`SELECT 'session'::text AS type, s.id AS id, s.title AS title, %s AS snippet,
	%s AS updated_at, s.patient_id AS parent_id, %s AS rank_bucket
FROM clinical_sessions s
JOIN patients p ON p.id = s.patient_id
WHERE %s`, snippet, sessionFreshness, bucket, where)
}

func (sessionAdapter) suggestQuery(b *builder, tenantID, pattern string, limit int) string {
	tenant := b.bind(tenantID)
	match := textOr(sessionTextCols, b.bind(pattern))
	return fmt.Sprintf(`SELECT 'session'::text AS type, s.id AS id, s.title AS title
FROM clinical_sessions s
JOIN patients p ON p.id = s.patient_id
WHERE p.tenant_id = %s AND %s
ORDER BY %s DESC NULLS LAST
LIMIT %s`, tenant, match, sessionFreshness, b.bind(limit))
}

type interviewAdapter struct{}

func (interviewAdapter) typ() EntityType { return TypeInterview }

const interviewFreshness = "GREATEST(i.summary_updated_at, i.completed_at, i.started_at)"

var interviewTextCols = []string{"i.title", "i.summary"}

func (interviewAdapter) searchQuery(b *builder, q Query) string {
	tenant := b.bind(q.TenantID)
	snippet := "LEFT(i.summary, 300)"
	bucket := bucketExpr(b, q, "i.title", snippet)
	where := whereAnd([]string{
		"i.tenant_id = " + tenant,
		dateClause(b, q, interviewFreshness),
		matchClause(b, q, TypeInterview, tenant, "i.id", interviewTextCols),
	})
	return fmt.Sprintf(`SELECT 'interview'::text AS type, i.id AS id, i.title AS title, %s AS snippet,
	%s AS updated_at, i.patient_id AS parent_id, %s AS rank_bucket
FROM interviews i
WHERE %s`, snippet, interviewFreshness, bucket, where)
}

func (interviewAdapter) suggestQuery(b *builder, tenantID, pattern string, limit int) string {
	tenant := b.bind(tenantID)
	match := textOr(interviewTextCols, b.bind(pattern))
	return fmt.Sprintf(`SELECT 'interview'::text AS type, i.id AS id, i.title AS title
FROM interviews i
WHERE i.tenant_id = %s AND %s
ORDER BY %s DESC NULLS LAST
LIMIT %s`, tenant, match, interviewFreshness, b.bind(limit))
}

type attemptAdapter struct{}

func (attemptAdapter) typ() EntityType { return TypeTestAttempt }

const attemptFreshness = "GREATEST(a.scored_at, a.completed_at, a.started_at)"

var attemptTextCols = []string{"t.name", "a.report"}

func (attemptAdapter) searchQuery(b *builder, q Query) string {
	tenant := b.bind(q.TenantID)
	snippet := "LEFT(a.report, 300)"
	bucket := bucketExpr(b, q, "t.name", snippet)
	where := whereAnd([]string{
		"p.tenant_id = " + tenant,
		dateClause(b, q, attemptFreshness),
		matchClause(b, q, TypeTestAttempt, tenant, "a.id", attemptTextCols),
	})
	return fmt.Sprintf(`SELECT 'test_attempt'::text AS type, a.id AS id, t.name AS title, %s AS snippet,
	%s AS updated_at, a.patient_id AS parent_id, %s AS rank_bucket
FROM test_attempts a
JOIN tests t ON t.id = a.test_id
JOIN patients p ON p.id = a.patient_id
WHERE %s`, snippet, attemptFreshness, bucket, where)
}

func (attemptAdapter) suggestQuery(b *builder, tenantID, pattern string, limit int) string {
	tenant := b.bind(tenantID)
	match := textOr(attemptTextCols, b.bind(pattern))
	return fmt.Sprintf(`SELECT 'test_attempt'::text AS type, a.id AS id, t.name AS title
FROM test_attempts a
JOIN tests t ON t.id = a.test_id
JOIN patients p ON p.id = a.patient_id
WHERE p.tenant_id = %s AND %s
ORDER BY %s DESC NULLS LAST
LIMIT %s`, tenant, match, attemptFreshness, b.bind(limit))
}

type attachmentAdapter struct{}

func (attachmentAdapter) typ() EntityType { return TypeAttachment }

var attachmentTextCols = []string{"a.file_name", "a.description"}

func (attachmentAdapter) searchQuery(b *builder, q Query) string {
	tenant := b.bind(q.TenantID)
	snippet := "LEFT(a.description, 300)"
	bucket := bucketExpr(b, q, "a.file_name", snippet)
	where := whereAnd([]string{
		"p.tenant_id = " + tenant,
		dateClause(b, q, "a.uploaded_at"),
		matchClause(b, q, TypeAttachment, tenant, "a.id", attachmentTextCols),
	})
	return fmt.Sprintf(`SELECT 'attachment'::text AS type, a.id AS id, a.file_name AS title, %s AS snippet,
	a.uploaded_at AS updated_at, a.patient_id AS parent_id, %s AS rank_bucket
FROM attachments a
JOIN patients p ON p.id = a.patient_id
WHERE %s`, snippet, bucket, where)
}

func (attachmentAdapter) suggestQuery(b *builder, tenantID, pattern string, limit int) string {
	tenant := b.bind(tenantID)
	match := textOr(attachmentTextCols, b.bind(pattern))
	return fmt.Sprintf(`SELECT 'attachment'::text AS type, a.id AS id, a.file_name AS title
FROM attachments a
JOIN patients p ON p.id = a.patient_id
WHERE p.tenant_id = %s AND %s
ORDER BY a.uploaded_at DESC
LIMIT %s`, tenant, match, b.bind(limit))
}
