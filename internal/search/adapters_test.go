package search

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestPatientSearchQueryFullFilters(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	q := Query{
		TenantID:   "ten_1",
		FreeText:   "anxiety",
		LabelCodes: []string{"vip"},
		Hashtags:   []string{"panic"},
		DateFrom:   &from,
		DateTo:     &to,
	}
	b := &builder{}
	sql := patientAdapter{}.searchQuery(b, q)

	for _, frag := range []string{
		"p.tenant_id = $1",
		"p.archived_at IS NULL",
		"p.updated_at >= ",
		"p.updated_at < ",
		"label_assignments",
		"l.code = ANY(",
		"hashtag_assignments",
		"h.tag = ANY(",
		"rank_bucket",
		"'patient'::text AS type",
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("query missing %q:\n%s", frag, sql)
		}
	}

	want := []any{"ten_1", "%anxiety%", from, to, "%anxiety%", []string{"vip"}, []string{"panic"}}
	if !reflect.DeepEqual(b.args, want) {
		t.Fatalf("args = %v, want %v", b.args, want)
	}
}

func TestEmptyQueryEmitsNoFilterClauses(t *testing.T) {
	q := Query{TenantID: "ten_1"}
	for _, a := range []adapter{patientAdapter{}, sessionAdapter{}, interviewAdapter{}, attemptAdapter{}, attachmentAdapter{}} {
		b := &builder{}
		sql := a.searchQuery(b, q)
		if strings.Contains(sql, "EXISTS") {
			t.Errorf("%s: unexpected EXISTS in unfiltered query", a.typ())
		}
		if strings.Contains(sql, "CASE WHEN") {
			t.Errorf("%s: rank bucket should be constant without free text", a.typ())
		}
		if !strings.Contains(sql, "2 AS rank_bucket") {
			t.Errorf("%s: missing constant rank bucket", a.typ())
		}
		if len(b.args) != 1 {
			t.Errorf("%s: args = %v, want only tenant", a.typ(), b.args)
		}
	}
}

func TestEveryAdapterScopesByTenant(t *testing.T) {
	q := Query{TenantID: "ten_1", FreeText: "x"}
	for _, a := range []adapter{patientAdapter{}, sessionAdapter{}, interviewAdapter{}, attemptAdapter{}, attachmentAdapter{}} {
		b := &builder{}
		sql := a.searchQuery(b, q)
		if !strings.Contains(sql, ".tenant_id = $1") {
			t.Errorf("%s: tenant predicate missing:\n%s", a.typ(), sql)
		}
		if len(b.args) == 0 || b.args[0] != "ten_1" {
			t.Errorf("%s: first arg = %v, want tenant id", a.typ(), b.args)
		}
	}
}

func TestChildAdaptersScopeThroughPatient(t *testing.T) {
	q := Query{TenantID: "ten_1"}
	for _, a := range []adapter{sessionAdapter{}, attemptAdapter{}, attachmentAdapter{}} {
		b := &builder{}
		sql := a.searchQuery(b, q)
		if !strings.Contains(sql, "JOIN patients p ON") {
			t.Errorf("%s: missing patient join:\n%s", a.typ(), sql)
		}
		if !strings.Contains(sql, "p.tenant_id = $1") {
			t.Errorf("%s: tenant must come from patients:\n%s", a.typ(), sql)
		}
	}
}

func TestSuggestQueriesAreScopedAndBounded(t *testing.T) {
	for _, a := range []adapter{patientAdapter{}, sessionAdapter{}, interviewAdapter{}, attemptAdapter{}, attachmentAdapter{}} {
		b := &builder{}
		sql := a.suggestQuery(b, "ten_1", "%ana%", 3)
		if !strings.Contains(sql, ".tenant_id = $1") {
			t.Errorf("%s: tenant predicate missing:\n%s", a.typ(), sql)
		}
		if !strings.Contains(sql, "ILIKE") {
			t.Errorf("%s: missing pattern match:\n%s", a.typ(), sql)
		}
		if !strings.Contains(sql, "LIMIT $3") {
			t.Errorf("%s: limit should be the third bind:\n%s", a.typ(), sql)
		}
		want := []any{"ten_1", "%ana%", 3}
		if !reflect.DeepEqual(b.args, want) {
			t.Errorf("%s: args = %v, want %v", a.typ(), b.args, want)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	if got := likePattern(`50%_a\b`); got != `%50\%\_a\\b%` {
		t.Fatalf("likePattern = %q", got)
	}
	if got := prefixPattern("an"); got != "an%" {
		t.Fatalf("prefixPattern = %q", got)
	}
}
