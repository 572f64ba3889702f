package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alonsobrenes/Api-sub001/internal/auth"
	"github.com/alonsobrenes/Api-sub001/internal/search"
	"github.com/alonsobrenes/Api-sub001/internal/store"
)

func newSearchServer(t *testing.T, se *fakeSearcher) (http.Handler, string) {
	t.Helper()
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, TenantID: "ten_1", DisplayName: "Dr. Vega", Role: "clinician"}, nil
		},
	}
	svc := newTestService(fs, se)
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:    "usr_1",
		Name:   "Dr. Vega",
		Role:   "clinician",
		Tenant: "ten_1",
		JTI:    "jti_search",
		Exp:    time.Now().Add(time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return NewHTTPServer(svc, "*").Handler(), token
}

func TestSearchEndpointPassesParsedQuery(t *testing.T) {
	se := &fakeSearcher{page: &search.Page{Page: 2, PageSize: 10, Total: 37, Items: []search.ResultItem{}}}
	handler, token := newSearchServer(t, se)

	rec := doRequest(handler, http.MethodGet,
		"/api/search?q=anxiety+label:vip+%23panic&types=patient,session&from=2024-01-01&to=2024-02-01&page=2&pageSize=10",
		token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	q := se.lastQuery
	if q == nil {
		t.Fatal("engine did not run")
	}
	if q.FreeText != "anxiety" || len(q.LabelCodes) != 1 || q.LabelCodes[0] != "vip" {
		t.Fatalf("query = %+v", q)
	}
	if len(q.Hashtags) != 1 || q.Hashtags[0] != "panic" {
		t.Fatalf("hashtags = %v", q.Hashtags)
	}
	if len(q.Types) != 2 {
		t.Fatalf("types = %v", q.Types)
	}
	if q.Page != 2 || q.PageSize != 10 {
		t.Fatalf("paging = %d/%d", q.Page, q.PageSize)
	}

	payload := decodeResponse(t, rec)
	if payload["total"] != float64(37) {
		t.Fatalf("total = %v", payload["total"])
	}
}

func TestSearchEndpointRejectsUnknownType(t *testing.T) {
	se := &fakeSearcher{}
	handler, token := newSearchServer(t, se)

	rec := doRequest(handler, http.MethodGet, "/api/search?types=widget", token, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", payload["code"])
	}
	details, _ := payload["details"].(map[string]any)
	if details["field"] != "types" || details["value"] != "widget" {
		t.Fatalf("details = %v", payload["details"])
	}
	if se.lastQuery != nil {
		t.Fatal("engine should not run for invalid input")
	}
}

func TestSearchEndpointRejectsNonIntegerPage(t *testing.T) {
	handler, token := newSearchServer(t, &fakeSearcher{})

	rec := doRequest(handler, http.MethodGet, "/api/search?page=two", token, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	details, _ := payload["details"].(map[string]any)
	if details["field"] != "page" {
		t.Fatalf("details = %v", payload["details"])
	}
}

func TestSearchEndpointRejectsBadDate(t *testing.T) {
	handler, token := newSearchServer(t, &fakeSearcher{})

	rec := doRequest(handler, http.MethodGet, "/api/search?from=Jan+1", token, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	details, _ := payload["details"].(map[string]any)
	if details["field"] != "from" {
		t.Fatalf("details = %v", payload["details"])
	}
}

func TestSuggestEndpoint(t *testing.T) {
	se := &fakeSearcher{suggestions: &search.Suggestions{
		Hashtags: []string{"anxiety"},
		Labels:   []search.LabelSuggestion{{ID: "lbl_1", Code: "vip", Name: "VIP"}},
		Entities: []search.EntitySuggestion{{Type: search.TypePatient, ID: "pat_1", Title: "Ana Mora"}},
	}}
	handler, token := newSearchServer(t, se)

	rec := doRequest(handler, http.MethodGet, "/api/suggest?prefix=an&limit=5", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if se.lastPrefix != "an" || se.lastLimit != 5 {
		t.Fatalf("prefix/limit = %q/%d", se.lastPrefix, se.lastLimit)
	}
	payload := decodeResponse(t, rec)
	hashtags, _ := payload["hashtags"].([]any)
	if len(hashtags) != 1 || hashtags[0] != "anxiety" {
		t.Fatalf("hashtags = %v", payload["hashtags"])
	}
}

func TestSuggestEndpointRejectsBadLimit(t *testing.T) {
	handler, token := newSearchServer(t, &fakeSearcher{})

	rec := doRequest(handler, http.MethodGet, "/api/suggest?limit=lots", token, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload := decodeResponse(t, rec); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", payload["code"])
	}
}
