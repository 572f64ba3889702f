package search

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// suggestFake answers the hashtag, label and entity suggestion queries by
// sniffing the FROM clause.
func suggestFake(t *testing.T) *fakeQuerier {
	t.Helper()
	return &fakeQuerier{
		rowFn: func(string, []any) rowScanner {
			t.Fatal("suggest should not use QueryRow")
			return nil
		},
		rowsFn: func(query string, _ []any) (rowIter, error) {
			switch {
			case strings.Contains(query, "FROM hashtags"):
				return &fakeRows{data: [][]any{{"panic"}, {"panic-attack"}}}, nil
			case strings.Contains(query, "FROM labels"):
				return &fakeRows{data: [][]any{{"lbl_1", "vip", "VIP", "#ff0000"}}}, nil
			case strings.Contains(query, "FROM patients"):
				return &fakeRows{data: [][]any{{"patient", "pat_1", "Pablo Ruiz"}}}, nil
			default:
				return &fakeRows{}, nil
			}
		},
	}
}

func TestSuggestReturnsAllCategories(t *testing.T) {
	fq := suggestFake(t)
	e := newEngine(fq)

	got := e.Suggest(context.Background(), "ten_1", "pa", 10)
	if len(got.Hashtags) != 2 || got.Hashtags[0] != "panic" {
		t.Errorf("hashtags = %v", got.Hashtags)
	}
	if len(got.Labels) != 1 || got.Labels[0].Code != "vip" {
		t.Errorf("labels = %v", got.Labels)
	}
	if len(got.Entities) != 1 || got.Entities[0].Type != TypePatient {
		t.Errorf("entities = %v", got.Entities)
	}

	// 2 category queries plus one per entity source.
	if len(fq.queries) != 7 {
		t.Fatalf("queries = %d, want 7", len(fq.queries))
	}
}

func TestSuggestStripsHashPrefix(t *testing.T) {
	fq := suggestFake(t)
	e := newEngine(fq)

	e.Suggest(context.Background(), "ten_1", "#pa", 10)
	for i, query := range fq.queries {
		if strings.Contains(query, "FROM hashtags") {
			if fq.args[i][1] != "pa%" {
				t.Fatalf("hashtag pattern = %v, want pa%%", fq.args[i][1])
			}
			return
		}
	}
	t.Fatal("hashtag query not issued")
}

func TestSuggestEmptyPrefixSkipsEntities(t *testing.T) {
	fq := suggestFake(t)
	e := newEngine(fq)

	got := e.Suggest(context.Background(), "ten_1", "  ", 10)
	if len(got.Entities) != 0 {
		t.Errorf("entities = %v, want none", got.Entities)
	}
	// Hashtag and label categories still run with a bare prefix.
	if len(fq.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(fq.queries))
	}
}

func TestSuggestCategoryDegradesIndependently(t *testing.T) {
	fq := suggestFake(t)
	inner := fq.rowsFn
	fq.rowsFn = func(query string, args []any) (rowIter, error) {
		if strings.Contains(query, "FROM hashtags") {
			return nil, errors.New("relation vanished")
		}
		return inner(query, args)
	}
	e := newEngine(fq)

	got := e.Suggest(context.Background(), "ten_1", "pa", 10)
	if len(got.Hashtags) != 0 {
		t.Errorf("hashtags = %v, want empty after failure", got.Hashtags)
	}
	if len(got.Labels) != 1 {
		t.Errorf("labels = %v, other categories must survive", got.Labels)
	}
	if len(got.Entities) != 1 {
		t.Errorf("entities = %v, other categories must survive", got.Entities)
	}
}

func TestSuggestEntitySourceDegradesIndependently(t *testing.T) {
	fq := suggestFake(t)
	inner := fq.rowsFn
	fq.rowsFn = func(query string, args []any) (rowIter, error) {
		if strings.Contains(query, "FROM interviews") {
			return nil, errors.New("timeout")
		}
		return inner(query, args)
	}
	e := newEngine(fq)

	got := e.Suggest(context.Background(), "ten_1", "pa", 10)
	if len(got.Entities) != 1 || got.Entities[0].ID != "pat_1" {
		t.Errorf("entities = %v, want the surviving patient hit", got.Entities)
	}
}

func TestSuggestLimitClampAndShare(t *testing.T) {
	cases := []struct {
		limit     int
		wantCat   int
		wantShare int
	}{
		{0, defaultSuggestLimit, 2},
		{100, maxSuggestLimit, 5},
		{3, 3, 1},
	}
	for _, tc := range cases {
		fq := suggestFake(t)
		e := newEngine(fq)
		e.Suggest(context.Background(), "ten_1", "pa", tc.limit)

		for i, query := range fq.queries {
			args := fq.args[i]
			limit := args[len(args)-1]
			if strings.Contains(query, "FROM hashtags") || strings.Contains(query, "FROM labels") {
				if limit != tc.wantCat {
					t.Errorf("limit=%d: category limit = %v, want %d", tc.limit, limit, tc.wantCat)
				}
			} else if limit != tc.wantShare {
				t.Errorf("limit=%d: per-source limit = %v, want %d", tc.limit, limit, tc.wantShare)
			}
		}
	}
}
