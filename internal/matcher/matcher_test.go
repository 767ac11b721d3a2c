package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/fsmcheck/internal/models"
)

type fakeIndex struct {
	calls   int
	lastQ   string
	records []*models.Record
	err     error
}

func (f *fakeIndex) SearchNormalized(_ context.Context, q string, _ int) ([]*models.Record, error) {
	f.calls++
	f.lastQ = q
	return f.records, f.err
}

func TestSearch_EmptyQueryShortCircuits(t *testing.T) {
	idx := &fakeIndex{}
	m := NewMatcher(idx)
	for _, q := range []string{"", "   ", "?!,."} {
		got, err := m.Search(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("Search(%q) returned %d records", q, len(got))
		}
	}
	if idx.calls != 0 {
		t.Errorf("index should not be touched, got %d calls", idx.calls)
	}
}

func TestSearch_PassesNormalizedQuery(t *testing.T) {
	idx := &fakeIndex{records: []*models.Record{{ID: 12, Date: "01.02.2015", Text: "Some text"}}}
	m := NewMatcher(idx)
	got, err := m.Search(context.Background(), "  Some, TEXT! ")
	if err != nil {
		t.Fatal(err)
	}
	if idx.lastQ != "some text" {
		t.Errorf("index got %q", idx.lastQ)
	}
	if len(got) != 1 || got[0].ID != 12 {
		t.Errorf("got %+v", got)
	}
}

func TestSearch_PropagatesIndexError(t *testing.T) {
	want := errors.New("index not yet available")
	m := NewMatcher(&fakeIndex{err: want})
	if _, err := m.Search(context.Background(), "x"); !errors.Is(err, want) {
		t.Errorf("got %v", err)
	}
}

func TestCheck_BuildsResponse(t *testing.T) {
	idx := &fakeIndex{records: []*models.Record{{ID: 1, Text: "a"}, {ID: 2, Text: "a b"}}}
	m := NewMatcher(idx)
	resp, err := m.Check(context.Background(), &models.SearchQuery{Query: "A!"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Found || len(resp.Results) != 2 || resp.Normalized != "a" {
		t.Errorf("unexpected response %+v", resp)
	}

	resp, err = m.Check(context.Background(), &models.SearchQuery{Query: "..."})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Found || resp.Results == nil {
		t.Errorf("punctuation-only query should be a clean, non-nil empty result: %+v", resp)
	}

	if _, err := m.Check(context.Background(), &models.SearchQuery{}); err == nil {
		t.Error("empty query should fail validation")
	}
}
