package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMutationLogFIFO(t *testing.T) {
	s := openTestStore(t)

	keys := []string{"k1", "k2", "k3"}
	for _, key := range keys {
		rec := &MutationRecord{
			Key:        key,
			Name:       "sync tracks",
			Collection: "tracks",
			Mutations:  []Mutation{{Type: MutationDelete, ID: "t-" + key}},
		}
		if err := s.AppendMutation(rec); err != nil {
			t.Fatalf("failed to append %s: %v", key, err)
		}
	}

	// Drain must observe insertion order
	for _, want := range keys {
		rec, err := s.NextMutation()
		if err != nil {
			t.Fatalf("failed to get next mutation: %v", err)
		}
		if rec == nil {
			t.Fatalf("expected mutation %s, got empty log", want)
		}
		if rec.Key != want {
			t.Errorf("expected key %s at head, got %s", want, rec.Key)
		}

		removed, err := s.RemoveMutation(rec.Key)
		if err != nil {
			t.Fatalf("failed to remove %s: %v", rec.Key, err)
		}
		if !removed {
			t.Errorf("expected removal of %s to report a removed row", rec.Key)
		}
	}

	rec, err := s.NextMutation()
	if err != nil {
		t.Fatalf("failed to get next mutation: %v", err)
	}
	if rec != nil {
		t.Errorf("expected empty log, got %s", rec.Key)
	}
}

func TestAppendMutationSameKeyIsNoop(t *testing.T) {
	s := openTestStore(t)

	rec := &MutationRecord{
		Key:        "k1",
		Name:       "sync tracks",
		Collection: "tracks",
		Mutations:  []Mutation{{Type: MutationDelete, ID: "t1"}},
	}
	if err := s.AppendMutation(rec); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := s.AppendMutation(rec); err != nil {
		t.Fatalf("failed to re-append: %v", err)
	}

	count, err := s.MutationCount()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 queued mutation, got %d", count)
	}
}

func TestRemoveMutationReportsSingleWinner(t *testing.T) {
	s := openTestStore(t)

	rec := &MutationRecord{
		Key:        "k1",
		Name:       "sync tracks",
		Collection: "tracks",
		Mutations:  []Mutation{{Type: MutationDelete, ID: "t1"}},
	}
	if err := s.AppendMutation(rec); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	first, err := s.RemoveMutation("k1")
	if err != nil {
		t.Fatalf("failed first remove: %v", err)
	}
	second, err := s.RemoveMutation("k1")
	if err != nil {
		t.Fatalf("failed second remove: %v", err)
	}

	if !first {
		t.Error("expected first remove to win")
	}
	if second {
		t.Error("expected second remove to observe the row already gone")
	}
}

func TestMutationRoundTrip(t *testing.T) {
	s := openTestStore(t)

	entity := json.RawMessage(`{"id":"t1","title":"Blue Monday"}`)
	rec := &MutationRecord{
		Key:        "k1",
		Name:       "sync tracks",
		Collection: "tracks",
		Metadata:   map[string]string{"channel_id": "c1"},
		Mutations: []Mutation{
			{Type: MutationInsert, ID: "t1", Entity: entity},
			{Type: MutationUpdate, ID: "t2", Changes: map[string]string{"title": "Temptation"}},
		},
	}
	if err := s.AppendMutation(rec); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	got, err := s.GetMutation("k1")
	if err != nil {
		t.Fatalf("failed to get mutation: %v", err)
	}
	if got == nil {
		t.Fatal("expected mutation")
	}

	if got.Metadata["channel_id"] != "c1" {
		t.Errorf("expected channel_id metadata, got %v", got.Metadata)
	}
	if len(got.Mutations) != 2 {
		t.Fatalf("expected 2 mutations, got %d", len(got.Mutations))
	}
	if got.Mutations[0].Type != MutationInsert || string(got.Mutations[0].Entity) != string(entity) {
		t.Errorf("insert mutation did not round-trip: %+v", got.Mutations[0])
	}
	if got.Mutations[1].Changes["title"] != "Temptation" {
		t.Errorf("update diff did not round-trip: %+v", got.Mutations[1])
	}
}

func TestRecordMutationFailure(t *testing.T) {
	s := openTestStore(t)

	rec := &MutationRecord{
		Key:        "k1",
		Name:       "sync tracks",
		Collection: "tracks",
		Mutations:  []Mutation{{Type: MutationDelete, ID: "t1"}},
	}
	if err := s.AppendMutation(rec); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	cause := errors.New("connection timed out")
	if err := s.RecordMutationFailure("k1", cause); err != nil {
		t.Fatalf("failed to record failure: %v", err)
	}
	if err := s.RecordMutationFailure("k1", cause); err != nil {
		t.Fatalf("failed to record second failure: %v", err)
	}

	got, err := s.GetMutation("k1")
	if err != nil {
		t.Fatalf("failed to get mutation: %v", err)
	}
	if got.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", got.Attempts)
	}
	if got.LastError != "connection timed out" {
		t.Errorf("expected last error to be recorded, got %q", got.LastError)
	}
}
