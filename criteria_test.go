package main

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"
)

// stubEmbed is a deterministic 4-dimensional stand-in for the embedding
// backend. Same text always yields the same vector.
func stubEmbed(text string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	v := h.Sum32()
	return []float32{
		float32(v%97) / 97,
		float32(v/97%89) / 89,
		float32(v/89%83) / 83,
		1,
	}, nil
}

func failEmbed(text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding backend unreachable")
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSeedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	store := NewCriteriaStore(db, stubEmbed)

	if err := store.Seed(); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	count, err := CountCriteria(db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(guidanceChunks) {
		t.Fatalf("expected %d criteria after seed, got %d", len(guidanceChunks), count)
	}

	if err := store.Seed(); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	count, _ = CountCriteria(db)
	if count != len(guidanceChunks) {
		t.Fatalf("second seed changed row count: got %d", count)
	}
}

func TestRetrieveTopK(t *testing.T) {
	db := openTestDB(t)
	store := NewCriteriaStore(db, stubEmbed)
	if err := store.Seed(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	results, err := store.Retrieve("developing new algorithms for adaptive indexing", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected exactly 3 results from a %d-chunk store, got %d", len(guidanceChunks), len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Fatalf("distances not ascending: %f before %f", results[i-1].Distance, results[i].Distance)
		}
	}
}

func TestRetrieveZeroK(t *testing.T) {
	db := openTestDB(t)
	// Failing embedder proves k=0 never touches the backend.
	store := NewCriteriaStore(db, failEmbed)

	results, err := store.Retrieve("anything", 0)
	if err != nil {
		t.Fatalf("retrieve with k=0 should not error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for k=0, got %d", len(results))
	}
}

func TestRetrieveKLargerThanStore(t *testing.T) {
	db := openTestDB(t)
	store := NewCriteriaStore(db, stubEmbed)
	if err := store.Seed(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	results, err := store.Retrieve("prototype testing", len(guidanceChunks)+5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != len(guidanceChunks) {
		t.Fatalf("expected all %d chunks, got %d", len(guidanceChunks), len(results))
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	db := openTestDB(t)
	store := NewCriteriaStore(db, stubEmbed)
	if err := store.Seed(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	broken := NewCriteriaStore(db, failEmbed)
	if _, err := broken.Retrieve("query", 3); err == nil {
		t.Fatal("expected error when embedding backend is unreachable")
	}
}

func TestRetrieveDimensionalityMismatch(t *testing.T) {
	db := openTestDB(t)
	store := NewCriteriaStore(db, stubEmbed)
	if err := store.Seed(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	shortEmbed := func(text string) ([]float32, error) {
		return []float32{1, 2}, nil
	}
	mismatched := NewCriteriaStore(db, shortEmbed)
	if _, err := mismatched.Retrieve("query", 3); err == nil {
		t.Fatal("expected error for mismatched embedding dimensionality")
	}
}

func TestListByCategory(t *testing.T) {
	db := openTestDB(t)
	store := NewCriteriaStore(db, stubEmbed)
	if err := store.Seed(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	texts, err := store.ListByCategory("software")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("expected 2 software criteria, got %d", len(texts))
	}

	texts, err = store.ListByCategory("no-such-category")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(texts) != 0 {
		t.Fatalf("expected no criteria for unknown category, got %d", len(texts))
	}
}
