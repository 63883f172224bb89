package worker

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
)

// MockAnswerer implements Answerer
type MockAnswerer struct {
	ShouldError bool
	calls       int32
}

func (m *MockAnswerer) Answer(ctx context.Context, req model.QueryRequest) (*model.Response, error) {
	atomic.AddInt32(&m.calls, 1)
	time.Sleep(10 * time.Millisecond) // Simulate work
	if m.ShouldError {
		return nil, errors.New("answer error")
	}
	return &model.Response{
		UserID: req.UserID,
		Query:  req.Query,
		Answer: "answer to " + req.Query,
	}, nil
}

func TestBatchProcessor_ProcessQueries(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2, 0, 0)

	queries := []string{"What is fear?", "Who was Seneca?", "What is virtue?"}
	results := processor.ProcessQueries(context.Background(), "u1", queries)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Query, res.Error)
			continue
		}
		if res.Query != queries[i] {
			t.Errorf("expected result %d to be for %q, got %q", i, queries[i], res.Query)
		}
		if res.Response == nil || res.Response.UserID != "u1" {
			t.Errorf("expected response for user u1, got %+v", res.Response)
		}
	}
}

func TestBatchProcessor_ManyQueriesDoNotDeadlock(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2, 0, 0)

	queries := make([]string, 40)
	for i := range queries {
		queries[i] = "query " + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}

	done := make(chan []*QueryResult)
	go func() { done <- processor.ProcessQueries(context.Background(), "u1", queries) }()

	select {
	case results := <-done:
		if len(results) != 40 {
			t.Errorf("expected 40 results, got %d", len(results))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}
}

func TestBatchProcessor_ProcessQueries_Error(t *testing.T) {
	answerer := &MockAnswerer{ShouldError: true}
	processor := NewBatchProcessor(answerer, 2, 0, 0)

	results := processor.ProcessQueries(context.Background(), "u1", []string{"What is fear?"})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Error == nil {
		t.Error("expected error, got nil")
	}
	if results[0].Response != nil {
		t.Error("expected nil response on error")
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 1, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := processor.ProcessQueries(ctx, "u1", []string{"a", "b", "c"})
	if len(results) != 3 {
		t.Fatalf("expected a result per query, got %d", len(results))
	}
	for _, res := range results {
		if res == nil {
			t.Fatal("expected no nil results")
		}
	}
}

func TestBatchProcessor_RateLimited(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 4, 20, 1)

	start := time.Now()
	results := processor.ProcessQueries(context.Background(), "u1", []string{"a", "b", "c"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Burst 1 at 20 rps spaces three calls by at least ~100ms
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected pacing, finished in %v", elapsed)
	}
}

func TestBatchProcessor_ProcessQueries_Empty(t *testing.T) {
	processor := NewBatchProcessor(&MockAnswerer{}, 2, 0, 0)

	results := processor.ProcessQueries(context.Background(), "u1", []string{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "queries")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestReadQueriesFromFile(t *testing.T) {
	path := writeTempFile(t, `What does Seneca say about fear?
# comment
Who was Epictetus?
   
What is virtue?   `)

	queries, err := ReadQueriesFromFile(path)
	if err != nil {
		t.Fatalf("ReadQueriesFromFile failed: %v", err)
	}

	expected := []string{"What does Seneca say about fear?", "Who was Epictetus?", "What is virtue?"}
	if len(queries) != len(expected) {
		t.Fatalf("expected %d queries, got %d", len(expected), len(queries))
	}
	for i, q := range queries {
		if q != expected[i] {
			t.Errorf("expected query %q at index %d, got %q", expected[i], i, q)
		}
	}
}

func TestReadQueriesFromFile_NonExistent(t *testing.T) {
	_, err := ReadQueriesFromFile("non_existent_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestReadQueriesFromFile_Deduplication(t *testing.T) {
	path := writeTempFile(t, "What is fear?\nWhat is fear?\n")

	queries, err := ReadQueriesFromFile(path)
	if err != nil {
		t.Fatalf("ReadQueriesFromFile failed: %v", err)
	}
	if len(queries) != 1 {
		t.Errorf("expected 1 query after deduplication, got %d", len(queries))
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeTempFile(t, "What is fear?\nWho was Seneca?\n# comment\n\nWhat is virtue?\n")

	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2, 0, 0)

	results, err := processor.ProcessFile(context.Background(), "u1", path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
	if atomic.LoadInt32(&answerer.calls) != 3 {
		t.Errorf("expected 3 answer calls, got %d", answerer.calls)
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	processor := NewBatchProcessor(&MockAnswerer{}, 2, 0, 0)

	_, err := processor.ProcessFile(context.Background(), "u1", "no_such_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessFile_Empty(t *testing.T) {
	path := writeTempFile(t, "")

	processor := NewBatchProcessor(&MockAnswerer{}, 2, 0, 0)

	results, err := processor.ProcessFile(context.Background(), "u1", path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results for empty file, got %d", len(results))
	}
}
