package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/atikulmunna/sagrag/internal/model"
)

// Answerer answers a single query request
type Answerer interface {
	Answer(ctx context.Context, req model.QueryRequest) (*model.Response, error)
}

// queryTask answers one request of a batch, paced per user by limiter
func queryTask(index int, req model.QueryRequest, answerer Answerer, limiter *Limiter) Task[*QueryResult] {
	return func(ctx context.Context) *QueryResult {
		out := &QueryResult{Index: index, Query: req.Query}
		if limiter != nil {
			if err := limiter.Wait(ctx, req.UserID); err != nil {
				out.Error = fmt.Errorf("rate limit: %w", err)
				return out
			}
		}
		out.Response, out.Error = answerer.Answer(ctx, req)
		return out
	}
}

// QueryResult represents the result of a query job
type QueryResult struct {
	Index    int
	Query    string
	Response *model.Response
	Error    error
}

// BatchProcessor answers multiple queries concurrently
type BatchProcessor struct {
	answerer    Answerer
	concurrency int
	limiter     *Limiter
}

// NewBatchProcessor creates a new batch processor. requestsPerSecond paces
// queries per user; zero disables pacing.
func NewBatchProcessor(answerer Answerer, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	var limiter *Limiter
	if requestsPerSecond > 0 {
		limiter = NewLimiter(requestsPerSecond, burst)
	}
	return &BatchProcessor{
		answerer:    answerer,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// ProcessQueries answers the queries for one user concurrently. Results are
// returned in input order.
func (b *BatchProcessor) ProcessQueries(ctx context.Context, userID string, queries []string) []*QueryResult {
	requests := make([]model.QueryRequest, len(queries))
	for i, q := range queries {
		requests[i] = model.QueryRequest{UserID: userID, Query: q}
	}
	return b.ProcessRequests(ctx, requests)
}

// ProcessRequests answers prepared requests concurrently, in input order
func (b *BatchProcessor) ProcessRequests(ctx context.Context, requests []model.QueryRequest) []*QueryResult {
	if len(requests) == 0 {
		return []*QueryResult{}
	}

	pool := NewPool[*QueryResult](ctx, b.concurrency)
	pool.Start()

	// Submit from a goroutine so a full queue cannot block result draining
	go func() {
		for i, req := range requests {
			if !pool.Submit(queryTask(i, req, b.answerer, b.limiter)) {
				break
			}
		}
		pool.Close()
	}()

	ordered := make([]*QueryResult, len(requests))
	for _, qr := range pool.Collect() {
		ordered[qr.Index] = qr
	}
	for i, qr := range ordered {
		if qr == nil {
			ordered[i] = &QueryResult{Index: i, Query: requests[i].Query, Error: fmt.Errorf("not processed: %w", context.Cause(ctx))}
		}
	}

	return ordered
}

// ProcessFile reads queries from a file and answers them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, userID, filePath string) ([]*QueryResult, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, userID, queries), nil
}

// ReadQueriesFromFile reads queries from a file (one per line)
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Deduplicate queries
		if !seen[line] {
			seen[line] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}
