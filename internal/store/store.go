// Package store persists query audits and user feedback for review and
// training-data export.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Listing bounds
const (
	MinLimit = 1
	MaxLimit = 1000
)

// UnknownDomain is recorded for answers routed to no domain
const UnknownDomain = "domain_unknown"

// QueryAudit is one answered query
type QueryAudit struct {
	ID                uint   `gorm:"primaryKey"`
	RequestID         string `gorm:"size:64;index"`
	UserID            string `gorm:"index"`
	Query             string
	Intent            string
	Domain            string
	DomainSource      string
	Confidence        float64
	HallucinationRisk float64
	ExplainTrace      string
	Answer            string
	ProvenanceJSON    string
	CreatedAt         int64 `gorm:"index;autoCreateTime:nano"` // Unix nanoseconds
}

// TableName overrides the gorm default
func (QueryAudit) TableName() string { return "query_audit" }

// Feedback is a user's rating of an answer
type Feedback struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	UserID    string `gorm:"index" json:"user_id" validate:"notblank"`
	Query     string `json:"query" validate:"notblank"`
	Rating    int    `json:"rating" validate:"min=1,max=5"`
	Comment   string `json:"comment"`
	CreatedAt int64  `gorm:"index;autoCreateTime:nano" json:"-"`
}

// TableName overrides the gorm default
func (Feedback) TableName() string { return "feedback" }

// AuditRecord is the listed form of a QueryAudit
type AuditRecord struct {
	RequestID         string                 `json:"request_id"`
	UserID            string                 `json:"user_id"`
	Query             string                 `json:"query"`
	Intent            string                 `json:"intent"`
	Domain            string                 `json:"domain"`
	DomainSource      string                 `json:"domain_source"`
	Confidence        float64                `json:"confidence"`
	HallucinationRisk float64                `json:"hallucination_risk"`
	ExplainTrace      string                 `json:"explain_trace"`
	Answer            string                 `json:"answer"`
	Provenance        []model.ProvenanceItem `json:"provenance"`
	CreatedAt         time.Time              `json:"created_at"`
	Cursor            string                 `json:"cursor"`
}

// AuditFilter selects audit records, newest first
type AuditFilter struct {
	Limit  int
	UserID string
	Cursor string // Resume strictly after this record
}

// Store wraps the audit database
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the sqlite database at path and migrates it
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.AutoMigrate(&QueryAudit{}, &Feedback{}); err != nil {
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	return &Store{db: db, logger: logger.With(zap.String("component", "store")), now: time.Now}, nil
}

// Close releases the database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LogQuery records an answered query
func (s *Store) LogQuery(ctx context.Context, resp *model.Response) error {
	prov, err := json.Marshal(resp.Provenance)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	created := resp.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	domain := resp.Domain
	if domain == "" {
		domain = UnknownDomain
	}

	row := QueryAudit{
		RequestID:         resp.RequestID,
		UserID:            resp.UserID,
		Query:             resp.Query,
		Intent:            resp.Intent,
		Domain:            domain,
		DomainSource:      resp.DomainSource,
		Confidence:        resp.Confidence,
		HallucinationRisk: resp.HallucinationRisk,
		ExplainTrace:      string(resp.ExplainTrace),
		Answer:            resp.Answer,
		ProvenanceJSON:    string(prov),
		CreatedAt:         created.UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListAudit returns audit records newest first. The limit is clamped to
// [MinLimit, MaxLimit]; a malformed cursor is ignored.
func (s *Store) ListAudit(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	q := s.db.WithContext(ctx).Model(&QueryAudit{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if created, id, ok := decodeCursor(f.Cursor); ok {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", created, created, id)
	}

	var rows []QueryAudit
	err := q.Order("created_at DESC").Order("id DESC").Limit(ClampLimit(f.Limit)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}

	out := make([]AuditRecord, 0, len(rows))
	for _, r := range rows {
		var prov []model.ProvenanceItem
		if r.ProvenanceJSON != "" {
			if err := json.Unmarshal([]byte(r.ProvenanceJSON), &prov); err != nil {
				s.logger.Warn("skipping unreadable provenance", zap.Uint("id", r.ID), zap.Error(err))
			}
		}
		if prov == nil {
			prov = []model.ProvenanceItem{}
		}
		out = append(out, AuditRecord{
			RequestID:         r.RequestID,
			UserID:            r.UserID,
			Query:             r.Query,
			Intent:            r.Intent,
			Domain:            r.Domain,
			DomainSource:      r.DomainSource,
			Confidence:        r.Confidence,
			HallucinationRisk: r.HallucinationRisk,
			ExplainTrace:      r.ExplainTrace,
			Answer:            r.Answer,
			Provenance:        prov,
			CreatedAt:         time.Unix(0, r.CreatedAt).UTC(),
			Cursor:            encodeCursor(r.CreatedAt, r.ID),
		})
	}
	return out, nil
}

// ExportAuditJSONL writes audit records to path, one JSON object per line,
// and returns how many were written
func (s *Store) ExportAuditJSONL(ctx context.Context, path string, limit int, userID string) (int, error) {
	records, err := s.ListAudit(ctx, AuditFilter{Limit: limit, UserID: userID})
	if err != nil {
		return 0, err
	}
	if err := writeJSONL(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// LogFeedback records a rating
func (s *Store) LogFeedback(ctx context.Context, fb Feedback) error {
	fb.ID = 0
	if fb.CreatedAt == 0 {
		fb.CreatedAt = s.now().UnixNano()
	}
	if err := s.db.WithContext(ctx).Create(&fb).Error; err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// ListFeedback returns feedback newest first, optionally only ratings of
// at least minRating
func (s *Store) ListFeedback(ctx context.Context, limit int, minRating *int) ([]Feedback, error) {
	q := s.db.WithContext(ctx).Model(&Feedback{})
	if minRating != nil {
		q = q.Where("rating >= ?", *minRating)
	}
	var rows []Feedback
	if err := q.Order("created_at DESC").Order("id DESC").Limit(ClampLimit(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return rows, nil
}

// ClampLimit bounds a listing limit to [MinLimit, MaxLimit]
func ClampLimit(limit int) int {
	return max(MinLimit, min(limit, MaxLimit))
}

func encodeCursor(createdAt int64, id uint) string {
	return fmt.Sprintf("%d|%d", createdAt, id)
}

func decodeCursor(token string) (int64, uint, bool) {
	created, id, ok := strings.Cut(token, "|")
	if !ok {
		return 0, 0, false
	}
	c, err := strconv.ParseInt(created, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return c, uint(n), true
}

func writeJSONL[T any](path string, rows []T) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}
	return f.Sync()
}
