// Package store persists users, saved searches and generated reports in
// Postgres. Schema management lives in migrations/; the store assumes the
// schema is already in place.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/result"
)

// ErrNotFound indicates the requested row does not exist or is not visible
// to the requesting user.
var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

var (
	metricsOnce    sync.Once
	reportCounter  otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	reportCounter, metricsInitErr = meter.Int64Counter("reports_saved_total")
}

// New connects using the configured Postgres settings.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

func (s *Store) GetUserEmail(ctx context.Context, id string) (string, error) {
	var email string
	err := s.DB.QueryRowContext(ctx, `SELECT email FROM users WHERE id=$1`, id).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return email, err
}

// Search is one saved search request.
type Search struct {
	ID        string
	UserID    string
	Keywords  []string
	Platforms []string
	Detail    string
	CreatedAt time.Time
}

func (s *Store) CreateSearch(ctx context.Context, userID string, keywords, platforms []string, detail string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO searches (user_id, keywords, platforms, detail) VALUES ($1,$2,$3,$4) RETURNING id`,
		userID, pq.Array(keywords), pq.Array(platforms), detail).Scan(&id)
	return id, err
}

func (s *Store) ListSearches(ctx context.Context, userID string) ([]Search, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, keywords, platforms, detail, created_at FROM searches WHERE user_id=$1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Search
	for rows.Next() {
		var (
			sr        Search
			keywords  pq.StringArray
			platforms pq.StringArray
		)
		if err := rows.Scan(&sr.ID, &sr.UserID, &keywords, &platforms, &sr.Detail, &sr.CreatedAt); err != nil {
			return nil, err
		}
		sr.Keywords = keywords
		sr.Platforms = platforms
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (s *Store) GetSearch(ctx context.Context, id, userID string) (Search, error) {
	var (
		sr        Search
		keywords  pq.StringArray
		platforms pq.StringArray
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, keywords, platforms, detail, created_at FROM searches WHERE id=$1 AND user_id=$2`,
		id, userID).Scan(&sr.ID, &sr.UserID, &keywords, &platforms, &sr.Detail, &sr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Search{}, ErrNotFound
	}
	if err != nil {
		return Search{}, err
	}
	sr.Keywords = keywords
	sr.Platforms = platforms
	return sr, nil
}

// ReportRecord is a stored pipeline report. Payload holds the full report
// JSON; summary and total_results are lifted out for listing queries.
type ReportRecord struct {
	ID           string
	SearchID     string
	Summary      string
	TotalResults int
	Payload      []byte
	CreatedAt    time.Time
}

func (s *Store) SaveReport(ctx context.Context, searchID string, report result.Report) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO reports (search_id, summary, total_results, payload) VALUES ($1,$2,$3,$4) RETURNING id`,
		searchID, report.Summary, report.TotalResults, payload).Scan(&id)
	if err != nil {
		return "", err
	}

	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil && reportCounter != nil {
		reportCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("search_id", searchID),
		))
	}
	return id, nil
}

func (s *Store) GetReport(ctx context.Context, id, userID string) (ReportRecord, error) {
	var rec ReportRecord
	err := s.DB.QueryRowContext(ctx,
		`SELECT r.id, r.search_id, r.summary, r.total_results, r.payload, r.created_at
		 FROM reports r JOIN searches s ON s.id = r.search_id
		 WHERE r.id=$1 AND s.user_id=$2`,
		id, userID).Scan(&rec.ID, &rec.SearchID, &rec.Summary, &rec.TotalResults, &rec.Payload, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, ErrNotFound
	}
	return rec, err
}

// LatestReport returns the newest report for a search, scoped to its owner.
func (s *Store) LatestReport(ctx context.Context, searchID, userID string) (ReportRecord, error) {
	var rec ReportRecord
	err := s.DB.QueryRowContext(ctx,
		`SELECT r.id, r.search_id, r.summary, r.total_results, r.payload, r.created_at
		 FROM reports r JOIN searches s ON s.id = r.search_id
		 WHERE r.search_id=$1 AND s.user_id=$2 ORDER BY r.created_at DESC LIMIT 1`,
		searchID, userID).Scan(&rec.ID, &rec.SearchID, &rec.Summary, &rec.TotalResults, &rec.Payload, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *Store) ListReports(ctx context.Context, userID string, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT r.id, r.search_id, r.summary, r.total_results, r.created_at
		 FROM reports r JOIN searches s ON s.id = r.search_id
		 WHERE s.user_id=$1 ORDER BY r.created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		if err := rows.Scan(&rec.ID, &rec.SearchID, &rec.Summary, &rec.TotalResults, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestReportTime returns the creation time of the newest report for a
// search, or nil when none exists yet.
func (s *Store) LatestReportTime(ctx context.Context, searchID string) (*time.Time, error) {
	var t time.Time
	err := s.DB.QueryRowContext(ctx,
		`SELECT created_at FROM reports WHERE search_id=$1 ORDER BY created_at DESC LIMIT 1`,
		searchID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
