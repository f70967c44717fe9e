package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fairrate/internal/model"
)

// sqliteTimeLayout is fixed width so that stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLRepository struct {
	db      *sql.DB
	dialect string
}

func NewSQLRepository(db *sql.DB, dialect string) (*SQLRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	d := strings.ToLower(strings.TrimSpace(dialect))
	if d == "" {
		return nil, fmt.Errorf("empty dialect")
	}
	if d != "postgres" && d != "sqlite" && d != "mysql" {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	return &SQLRepository{db: db, dialect: d}, nil
}

func (s *SQLRepository) CountFactors(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ppp_factors`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLRepository) InsertFactors(ctx context.Context, factors []model.PPPFactor) (int, error) {
	for _, f := range factors {
		if err := validateFactor(f); err != nil {
			return 0, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT IGNORE INTO ppp_factors (country, factor, last_updated) VALUES (?, ?, ?)`
	default:
		query = `INSERT INTO ppp_factors (country, factor, last_updated) VALUES (` + s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `) ON CONFLICT (country) DO NOTHING`
	}
	inserted := 0
	for _, f := range factors {
		updated := f.LastUpdated
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx, query, f.Country, f.Factor, s.tsValue(updated))
		if err != nil {
			return inserted, fmt.Errorf("insert factor %q: %w", f.Country, err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLRepository) GetFactor(ctx context.Context, country string) (model.PPPFactor, error) {
	query := `SELECT country, factor, last_updated FROM ppp_factors WHERE country = ` + s.ph(1)
	var f model.PPPFactor
	var updatedRaw interface{}
	err := s.db.QueryRowContext(ctx, query, country).Scan(&f.Country, &f.Factor, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PPPFactor{}, ErrNotFound
	}
	if err != nil {
		return model.PPPFactor{}, err
	}
	if f.LastUpdated, err = parseTimeRaw(updatedRaw); err != nil {
		return model.PPPFactor{}, err
	}
	return f, nil
}

func (s *SQLRepository) ListCountries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT country FROM ppp_factors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var country string
		if err := rows.Scan(&country); err != nil {
			return nil, err
		}
		out = append(out, country)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Database collations differ; the contract is byte order.
	sort.Strings(out)
	return out, nil
}

func (s *SQLRepository) IncrementStat(ctx context.Context, day string, counter Counter, amount int64) error {
	if strings.TrimSpace(day) == "" || !counter.Valid() || amount < 0 {
		return ErrInvalidInput
	}
	var views, calculations int64
	switch counter {
	case CounterViews:
		views = amount
	case CounterCalculations:
		calculations = amount
	}
	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT INTO daily_stats (day, views, calculations) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE views = views + VALUES(views), calculations = calculations + VALUES(calculations)`
	default:
		query = `INSERT INTO daily_stats (day, views, calculations) VALUES (` + s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `)
ON CONFLICT (day) DO UPDATE SET views = daily_stats.views + excluded.views, calculations = daily_stats.calculations + excluded.calculations`
	}
	_, err := s.db.ExecContext(ctx, query, day, views, calculations)
	return err
}

func (s *SQLRepository) RecentStats(ctx context.Context, limit int) ([]model.DailyStat, error) {
	if limit <= 0 {
		return []model.DailyStat{}, nil
	}
	query := `SELECT day, views, calculations FROM daily_stats ORDER BY day DESC LIMIT ` + s.ph(1)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.DailyStat, 0, limit)
	for rows.Next() {
		var row model.DailyStat
		if err := rows.Scan(&row.Date, &row.Views, &row.Calculations); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLRepository) CreateSession(ctx context.Context, session model.AdminSession) error {
	if strings.TrimSpace(session.Token) == "" || session.ExpiresAt.IsZero() {
		return ErrInvalidInput
	}
	lastAccess := session.LastAccess
	if lastAccess.IsZero() {
		lastAccess = time.Now().UTC()
	}
	query := `INSERT INTO admin_sessions (token, expires_at, last_access) VALUES (` + s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `)`
	if _, err := s.db.ExecContext(ctx, query, session.Token, s.tsValue(session.ExpiresAt), s.tsValue(lastAccess)); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *SQLRepository) GetSession(ctx context.Context, token string) (model.AdminSession, error) {
	query := `SELECT token, expires_at, last_access FROM admin_sessions WHERE token = ` + s.ph(1)
	var out model.AdminSession
	var expiresRaw, accessRaw interface{}
	err := s.db.QueryRowContext(ctx, query, token).Scan(&out.Token, &expiresRaw, &accessRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AdminSession{}, ErrNotFound
	}
	if err != nil {
		return model.AdminSession{}, err
	}
	if out.ExpiresAt, err = parseTimeRaw(expiresRaw); err != nil {
		return model.AdminSession{}, err
	}
	if out.LastAccess, err = parseTimeRaw(accessRaw); err != nil {
		return model.AdminSession{}, err
	}
	return out, nil
}

func (s *SQLRepository) TouchSession(ctx context.Context, token string, at time.Time) error {
	query := `UPDATE admin_sessions SET last_access = ` + s.ph(1) + ` WHERE token = ` + s.ph(2)
	result, err := s.db.ExecContext(ctx, query, s.tsValue(at), token)
	if err != nil {
		return err
	}
	// MySQL reports zero affected rows when the value is unchanged, so only
	// the other dialects can detect a missing row here.
	if s.dialect != "mysql" {
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *SQLRepository) DeleteSession(ctx context.Context, token string) error {
	query := `DELETE FROM admin_sessions WHERE token = ` + s.ph(1)
	_, err := s.db.ExecContext(ctx, query, token)
	return err
}

func (s *SQLRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM admin_sessions WHERE expires_at < ` + s.ph(1)
	result, err := s.db.ExecContext(ctx, query, s.tsValue(before))
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *SQLRepository) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLRepository) tsValue(t time.Time) interface{} {
	if s.dialect == "sqlite" {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func parseTimeRaw(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTimeString(string(t))
	case string:
		return parseTimeString(t)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}

func parseTimeString(in string) (time.Time, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return time.Time{}, nil
	}
	formats := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07:00", "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05"}
	for _, f := range formats {
		if t, err := time.Parse(f, in); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %s", in)
}
