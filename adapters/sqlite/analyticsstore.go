package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/domain/retention"
	"github.com/ambrood/sitepulse/ports"
)

// AnalyticsStore implements ports.AnalyticsStore using SQLite.
type AnalyticsStore struct {
	db *DB
}

// NewAnalyticsStore creates a new SQLite analytics store.
func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// Timestamps are stored and compared as UTC ISO8601 strings.
const timeLayout = "2006-01-02 15:04:05"

func ts(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// RecordEvent writes session upsert, event row, and page-view projection in
// one transaction. The session upsert relies on SQLite's conflict
// resolution rather than application locking; a concurrent first event for
// the same new session resolves to a single row.
func (s *AnalyticsStore) RecordEvent(ctx context.Context, e event.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingest tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, user_agent, ip_address, country, city, device, browser,
			start_time, end_time, page_views
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(session_id) DO UPDATE SET
			end_time = excluded.end_time,
			page_views = page_views + 1
	`, e.SessionID, e.UserAgent, e.IPAddress, e.Country, e.City, e.Device, e.Browser,
		ts(e.Timestamp), ts(e.Timestamp))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (
			id, page_url, page_title, referrer, user_agent, ip_address,
			country, city, device, browser, session_id, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.PageURL, e.PageTitle, e.Referrer, e.UserAgent, e.IPAddress,
		e.Country, e.City, e.Device, e.Browser, e.SessionID, ts(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO page_views (id, page_url, session_id, timestamp)
		VALUES (?, ?, ?, ?)
	`, e.ID, e.PageURL, e.SessionID, ts(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}

	return tx.Commit()
}

// GetSession retrieves one session by key.
func (s *AnalyticsStore) GetSession(ctx context.Context, sessionID string) (event.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_agent, ip_address, country, city, device, browser,
		       start_time, end_time, page_views
		FROM sessions
		WHERE session_id = ?
	`, sessionID)

	// The columns are declared DATETIME, so the driver hands back time.Time.
	var sess event.Session
	err := row.Scan(&sess.SessionID, &sess.UserAgent, &sess.IPAddress, &sess.Country,
		&sess.City, &sess.Device, &sess.Browser, &sess.StartTime, &sess.EndTime, &sess.PageViews)
	if err != nil {
		return event.Session{}, err
	}
	sess.StartTime = sess.StartTime.UTC()
	sess.EndTime = sess.EndTime.UTC()
	return sess, nil
}

// likeEscaper neutralizes LIKE metacharacters so filter values match
// literally, the same way the in-memory store's substring match does.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(v string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
}

// pageViewWhere builds the WHERE clause for page_views queries.
func pageViewWhere(p query.Params) (string, []any) {
	where := "timestamp >= ? AND timestamp < ?"
	args := []any{ts(p.Start), ts(p.End)}
	if p.Filters.Page != "" {
		where += ` AND LOWER(page_url) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(p.Filters.Page))
	}
	return where, args
}

// sessionWhere builds the WHERE clause for sessions queries.
func sessionWhere(p query.Params) (string, []any) {
	where := "start_time >= ? AND start_time < ?"
	args := []any{ts(p.Start), ts(p.End)}
	for _, f := range []struct {
		col, val string
	}{
		{"country", p.Filters.Country},
		{"device", p.Filters.Device},
		{"browser", p.Filters.Browser},
	} {
		if f.val != "" {
			where += " AND LOWER(" + f.col + `) LIKE ? ESCAPE '\'`
			args = append(args, likePattern(f.val))
		}
	}
	return where, args
}

// QueryExact answers from row-level data.
func (s *AnalyticsStore) QueryExact(ctx context.Context, p query.Params) (query.Result, error) {
	result := query.ZeroResult(false)

	var err error
	if result.TotalViews, err = s.CountRecords(ctx, p); err != nil {
		return query.Result{}, err
	}
	if result.UniqueVisitors, result.BounceRate, err = s.sessionCounts(ctx, p); err != nil {
		return query.Result{}, err
	}
	if result.TopPages, err = s.topPages(ctx, p); err != nil {
		return query.Result{}, err
	}
	if result.DeviceStats, err = s.groupSessions(ctx, p, "device"); err != nil {
		return query.Result{}, err
	}
	if result.BrowserStats, err = s.groupSessions(ctx, p, "browser"); err != nil {
		return query.Result{}, err
	}
	if result.DailyViews, err = s.dailyViews(ctx, p); err != nil {
		return query.Result{}, err
	}
	if result.RecentVisitors, err = s.recentVisitors(ctx, p); err != nil {
		return query.Result{}, err
	}
	return result, nil
}

// QueryAggregated answers with weekly buckets and no visitor rows. Daily
// counts come from one grouped scan and roll up into ISO weeks client-side;
// SQLite's strftime week numbering is not ISO.
func (s *AnalyticsStore) QueryAggregated(ctx context.Context, p query.Params) (query.Result, error) {
	result := query.ZeroResult(true)

	var err error
	if result.TotalViews, err = s.CountRecords(ctx, p); err != nil {
		return query.Result{}, err
	}
	if result.UniqueVisitors, result.BounceRate, err = s.sessionCounts(ctx, p); err != nil {
		return query.Result{}, err
	}
	if result.TopPages, err = s.topPages(ctx, p); err != nil {
		return query.Result{}, err
	}
	if result.DeviceStats, err = s.groupSessions(ctx, p, "device"); err != nil {
		return query.Result{}, err
	}
	if result.BrowserStats, err = s.groupSessions(ctx, p, "browser"); err != nil {
		return query.Result{}, err
	}

	daily, err := s.dailyViews(ctx, p)
	if err != nil {
		return query.Result{}, err
	}
	result.WeeklyViews = rollUpWeeks(daily)
	return result, nil
}

// CountRecords returns page views in range matching the page filter.
func (s *AnalyticsStore) CountRecords(ctx context.Context, p query.Params) (int64, error) {
	where, args := pageViewWhere(p)
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM page_views WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count page views: %w", err)
	}
	return n, nil
}

func (s *AnalyticsStore) sessionCounts(ctx context.Context, p query.Params) (visitors int64, bounceRate float64, err error) {
	where, args := sessionWhere(p)
	var single int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN page_views = 1 THEN 1 ELSE 0 END), 0)
		FROM sessions WHERE `+where, args...).Scan(&visitors, &single)
	if err != nil {
		return 0, 0, fmt.Errorf("count sessions: %w", err)
	}
	return visitors, query.BounceRate(single, visitors), nil
}

func (s *AnalyticsStore) topPages(ctx context.Context, p query.Params) ([]query.PageCount, error) {
	where, args := pageViewWhere(p)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT page_url, COUNT(*) AS views
		FROM page_views
		WHERE %s
		GROUP BY page_url
		ORDER BY views DESC, page_url ASC
		LIMIT %d
	`, where, query.TopPagesLimit), args...)
	if err != nil {
		return nil, fmt.Errorf("top pages: %w", err)
	}
	defer rows.Close()

	out := []query.PageCount{}
	for rows.Next() {
		var pc query.PageCount
		if err := rows.Scan(&pc.URL, &pc.Views); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *AnalyticsStore) groupSessions(ctx context.Context, p query.Params, col string) ([]query.NameCount, error) {
	where, args := sessionWhere(p)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, COUNT(*) AS cnt
		FROM sessions
		WHERE %s
		GROUP BY %s
		ORDER BY cnt DESC, %s ASC
	`, col, where, col, col), args...)
	if err != nil {
		return nil, fmt.Errorf("group sessions by %s: %w", col, err)
	}
	defer rows.Close()

	out := []query.NameCount{}
	for rows.Next() {
		var nc query.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

func (s *AnalyticsStore) dailyViews(ctx context.Context, p query.Params) ([]query.BucketCount, error) {
	where, args := pageViewWhere(p)
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', timestamp) AS day, COUNT(*) AS views
		FROM page_views
		WHERE `+where+`
		GROUP BY day
		ORDER BY day ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("daily views: %w", err)
	}
	defer rows.Close()

	out := []query.BucketCount{}
	for rows.Next() {
		var bc query.BucketCount
		if err := rows.Scan(&bc.Bucket, &bc.Count); err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func (s *AnalyticsStore) recentVisitors(ctx context.Context, p query.Params) ([]query.Visitor, error) {
	where, args := sessionWhere(p)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT session_id, country, city, device, browser, start_time, page_views
		FROM sessions
		WHERE %s
		ORDER BY start_time DESC
		LIMIT %d
	`, where, query.RecentVisitorsLimit), args...)
	if err != nil {
		return nil, fmt.Errorf("recent visitors: %w", err)
	}
	defer rows.Close()

	out := []query.Visitor{}
	for rows.Next() {
		var v query.Visitor
		if err := rows.Scan(&v.SessionID, &v.Country, &v.City, &v.Device, &v.Browser, &v.StartTime, &v.PageViews); err != nil {
			return nil, err
		}
		v.StartTime = v.StartTime.UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// rollUpWeeks folds daily buckets into ISO-week buckets.
func rollUpWeeks(daily []query.BucketCount) []query.BucketCount {
	out := []query.BucketCount{}
	idx := map[string]int{}
	for _, d := range daily {
		day, err := time.ParseInLocation("2006-01-02", d.Bucket, time.UTC)
		if err != nil {
			continue
		}
		week := query.WeekBucket(day)
		if i, ok := idx[week]; ok {
			out[i].Count += d.Count
		} else {
			idx[week] = len(out)
			out = append(out, query.BucketCount{Bucket: week, Count: d.Count})
		}
	}
	return out
}

// PeakHour returns the busiest hour-of-day in range.
func (s *AnalyticsStore) PeakHour(ctx context.Context, start, end time.Time) (int, int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT CAST(strftime('%H', timestamp) AS INTEGER) AS hour, COUNT(*) AS cnt
		FROM events
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY hour
		ORDER BY cnt DESC, hour ASC
		LIMIT 1
	`, ts(start), ts(end))

	var hour int
	var count int64
	err := row.Scan(&hour, &count)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("peak hour: %w", err)
	}
	return hour, count, nil
}

// Sweep deletes rows strictly older than the cutoff: facts first, sessions
// last. The three deletes are separate statements; a failure mid-way leaves
// a state the next (idempotent) sweep repairs.
func (s *AnalyticsStore) Sweep(ctx context.Context, cutoff time.Time) (retention.Result, error) {
	result := retention.Result{Cutoff: cutoff}

	deletes := []struct {
		stmt string
		dest *int64
	}{
		{"DELETE FROM events WHERE timestamp < ?", &result.EventsDeleted},
		{"DELETE FROM page_views WHERE timestamp < ?", &result.PageViewsDeleted},
		{"DELETE FROM sessions WHERE start_time < ?", &result.SessionsDeleted},
	}
	for _, d := range deletes {
		res, err := s.db.ExecContext(ctx, d.stmt, ts(cutoff))
		if err != nil {
			return result, fmt.Errorf("retention delete: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("rows affected: %w", err)
		}
		*d.dest = n
	}

	return result, nil
}

// Ping verifies the database is reachable.
func (s *AnalyticsStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Ensure interface compliance.
var _ ports.AnalyticsStore = (*AnalyticsStore)(nil)
