package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// PhaseDuration holds duration stats for an orchestration phase.
type PhaseDuration struct {
	Phase string  `json:"phase"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_minutes"`
	P50   float64 `json:"p50_minutes"`
	P95   float64 `json:"p95_minutes"`
}

// QueryPhaseDurations returns average and percentile time spent in each
// phase. Each phase_change event is paired with the most recent prior
// created/phase_change event for the same orchestration; the elapsed time
// is attributed to the phase being left.
func QueryPhaseDurations(database DB, since string) ([]PhaseDuration, error) {
	query := `
		SELECT pe1.orchestration_id, pe1.timestamp as end_ts,
			(SELECT pe2.phase FROM orchestration_events pe2
			 WHERE pe2.orchestration_id = pe1.orchestration_id
			 AND pe2.event IN ('created', 'phase_change')
			 AND pe2.id < pe1.id
			 ORDER BY pe2.id DESC LIMIT 1) as prev_phase,
			(SELECT pe2.timestamp FROM orchestration_events pe2
			 WHERE pe2.orchestration_id = pe1.orchestration_id
			 AND pe2.event IN ('created', 'phase_change')
			 AND pe2.id < pe1.id
			 ORDER BY pe2.id DESC LIMIT 1) as start_ts
		FROM orchestration_events pe1
		WHERE pe1.event = 'phase_change'`

	args := []interface{}{}
	if since != "" {
		query += ` AND pe1.timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query phase durations: %w", err)
	}
	defer rows.Close()

	phaseDurations := make(map[string][]float64)
	for rows.Next() {
		var orchID, endTS string
		var prevPhase, startTS sql.NullString
		if err := rows.Scan(&orchID, &endTS, &prevPhase, &startTS); err != nil {
			return nil, fmt.Errorf("scan phase duration: %w", err)
		}
		if !prevPhase.Valid || prevPhase.String == "" || !startTS.Valid {
			continue
		}
		start, err := parseTimestamp(startTS.String)
		if err != nil {
			continue
		}
		end, err := parseTimestamp(endTS)
		if err != nil {
			continue
		}
		minutes := end.Sub(start).Minutes()
		if minutes > 0 {
			phaseDurations[prevPhase.String] = append(phaseDurations[prevPhase.String], minutes)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []PhaseDuration
	for phase, durations := range phaseDurations {
		sort.Float64s(durations)
		results = append(results, PhaseDuration{
			Phase: phase,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Phase < results[j].Phase
	})
	return results, nil
}

// Outcome holds the terminal outcome distribution of orchestrations.
type Outcome struct {
	Phase string  `json:"phase"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

// QueryOutcomes returns how orchestrations ended, grouped by terminal phase.
func QueryOutcomes(database DB, since string) ([]Outcome, error) {
	query := `
		SELECT phase, COUNT(*) as cnt
		FROM orchestration_events
		WHERE event = 'phase_change'
		AND phase IN ('succeeded', 'blocked', 'timed_out', 'cancelled')`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY phase`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var results []Outcome
	total := 0
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Phase, &o.Count); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		total += o.Count
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Pct = pct(results[i].Count, total)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Count > results[j].Count
	})
	return results, nil
}

// CheckStat holds gate stats for a specific check.
type CheckStat struct {
	Check       string  `json:"check"`
	Total       int     `json:"total"`
	FailRate    float64 `json:"fail_rate_pct"`
	AutoFixRate float64 `json:"auto_fix_rate_pct"`
	AvgMs       float64 `json:"avg_duration_ms"`
}

// QueryCheckStats returns which gate checks fail most and how often the
// failure was auto-fixed in place.
func QueryCheckStats(database DB, since string) ([]CheckStat, error) {
	query := `
		SELECT check_name,
			COUNT(*) as total,
			SUM(CASE WHEN passed = 0 THEN 1 ELSE 0 END) as failed,
			SUM(CASE WHEN auto_fixed = 1 THEN 1 ELSE 0 END) as auto_fixed,
			AVG(duration_ms) as avg_ms
		FROM check_runs
		WHERE 1=1`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY check_name ORDER BY failed DESC`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query check stats: %w", err)
	}
	defer rows.Close()

	var results []CheckStat
	for rows.Next() {
		var checkName string
		var total, failed, autoFixed int
		var avgMs sql.NullFloat64
		if err := rows.Scan(&checkName, &total, &failed, &autoFixed, &avgMs); err != nil {
			return nil, fmt.Errorf("scan check stat: %w", err)
		}
		cs := CheckStat{
			Check:       checkName,
			Total:       total,
			FailRate:    pct(failed, total),
			AutoFixRate: pct(autoFixed, total),
		}
		if avgMs.Valid {
			cs.AvgMs = math.Round(avgMs.Float64*10) / 10
		}
		results = append(results, cs)
	}
	return results, rows.Err()
}

// FixRate holds remediation stats for a failure category.
type FixRate struct {
	Category    string  `json:"category"`
	Total       int     `json:"total"`
	SuccessRate float64 `json:"success_rate_pct"`
	Delegated   float64 `json:"delegated_pct"`
	Remote      float64 `json:"remote_pct"`
}

// QueryFixRates returns fix action success rates per failure category.
func QueryFixRates(database DB, since string) ([]FixRate, error) {
	query := `
		SELECT category,
			COUNT(*) as total,
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) as succeeded,
			SUM(CASE WHEN kind = 'delegate' THEN 1 ELSE 0 END) as delegated,
			SUM(CASE WHEN scope = 'remote' THEN 1 ELSE 0 END) as remote
		FROM fix_actions
		WHERE 1=1`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY category ORDER BY total DESC`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fix rates: %w", err)
	}
	defer rows.Close()

	var results []FixRate
	for rows.Next() {
		var category string
		var total, succeeded, delegated, remote int
		if err := rows.Scan(&category, &total, &succeeded, &delegated, &remote); err != nil {
			return nil, fmt.Errorf("scan fix rate: %w", err)
		}
		results = append(results, FixRate{
			Category:    category,
			Total:       total,
			SuccessRate: pct(succeeded, total),
			Delegated:   pct(delegated, total),
			Remote:      pct(remote, total),
		})
	}
	return results, rows.Err()
}

// IterationStats holds the average fix iterations per orchestration for
// one scope (local gate rounds vs remote remediation attempts).
type IterationStats struct {
	Scope          string  `json:"scope"`
	Orchestrations int     `json:"orchestrations"`
	Total          int     `json:"total_fixes"`
	AvgPerOrch     float64 `json:"avg_per_orchestration"`
}

// QueryIterations returns how many fix iterations orchestrations needed,
// split by local and remote scope.
func QueryIterations(database DB, since string) ([]IterationStats, error) {
	query := `
		SELECT scope,
			COUNT(DISTINCT orchestration_id) as orchs,
			COUNT(*) as total
		FROM fix_actions
		WHERE 1=1`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY scope ORDER BY scope`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query iterations: %w", err)
	}
	defer rows.Close()

	var results []IterationStats
	for rows.Next() {
		var s IterationStats
		if err := rows.Scan(&s.Scope, &s.Orchestrations, &s.Total); err != nil {
			return nil, fmt.Errorf("scan iteration stats: %w", err)
		}
		if s.Orchestrations > 0 {
			s.AvgPerOrch = math.Round(float64(s.Total)/float64(s.Orchestrations)*10) / 10
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// Throughput holds submission metrics for a time period.
type Throughput struct {
	Period    string `json:"period"`
	Started   int    `json:"started"`
	Succeeded int    `json:"succeeded"`
	Blocked   int    `json:"blocked"`
	TimedOut  int    `json:"timed_out"`
}

// QueryThroughput returns submission counts grouped by week.
func QueryThroughput(database DB, since string) ([]Throughput, error) {
	query := `
		SELECT
			strftime('%Y-W%W', timestamp) as period,
			SUM(CASE WHEN event = 'created' THEN 1 ELSE 0 END) as started,
			SUM(CASE WHEN event = 'phase_change' AND phase = 'succeeded' THEN 1 ELSE 0 END) as succeeded,
			SUM(CASE WHEN event = 'phase_change' AND phase = 'blocked' THEN 1 ELSE 0 END) as blocked,
			SUM(CASE WHEN event = 'phase_change' AND phase = 'timed_out' THEN 1 ELSE 0 END) as timed_out
		FROM orchestration_events
		WHERE (event = 'created'
		OR (event = 'phase_change' AND phase IN ('succeeded', 'blocked', 'timed_out')))`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY period ORDER BY period DESC LIMIT 10`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query throughput: %w", err)
	}
	defer rows.Close()

	var results []Throughput
	for rows.Next() {
		var t Throughput
		if err := rows.Scan(&t.Period, &t.Started, &t.Succeeded, &t.Blocked, &t.TimedOut); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
