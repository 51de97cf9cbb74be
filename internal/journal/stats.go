package journal

import (
	"context"
	"os"
)

// Stats holds journal statistics.
type Stats struct {
	DBPath      string         `json:"db_path"`
	DBSizeBytes int64          `json:"db_size_bytes"`
	TotalCycles int            `json:"total_cycles"`
	Operations  map[string]int `json:"operations"`
	Sites       []SiteStats    `json:"sites"`
}

// SiteStats holds per-site counts.
type SiteStats struct {
	Site     string `json:"site"`
	Cycles   int    `json:"cycles"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
	Memories int    `json:"memories_injected"`
}

// Stats returns journal statistics.
func (j *SQLiteJournal) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, Operations: make(map[string]int)}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycles`).Scan(&st.TotalCycles)

	ops, err := j.db.QueryContext(ctx, `SELECT event, COUNT(*) FROM operations GROUP BY event`)
	if err != nil {
		return st, err
	}
	for ops.Next() {
		var event string
		var n int
		ops.Scan(&event, &n)
		st.Operations[event] = n
	}
	ops.Close()

	rows, err := j.db.QueryContext(ctx, `
		SELECT site, COUNT(*) AS cnt,
		       SUM(CASE WHEN outcome = 'sent' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = 'send_failed' OR search_error IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(memories)
		FROM cycles GROUP BY site ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var s SiteStats
		rows.Scan(&s.Site, &s.Cycles, &s.Sent, &s.Failed, &s.Memories)
		st.Sites = append(st.Sites, s)
	}

	return st, nil
}
