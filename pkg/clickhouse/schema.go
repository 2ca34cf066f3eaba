package clickhouse

import "fmt"

// StageRunsTable holds one row per pipeline stage execution. Rows expire
// after 30 days.
func StageRunsTable(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts          DateTime64(3, 'UTC'),
	run_id      String,
	pipeline    LowCardinality(String),
	stage       LowCardinality(String),
	attempts    UInt8,
	outcome     LowCardinality(String),
	error       String,
	duration_ms Float64
) ENGINE = MergeTree
PARTITION BY toYYYYMMDD(ts)
ORDER BY (pipeline, stage, ts)
TTL toDateTime(ts) + INTERVAL 30 DAY`, table),
	}
}
