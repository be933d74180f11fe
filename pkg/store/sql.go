package store

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS cycles (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	averages    INTEGER NOT NULL,
	counter     INTEGER NOT NULL,
	ch1         REAL,
	ch2         REAL,
	ch3         REAL,
	ch4         REAL
);
CREATE INDEX IF NOT EXISTS idx_cycles_timestamp ON cycles(timestamp);
`

const insertCycleSQL = `
INSERT INTO cycles (timestamp, duration_ns, averages, counter, ch1, ch2, ch3, ch4)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const selectRecentCyclesSQL = `
SELECT id, timestamp, duration_ns, averages, counter, ch1, ch2, ch3, ch4
FROM cycles
ORDER BY timestamp DESC, id DESC
LIMIT ?
`
