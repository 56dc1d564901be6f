package main

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS criteria (
		id         TEXT PRIMARY KEY,
		category   TEXT NOT NULL,
		body       TEXT NOT NULL,
		section    TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_criteria_category ON criteria(category);

	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		repo          TEXT NOT NULL,
		period_start  DATETIME NOT NULL,
		period_end    DATETIME NOT NULL,
		commits_seen  INTEGER NOT NULL DEFAULT 0,
		prs_seen      INTEGER NOT NULL DEFAULT 0,
		qualifying    INTEGER NOT NULL DEFAULT 0,
		failed        INTEGER NOT NULL DEFAULT 0,
		report_path   TEXT DEFAULT '',
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS activities (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL,
		activity_id   TEXT NOT NULL,
		title         TEXT NOT NULL,
		description   TEXT NOT NULL,
		timeframe     TEXT NOT NULL,
		uncertainty   TEXT NOT NULL,
		systematic    TEXT NOT NULL,
		advance       TEXT NOT NULL,
		commit_shas   TEXT DEFAULT '',
		pr_numbers    TEXT DEFAULT '',
		confidence    REAL NOT NULL,
		created_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activities_run ON activities(run_id);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// --- Criteria ---

func CountCriteria(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM criteria").Scan(&count)
	return count, err
}

func InsertCriteria(db *sql.DB, chunks []CriterionChunk) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO criteria (id, category, body, section, embedding)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, chunk := range chunks {
		_, err := stmt.Exec(chunk.ID, chunk.Category, chunk.Text, chunk.Section, encodeEmbedding(chunk.Embedding))
		if err != nil {
			return inserted, err
		}
		inserted++
	}

	return inserted, tx.Commit()
}

func LoadCriteria(db *sql.DB) ([]CriterionChunk, error) {
	rows, err := db.Query(`SELECT id, category, body, section, embedding FROM criteria ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []CriterionChunk
	for rows.Next() {
		var chunk CriterionChunk
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.Category, &chunk.Text, &chunk.Section, &blob); err != nil {
			return nil, err
		}
		chunk.Embedding = decodeEmbedding(blob)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func GetCriteriaByCategory(db *sql.DB, category string) ([]string, error) {
	rows, err := db.Query(`SELECT body FROM criteria WHERE category = ? ORDER BY id`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		texts = append(texts, body)
	}
	return texts, rows.Err()
}

// --- Runs ---

type RunRecord struct {
	ID          string
	Repo        string
	PeriodStart time.Time
	PeriodEnd   time.Time
	CommitsSeen int
	PRsSeen     int
	Qualifying  int
	Failed      int
	ReportPath  string
}

func InsertRun(db *sql.DB, r RunRecord) error {
	_, err := db.Exec(
		`INSERT INTO runs (id, repo, period_start, period_end, commits_seen, prs_seen, qualifying, failed, report_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Repo, r.PeriodStart, r.PeriodEnd,
		r.CommitsSeen, r.PRsSeen, r.Qualifying, r.Failed, r.ReportPath,
	)
	return err
}

// --- Activities ---

func InsertActivities(db *sql.DB, runID string, activities []Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO activities
		 (run_id, activity_id, title, description, timeframe, uncertainty, systematic, advance, commit_shas, pr_numbers, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range activities {
		_, err := stmt.Exec(
			runID, a.ID, a.Title, a.Description, a.Timeframe,
			a.TechnologicalUncertainty, a.SystematicInvestigation, a.TechnicalAdvance,
			strings.Join(a.Commits, ","), joinInts(a.PullRequests),
			a.Confidence, a.CreatedAt,
		)
		if err != nil {
			return inserted, err
		}
		inserted++
	}

	return inserted, tx.Commit()
}

func GetActivitiesByRun(db *sql.DB, runID string) ([]Activity, error) {
	rows, err := db.Query(
		`SELECT activity_id, title, description, timeframe, uncertainty, systematic, advance, commit_shas, pr_numbers, confidence, created_at
		 FROM activities WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		var shas, prs string
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Description, &a.Timeframe,
			&a.TechnologicalUncertainty, &a.SystematicInvestigation, &a.TechnicalAdvance,
			&shas, &prs, &a.Confidence, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		if shas != "" {
			a.Commits = strings.Split(shas, ",")
		}
		a.PullRequests = splitInts(prs)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func joinInts(nums []int) string {
	var parts []string
	for _, n := range nums {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
