// Package db 训练运行记录的 sqlite 存储
package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"obesityboard/pipeline"
)

// ErrRunNotFound 指定的运行记录不存在
var ErrRunNotFound = errors.New("run not found")

// ClassMetric 单个类别的评估指标
type ClassMetric struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Run 一次训练运行的摘要
type Run struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	DurationMS    int64         `json:"duration_ms"`
	InputRows     int           `json:"input_rows"`
	KeptRows      int           `json:"kept_rows"`
	Removed       int           `json:"removed"`
	LowerBound    float64       `json:"lower_bound"`
	UpperBound    float64       `json:"upper_bound"`
	TreeCount     int           `json:"tree_count"`
	Seed          int64         `json:"seed"`
	TestFraction  float64       `json:"test_fraction"`
	Accuracy      float64       `json:"accuracy"`
	MacroF1       float64       `json:"macro_f1"`
	WeightedF1    float64       `json:"weighted_f1"`
	QualityIssues int           `json:"quality_issues"`
	Classes       []ClassMetric `json:"classes,omitempty"`
}

// Store sqlite 运行日志
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件并建表
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create database dir %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "open database failed")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create tables failed")
	}
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS training_runs (
            id TEXT PRIMARY KEY,
            started_at INTEGER NOT NULL,
            duration_ms INTEGER NOT NULL,
            input_rows INTEGER NOT NULL,
            kept_rows INTEGER NOT NULL,
            removed INTEGER NOT NULL,
            lower_bound REAL NOT NULL,
            upper_bound REAL NOT NULL,
            tree_count INTEGER NOT NULL,
            seed INTEGER NOT NULL,
            test_fraction REAL NOT NULL,
            accuracy REAL NOT NULL,
            macro_f1 REAL NOT NULL,
            weighted_f1 REAL NOT NULL,
            quality_issues INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS class_metrics (
            run_id TEXT NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            class TEXT NOT NULL,
            precision REAL NOT NULL,
            recall REAL NOT NULL,
            f1 REAL NOT NULL,
            support INTEGER NOT NULL,
            PRIMARY KEY (run_id, class)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs(started_at DESC)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// FromResult 把流水线结果转换为运行摘要
func FromResult(result *pipeline.Result) Run {
	run := Run{
		ID:            result.RunID,
		StartedAt:     result.StartedAt,
		DurationMS:    result.Duration.Milliseconds(),
		InputRows:     result.InputRows,
		KeptRows:      len(result.Records),
		Removed:       result.Removed,
		LowerBound:    result.Bounds.Lower,
		UpperBound:    result.Bounds.Upper,
		TreeCount:     result.Config.TreeCount,
		Seed:          result.Config.Seed,
		TestFraction:  result.Config.TestFraction,
		QualityIssues: len(result.Quality),
	}
	if r := result.Report; r != nil {
		run.Accuracy = r.Accuracy
		run.MacroF1 = r.MacroAvg.F1
		run.WeightedF1 = r.WeightedAvg.F1
		for _, c := range r.Classes {
			run.Classes = append(run.Classes, ClassMetric{
				Class: c.Class, Precision: c.Precision, Recall: c.Recall, F1: c.F1, Support: c.Support,
			})
		}
	}
	return run
}

// SaveRun 在一个事务内写入运行摘要和各类别指标
func (s *Store) SaveRun(ctx context.Context, result *pipeline.Result) error {
	if result == nil {
		return errors.New("nil result")
	}
	run := FromResult(result)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO training_runs (id, started_at, duration_ms, input_rows, kept_rows, removed,
            lower_bound, upper_bound, tree_count, seed, test_fraction, accuracy, macro_f1, weighted_f1, quality_issues)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.DurationMS, run.InputRows, run.KeptRows, run.Removed,
		run.LowerBound, run.UpperBound, run.TreeCount, run.Seed, run.TestFraction,
		run.Accuracy, run.MacroF1, run.WeightedF1, run.QualityIssues)
	if err != nil {
		return errors.Wrapf(err, "insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO class_metrics (run_id, position, class, precision, recall, f1, support)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare class metrics")
	}
	defer stmt.Close()
	for i, c := range run.Classes {
		if _, err := stmt.ExecContext(ctx, run.ID, i, c.Class, c.Precision, c.Recall, c.F1, c.Support); err != nil {
			return errors.Wrapf(err, "insert class %s", c.Class)
		}
	}
	return errors.Wrap(tx.Commit(), "commit run")
}

const runColumns = `id, started_at, duration_ms, input_rows, kept_rows, removed, lower_bound, upper_bound,
    tree_count, seed, test_fraction, accuracy, macro_f1, weighted_f1, quality_issues`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var started int64
	err := row.Scan(&run.ID, &started, &run.DurationMS, &run.InputRows, &run.KeptRows, &run.Removed,
		&run.LowerBound, &run.UpperBound, &run.TreeCount, &run.Seed, &run.TestFraction,
		&run.Accuracy, &run.MacroF1, &run.WeightedF1, &run.QualityIssues)
	run.StartedAt = time.UnixMilli(started).UTC()
	return run, err
}

// ListRuns 按开始时间倒序返回最近的运行，limit <= 0 表示不限
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		classes, err := s.classMetrics(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Classes = classes
	}
	return runs, nil
}

// GetRun 按ID读取一次运行
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, errors.Wrap(ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, errors.Wrapf(err, "get run %s", id)
	}
	run.Classes, err = s.classMetrics(ctx, id)
	return run, err
}

func (s *Store) classMetrics(ctx context.Context, runID string) ([]ClassMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT class, precision, recall, f1, support FROM class_metrics
        WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "query class metrics for %s", runID)
	}
	defer rows.Close()

	var out []ClassMetric
	for rows.Next() {
		var c ClassMetric
		if err := rows.Scan(&c.Class, &c.Precision, &c.Recall, &c.F1, &c.Support); err != nil {
			return nil, errors.Wrap(err, "scan class metric")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}
