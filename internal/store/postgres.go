package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/onnwee/layout-engine/internal/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implements Store on top of a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection. A non-zero
// statement timeout is applied server-side to every statement on the
// connection.
func Open(databaseURL string, statementTimeout time.Duration) (*Postgres, error) {
	dsn, err := withStatementTimeout(databaseURL, statementTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// withStatementTimeout injects a statement_timeout runtime parameter into a
// postgres:// URL. lib/pq forwards unrecognized query parameters to the
// server at connection startup.
func withStatementTimeout(databaseURL string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return databaseURL, nil
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("statement_timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EnsureSchema creates the tables the engine needs if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	_, err := p.db.ExecContext(ctx, schemaSQL)
	p.observe("ensure_schema", start, err)
	return err
}

func (p *Postgres) observe(op string, start time.Time, err error) {
	metrics.DBOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBOperationErrors.WithLabelValues(op).Inc()
	}
}

func (p *Postgres) LoadGraph(ctx context.Context, maxNodes int) (*Graph, error) {
	start := time.Now()
	g, err := p.loadGraph(ctx, maxNodes)
	p.observe("load_graph", start, err)
	return g, err
}

func (p *Postgres) loadGraph(ctx context.Context, maxNodes int) (*Graph, error) {
	query := `
		SELECT id, name, COALESCE(val, 0), COALESCE(type, ''), pos_x, pos_y
		FROM graph_nodes
		ORDER BY val DESC NULLS LAST, id`
	args := []any{}
	if maxNodes > 0 {
		query += " LIMIT $1"
		args = append(args, maxNodes)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	g := &Graph{}
	ids := make([]string, 0, 256)
	for rows.Next() {
		var n Node
		var px, py sql.NullFloat64
		if err := rows.Scan(&n.ID, &n.Name, &n.Val, &n.Type, &px, &py); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if px.Valid && py.Valid {
			n.X, n.Y = px.Float64, py.Float64
			n.HasPosition = true
		}
		g.Nodes = append(g.Nodes, n)
		ids = append(ids, n.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return g, nil
	}

	linkRows, err := p.db.QueryContext(ctx, `
		SELECT source, target
		FROM graph_links
		WHERE source = ANY($1) AND target = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var l Link
		if err := linkRows.Scan(&l.Source, &l.Target); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		g.Links = append(g.Links, l)
	}
	return g, linkRows.Err()
}

func (p *Postgres) LoadPositions(ctx context.Context) ([]Position, error) {
	start := time.Now()
	positions, err := p.loadPositions(ctx)
	p.observe("load_positions", start, err)
	return positions, err
}

func (p *Postgres) loadPositions(ctx context.Context) ([]Position, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, pos_x, pos_y
		FROM graph_nodes
		WHERE pos_x IS NOT NULL AND pos_y IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.ID, &pos.X, &pos.Y); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// SavePositions updates node positions in batches. Each batch binds three
// parallel arrays and joins them against graph_nodes with unnest, which keeps
// the statement size constant regardless of batch size.
func (p *Postgres) SavePositions(ctx context.Context, positions []Position, batchSize int) (int, error) {
	if len(positions) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 5000
	}

	start := time.Now()
	written := 0
	var err error
	for lo := 0; lo < len(positions); lo += batchSize {
		hi := min(lo+batchSize, len(positions))
		batch := positions[lo:hi]

		ids := make([]string, len(batch))
		xs := make([]float64, len(batch))
		ys := make([]float64, len(batch))
		for i, pos := range batch {
			ids[i] = pos.ID
			xs[i] = pos.X
			ys[i] = pos.Y
		}

		var res sql.Result
		res, err = p.db.ExecContext(ctx, `
			UPDATE graph_nodes AS n
			SET pos_x = u.x, pos_y = u.y, updated_at = now()
			FROM unnest($1::text[], $2::float8[], $3::float8[]) AS u(id, x, y)
			WHERE n.id = u.id`,
			pq.Array(ids), pq.Array(xs), pq.Array(ys))
		if err != nil {
			err = fmt.Errorf("update positions %d-%d: %w", lo, hi, err)
			break
		}
		if affected, aerr := res.RowsAffected(); aerr == nil {
			written += int(affected)
		} else {
			written += len(batch)
		}
	}
	p.observe("save_positions", start, err)
	return written, err
}

func (p *Postgres) RecordLayoutRun(ctx context.Context, run LayoutRun) (int64, error) {
	start := time.Now()
	stats := pqtype.NullRawMessage{RawMessage: run.Stats, Valid: len(run.Stats) > 0}

	var id int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO layout_runs (started_at, finished_at, status, stats)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		run.StartedAt, run.FinishedAt, run.Status, stats).Scan(&id)
	p.observe("record_layout_run", start, err)
	return id, err
}

func (p *Postgres) LatestLayoutRun(ctx context.Context) (*LayoutRun, error) {
	start := time.Now()
	run, err := p.latestLayoutRun(ctx)
	p.observe("latest_layout_run", start, err)
	return run, err
}

func (p *Postgres) latestLayoutRun(ctx context.Context) (*LayoutRun, error) {
	var run LayoutRun
	var stats pqtype.NullRawMessage
	err := p.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, stats
		FROM layout_runs
		ORDER BY id DESC
		LIMIT 1`).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &stats)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	if stats.Valid {
		run.Stats = stats.RawMessage
	}
	return &run, nil
}

func (p *Postgres) CountNodes(ctx context.Context) (int64, error) {
	return p.count(ctx, "count_nodes", "graph_nodes")
}

func (p *Postgres) CountLinks(ctx context.Context) (int64, error) {
	return p.count(ctx, "count_links", "graph_links")
}

func (p *Postgres) count(ctx context.Context, op, table string) (int64, error) {
	start := time.Now()
	var n int64
	err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n)
	p.observe(op, start, err)
	return n, err
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
