package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/treetopdevs/loomteams/pkg/decisions"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable Store implementation, backed by
// modernc.org/sqlite (pure-Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS keepers (
			id TEXT PRIMARY KEY, team_id TEXT, topic TEXT, source_agent TEXT,
			messages JSON, token_count INTEGER, metadata JSON, status TEXT, created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS team_tasks (
			id TEXT PRIMARY KEY, team_id TEXT, title TEXT, description TEXT, status TEXT,
			owner TEXT, priority INTEGER, model_hint TEXT, role TEXT, task_type TEXT,
			result TEXT, cost_usd REAL, tokens_used INTEGER, inserted_at DATETIME, updated_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS team_task_deps (
			team_id TEXT, from_id TEXT, to_id TEXT, kind TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS decision_nodes (
			id TEXT PRIMARY KEY, team_id TEXT, kind TEXT, author TEXT, content TEXT,
			metadata JSON, created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS decision_edges (
			team_id TEXT, kind TEXT, from_id TEXT, to_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS agent_metrics (
			team_id TEXT, agent_name TEXT, task_id TEXT, success INTEGER,
			duration_ms INTEGER, recorded_at DATETIME
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertKeeper(ctx context.Context, row KeeperRow) error {
	msgs, err := json.Marshal(row.Messages)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(row.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO keepers (id, team_id, topic, source_agent, messages, token_count, metadata, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic, source_agent=excluded.source_agent, messages=excluded.messages,
			token_count=excluded.token_count, metadata=excluded.metadata, status=excluded.status`,
		row.ID, row.TeamID, row.Topic, row.SourceAgent, msgs, row.TokenCount, meta, row.Status, row.CreatedAt)
	return err
}

func (s *SQLiteStore) FetchKeeper(ctx context.Context, id string) (KeeperRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, topic, source_agent, messages, token_count, metadata, status, created_at
		FROM keepers WHERE id=?`, id)
	var out KeeperRow
	var msgs, meta []byte
	if err := row.Scan(&out.ID, &out.TeamID, &out.Topic, &out.SourceAgent, &msgs, &out.TokenCount, &meta, &out.Status, &out.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return KeeperRow{}, ErrNotFound
		}
		return KeeperRow{}, err
	}
	if err := json.Unmarshal(msgs, &out.Messages); err != nil {
		return KeeperRow{}, err
	}
	if err := json.Unmarshal(meta, &out.Metadata); err != nil {
		return KeeperRow{}, err
	}
	return out, nil
}

func (s *SQLiteStore) InsertTask(ctx context.Context, row TaskRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_tasks (id, team_id, title, description, status, owner, priority,
			model_hint, role, task_type, result, cost_usd, tokens_used, inserted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.TeamID, row.Title, row.Description, row.Status, row.Owner, row.Priority,
		row.ModelHint, row.Role, row.TaskType, row.Result, row.CostUSD, row.TokensUsed,
		row.InsertedAt, row.UpdatedAt)
	return err
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, row TaskRow) (TaskRow, error) {
	row.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE team_tasks SET title=?, description=?, status=?, owner=?, priority=?,
			model_hint=?, role=?, task_type=?, result=?, cost_usd=?, tokens_used=?, updated_at=?
		WHERE id=?`,
		row.Title, row.Description, row.Status, row.Owner, row.Priority,
		row.ModelHint, row.Role, row.TaskType, row.Result, row.CostUSD, row.TokensUsed,
		row.UpdatedAt, row.ID)
	if err != nil {
		return TaskRow{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return TaskRow{}, err
	}
	if n == 0 {
		return TaskRow{}, ErrNotFound
	}
	return row, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (TaskRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, title, description, status, owner, priority, model_hint, role,
			task_type, result, cost_usd, tokens_used, inserted_at, updated_at
		FROM team_tasks WHERE id=?`, id)
	return scanTaskRow(row)
}

func scanTaskRow(row *sql.Row) (TaskRow, error) {
	var t TaskRow
	if err := row.Scan(&t.ID, &t.TeamID, &t.Title, &t.Description, &t.Status, &t.Owner, &t.Priority,
		&t.ModelHint, &t.Role, &t.TaskType, &t.Result, &t.CostUSD, &t.TokensUsed, &t.InsertedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return TaskRow{}, ErrNotFound
		}
		return TaskRow{}, err
	}
	return t, nil
}

func (s *SQLiteStore) ListTasksByTeam(ctx context.Context, teamID string) ([]TaskRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, title, description, status, owner, priority, model_hint, role,
			task_type, result, cost_usd, tokens_used, inserted_at, updated_at
		FROM team_tasks WHERE team_id=? ORDER BY priority ASC, inserted_at ASC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

func (s *SQLiteStore) ListTasksByAgent(ctx context.Context, teamID, agentName string) ([]TaskRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, title, description, status, owner, priority, model_hint, role,
			task_type, result, cost_usd, tokens_used, inserted_at, updated_at
		FROM team_tasks WHERE team_id=? AND owner=? ORDER BY priority ASC, inserted_at ASC`, teamID, agentName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

func scanTaskRows(rows *sql.Rows) ([]TaskRow, error) {
	var out []TaskRow
	for rows.Next() {
		var t TaskRow
		if err := rows.Scan(&t.ID, &t.TeamID, &t.Title, &t.Description, &t.Status, &t.Owner, &t.Priority,
			&t.ModelHint, &t.Role, &t.TaskType, &t.Result, &t.CostUSD, &t.TokensUsed, &t.InsertedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertTaskDep(ctx context.Context, dep TaskDep) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO team_task_deps (team_id, from_id, to_id, kind) VALUES (?, ?, ?, ?)`,
		dep.TeamID, dep.FromID, dep.ToID, dep.Kind)
	return err
}

func (s *SQLiteStore) ListTaskDeps(ctx context.Context, teamID string) ([]TaskDep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id, from_id, to_id, kind FROM team_task_deps WHERE team_id=?`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskDep
	for rows.Next() {
		var d TaskDep
		if err := rows.Scan(&d.TeamID, &d.FromID, &d.ToID, &d.Kind); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SumTaskCostByTeam(ctx context.Context, teamID string) (TaskCostSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0), COALESCE(SUM(tokens_used), 0), COUNT(*)
		FROM team_tasks WHERE team_id=? AND status='completed'`, teamID)
	var out TaskCostSummary
	if err := row.Scan(&out.TotalCostUSD, &out.TotalTokens, &out.TaskCount); err != nil {
		return TaskCostSummary{}, err
	}
	return out, nil
}

func (s *SQLiteStore) InsertDecisionNode(n decisions.Node) error {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO decision_nodes (id, team_id, kind, author, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.TeamID, string(n.Kind), n.Author, n.Content, meta, n.CreatedAt)
	return err
}

func (s *SQLiteStore) InsertDecisionEdge(e decisions.Edge) error {
	_, err := s.db.Exec(`
		INSERT INTO decision_edges (team_id, kind, from_id, to_id) VALUES (?, ?, ?, ?)`,
		e.TeamID, string(e.Kind), e.FromID, e.ToID)
	return err
}

func (s *SQLiteStore) ListDecisionNodes(f decisions.Filters) ([]decisions.Node, error) {
	query := `SELECT id, team_id, kind, author, content, metadata, created_at FROM decision_nodes WHERE team_id=?`
	args := []any{f.TeamID}
	if f.Kind != "" {
		query += " AND kind=?"
		args = append(args, string(f.Kind))
	}
	if f.Author != "" {
		query += " AND author=?"
		args = append(args, f.Author)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decisions.Node
	for rows.Next() {
		var n decisions.Node
		var kind string
		var meta []byte
		if err := rows.Scan(&n.ID, &n.TeamID, &kind, &n.Author, &n.Content, &meta, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Kind = decisions.NodeKind(kind)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateDecisionNode(n decisions.Node) (decisions.Node, error) {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return decisions.Node{}, err
	}
	res, err := s.db.Exec(`UPDATE decision_nodes SET content=?, metadata=? WHERE id=?`, n.Content, meta, n.ID)
	if err != nil {
		return decisions.Node{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return decisions.Node{}, err
	}
	if affected == 0 {
		return decisions.Node{}, ErrNotFound
	}
	return n, nil
}

func (s *SQLiteStore) InsertAgentMetric(ctx context.Context, m AgentMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_metrics (team_id, agent_name, task_id, success, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.TeamID, m.AgentName, m.TaskID, m.Success, m.DurationMS, m.RecordedAt)
	return err
}
