package persistence

import (
	"database/sql"
	"sort"
	"time"

	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/types"
	_ "github.com/lib/pq"
)

type PostgresPersist struct {
	db *sql.DB
}

func NewPostgresPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	db, err := sql.Open("postgres", cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	if err := setupPostgresDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresPersist{db: db}, nil
}

func setupPostgresDB(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS projects (
id BIGSERIAL PRIMARY KEY,
title TEXT NOT NULL DEFAULT ''
);`,
		`CREATE TABLE IF NOT EXISTS tasks (
id BIGSERIAL PRIMARY KEY,
title TEXT NOT NULL DEFAULT '',
description TEXT NOT NULL DEFAULT '',
status TEXT NOT NULL DEFAULT 'pending',
assigned_to TEXT NOT NULL DEFAULT '',
project_id BIGINT REFERENCES projects (id) ON DELETE SET NULL,
start_date TIMESTAMPTZ,
due_date TIMESTAMPTZ
);`,
		`CREATE INDEX IF NOT EXISTS tasks_due_date_idx ON tasks (due_date);`,
		`CREATE TABLE IF NOT EXISTS messages (
id BIGSERIAL PRIMARY KEY,
content TEXT NOT NULL DEFAULT '',
sender_email TEXT NOT NULL DEFAULT '',
sender_role TEXT NOT NULL DEFAULT '',
sent_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS messages_sent_at_idx ON messages (sent_at);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresPersist) StoreMessage(msg *types.Message) error {
	msg.SentAt = time.Now().UTC()
	query := `INSERT INTO messages (content,sender_email,sender_role,sent_at) VALUES ($1,$2,$3,$4) RETURNING id;`
	return p.db.QueryRow(query, msg.Content, msg.SenderEmail, msg.SenderRole, msg.SentAt).Scan(&msg.Id)
}

func (p *PostgresPersist) MessageHistory(limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := `SELECT id,content,sender_email,sender_role,sent_at FROM messages ORDER BY sent_at DESC, id DESC LIMIT $1;`
	rows, err := p.db.Query(query, limit)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	defer rows.Close()
	messages := make([]types.Message, 0, limit)
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.Id, &msg.Content, &msg.SenderEmail, &msg.SenderRole, &msg.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].SentAt.Equal(messages[j].SentAt) {
			return messages[i].Id < messages[j].Id
		}
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages, nil
}

func (p *PostgresPersist) UrgentTasks(now, horizon time.Time) ([]types.Task, error) {
	query := `SELECT t.id,t.title,t.description,t.status,t.assigned_to,t.project_id,t.start_date,t.due_date,p.id,p.title
FROM tasks AS t LEFT JOIN projects AS p ON p.id=t.project_id
WHERE t.status IN ('pending','in_progress') AND t.due_date IS NOT NULL
AND (t.due_date < $1 OR (t.due_date >= $1 AND t.due_date <= $2));`
	rows, err := p.db.Query(query, now, horizon)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	defer rows.Close()
	tasks := make([]types.Task, 0)
	for rows.Next() {
		var task types.Task
		var projectId sql.NullInt64
		var startDate, dueDate sql.NullTime
		var pId sql.NullInt64
		var pTitle sql.NullString
		err := rows.Scan(&task.Id, &task.Title, &task.Description, &task.Status, &task.AssignedTo, &projectId, &startDate, &dueDate, &pId, &pTitle)
		if err != nil {
			return nil, err
		}
		if projectId.Valid {
			task.ProjectId = projectId.Int64
		}
		if startDate.Valid {
			t := startDate.Time
			task.StartDate = &t
		}
		if dueDate.Valid {
			t := dueDate.Time
			task.DueDate = &t
		}
		if pId.Valid {
			task.Project = &types.Project{Id: pId.Int64, Title: pTitle.String}
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (p *PostgresPersist) StoreProject(project *types.Project) error {
	if project.Id == 0 {
		query := `INSERT INTO projects (title) VALUES ($1) RETURNING id;`
		return p.db.QueryRow(query, project.Title).Scan(&project.Id)
	}
	query := `INSERT INTO projects (id,title) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title;`
	_, err := p.db.Exec(query, project.Id, project.Title)
	return err
}

func (p *PostgresPersist) Projects() ([]types.Project, error) {
	rows, err := p.db.Query(`SELECT id,title FROM projects ORDER BY id;`)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	defer rows.Close()
	projects := make([]types.Project, 0)
	for rows.Next() {
		var project types.Project
		if err := rows.Scan(&project.Id, &project.Title); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (p *PostgresPersist) StoreTask(task *types.Task) error {
	projectId := sql.NullInt64{Int64: task.ProjectId, Valid: task.ProjectId != 0}
	var startDate, dueDate sql.NullTime
	if task.StartDate != nil {
		startDate = sql.NullTime{Time: *task.StartDate, Valid: true}
	}
	if task.DueDate != nil {
		dueDate = sql.NullTime{Time: *task.DueDate, Valid: true}
	}
	if task.Id == 0 {
		query := `INSERT INTO tasks (title,description,status,assigned_to,project_id,start_date,due_date) VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id;`
		return p.db.QueryRow(query, task.Title, task.Description, task.Status, task.AssignedTo, projectId, startDate, dueDate).Scan(&task.Id)
	}
	query := `INSERT INTO tasks (id,title,description,status,assigned_to,project_id,start_date,due_date) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title,description=EXCLUDED.description,status=EXCLUDED.status,assigned_to=EXCLUDED.assigned_to,project_id=EXCLUDED.project_id,start_date=EXCLUDED.start_date,due_date=EXCLUDED.due_date;`
	_, err := p.db.Exec(query, task.Id, task.Title, task.Description, task.Status, task.AssignedTo, projectId, startDate, dueDate)
	return err
}

func (p *PostgresPersist) Close() error {
	return p.db.Close()
}
