package storage

import (
	"context"
	"fmt"
)

// Statements creating the schema. CREATE IF NOT EXISTS keeps Init safe to
// run on every boot; columns added after the first release are handled by
// migrate instead.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		workflow_id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		submission_data TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '',
		template_type TEXT NOT NULL DEFAULT 'default',
		status TEXT NOT NULL DEFAULT 'pending',
		approver_id INTEGER,
		approver_username TEXT,
		approval_time TEXT,
		approval_comment TEXT,
		created_at TEXT NOT NULL,
		synced_to_api INTEGER NOT NULL DEFAULT 0,
		group_messages TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_messages (
		message_id INTEGER NOT NULL,
		group_id INTEGER NOT NULL,
		workflow_id TEXT NOT NULL,
		PRIMARY KEY (group_id, message_id),
		FOREIGN KEY (workflow_id) REFERENCES workflows(workflow_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS project_options (
		config_key TEXT PRIMARY KEY,
		config_value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_config (
		config_key TEXT PRIMARY KEY,
		config_value TEXT,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS message_templates (
		template_key TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '',
		template_text TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (template_key, project)
	)`,
	`CREATE TABLE IF NOT EXISTS sso_submissions (
		submission_id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		process_instance_id TEXT,
		sso_order_data TEXT NOT NULL,
		submit_status TEXT NOT NULL DEFAULT 'pending',
		submit_time INTEGER NOT NULL,
		submit_response TEXT,
		error_message TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (workflow_id) REFERENCES workflows(workflow_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS sso_build_status (
		build_id TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL,
		workflow_id TEXT NOT NULL,
		release_id INTEGER NOT NULL,
		job_name TEXT NOT NULL,
		service_name TEXT,
		job_id TEXT,
		build_status TEXT NOT NULL DEFAULT 'BUILDING',
		build_start_time INTEGER,
		build_end_time INTEGER,
		build_detail TEXT,
		notified INTEGER NOT NULL DEFAULT 0,
		notification_time INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (submission_id) REFERENCES sso_submissions(submission_id) ON DELETE CASCADE,
		FOREIGN KEY (workflow_id) REFERENCES workflows(workflow_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS jenkins_builds (
		build_id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		job_name TEXT NOT NULL,
		build_number INTEGER,
		queue_id INTEGER,
		job_url TEXT,
		build_status TEXT NOT NULL DEFAULT 'BUILDING',
		build_parameters TEXT,
		build_start_time INTEGER,
		build_end_time INTEGER,
		build_duration INTEGER,
		notified INTEGER NOT NULL DEFAULT 0,
		notification_time INTEGER,
		created_at TEXT NOT NULL,
		FOREIGN KEY (workflow_id) REFERENCES workflows(workflow_id) ON DELETE CASCADE
	)`,
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_workflows_timestamp ON workflows(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_user_id ON workflows(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_approver_id ON workflows(approver_id)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_synced_to_api ON workflows(synced_to_api)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_project ON workflows(project)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_project_template ON workflows(project, template_type)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_status_timestamp ON workflows(status, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_user_timestamp ON workflows(user_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_approver_timestamp ON workflows(approver_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_messages_workflow_id ON workflow_messages(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_messages_group_id ON workflow_messages(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_messages_message_id ON workflow_messages(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_submissions_workflow_id ON sso_submissions(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_submissions_process_instance_id ON sso_submissions(process_instance_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_submissions_submit_status ON sso_submissions(submit_status)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_build_status_submission_id ON sso_build_status(submission_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_build_status_workflow_id ON sso_build_status(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_build_status_release_id ON sso_build_status(release_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_build_status_build_status ON sso_build_status(build_status)`,
	`CREATE INDEX IF NOT EXISTS idx_sso_build_status_notified ON sso_build_status(notified)`,
	// The pending-notification sweep filters on status plus notified and
	// orders by end time.
	`CREATE INDEX IF NOT EXISTS idx_sso_build_status_pending ON sso_build_status(build_status, notified, build_end_time)`,
	`CREATE INDEX IF NOT EXISTS idx_jenkins_builds_workflow_id ON jenkins_builds(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jenkins_builds_build_status ON jenkins_builds(build_status)`,
	`CREATE INDEX IF NOT EXISTS idx_jenkins_builds_notified ON jenkins_builds(notified)`,
	`CREATE INDEX IF NOT EXISTS idx_jenkins_builds_pending ON jenkins_builds(build_status, notified, build_end_time)`,
}

// Columns added after the first schema release. migrate adds them to
// databases created before they existed.
var migrationColumns = []struct {
	table      string
	column     string
	definition string
}{
	{"workflows", "project", "TEXT NOT NULL DEFAULT ''"},
	{"workflows", "template_type", "TEXT NOT NULL DEFAULT 'default'"},
}

// Init creates all tables and indexes and applies column migrations. It is
// idempotent and safe to run on every boot.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		return err
	}
	for _, stmt := range indexStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// migrate inspects each table's live column list and adds any columns the
// current release expects but an older database lacks.
func (s *Store) migrate(ctx context.Context) error {
	for _, mc := range migrationColumns {
		exists, err := s.columnExists(ctx, mc.table, mc.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", mc.table, mc.column, mc.definition)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", mc.table, mc.column, err)
		}
	}
	return nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var info struct {
			CID       int     `db:"cid"`
			Name      string  `db:"name"`
			Type      string  `db:"type"`
			NotNull   int     `db:"notnull"`
			DfltValue *string `db:"dflt_value"`
			PK        int     `db:"pk"`
		}
		if err := rows.StructScan(&info); err != nil {
			return false, fmt.Errorf("scan table info: %w", err)
		}
		if info.Name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SeedMessageTemplates inserts any missing template rows without touching
// rows an operator has already edited.
func (s *Store) SeedMessageTemplates(ctx context.Context, defaults map[string]string) error {
	unix, _ := s.timestamps()
	for key, text := range defaults {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_templates (template_key, project, template_text, updated_at) VALUES (?, '', ?, ?)`,
			key, text, unix)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", key, err)
		}
	}
	return nil
}
