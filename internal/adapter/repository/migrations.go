package repository

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		filename TEXT UNIQUE NOT NULL,
		environment TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		database_version TEXT NOT NULL DEFAULT 'Unknown',
		backup_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		progress INTEGER NOT NULL DEFAULT 0,
		created_by TEXT,
		schedule_name TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		finished_at TEXT,
		heartbeat_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		environment TEXT NOT NULL,
		schedule_type TEXT NOT NULL,
		hour INTEGER NOT NULL,
		minute INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_run TEXT,
		claimed_period TEXT NOT NULL DEFAULT '',
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_backups_status ON backups(status)`,
	`CREATE INDEX IF NOT EXISTS idx_backups_schedule_name ON backups(schedule_name)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_is_active ON schedules(is_active)`,
}
