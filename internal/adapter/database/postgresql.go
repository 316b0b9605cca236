package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"

	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/infrastructure/process"
)

const dropPublicSchema = "DROP SCHEMA public CASCADE; CREATE SCHEMA public;"

// Runner starts external tools. *process.Runner satisfies it.
type Runner interface {
	Start(ctx context.Context, spec process.Spec) (*process.Handle, error)
	Run(ctx context.Context, spec process.Spec) (domain.ProcessResult, error)
}

type Tools struct {
	PgDump string
	Psql   string
}

// PostgreSQL drives pg_dump and psql against one environment's database.
type PostgreSQL struct {
	name   string
	conn   domain.ConnectionDescriptor
	tools  Tools
	runner Runner
}

func NewPostgreSQL(name string, conn domain.ConnectionDescriptor, tools Tools, runner Runner) *PostgreSQL {
	if tools.PgDump == "" {
		tools.PgDump = "pg_dump"
	}
	if tools.Psql == "" {
		tools.Psql = "psql"
	}
	return &PostgreSQL{name: name, conn: conn, tools: tools, runner: runner}
}

// StartDump launches pg_dump writing plain SQL into outputPath, which must not exist yet.
func (p *PostgreSQL) StartDump(ctx context.Context, outputPath string) (domain.Process, error) {
	h, err := p.runner.Start(ctx, p.DumpSpec(outputPath))
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Restore feeds inputPath to psql. In drop mode the public schema is recreated first.
func (p *PostgreSQL) Restore(ctx context.Context, inputPath string, mode domain.RestoreMode) (domain.ProcessResult, error) {
	if mode == domain.RestoreDrop {
		res, err := p.runner.Run(ctx, p.DropSpec())
		if err != nil {
			return res, fmt.Errorf("drop public schema: %w", err)
		}
	}
	return p.runner.Run(ctx, p.RestoreSpec(inputPath))
}

func (p *PostgreSQL) DumpSpec(outputPath string) process.Spec {
	return process.Spec{
		Path:       p.tools.PgDump,
		Args:       append(p.connArgs(), "--no-password"),
		Env:        p.env(),
		StdoutFile: outputPath,
	}
}

func (p *PostgreSQL) RestoreSpec(inputPath string) process.Spec {
	args := append(p.connArgs(), "--no-password", "-v", "ON_ERROR_STOP=1", "--quiet", "-f", inputPath)
	return process.Spec{Path: p.tools.Psql, Args: args, Env: p.env()}
}

func (p *PostgreSQL) DropSpec() process.Spec {
	args := append(p.connArgs(), "--no-password", "-v", "ON_ERROR_STOP=1", "--quiet", "-c", dropPublicSchema)
	return process.Spec{Path: p.tools.Psql, Args: args, Env: p.env()}
}

// Version asks the server for server_version. Any failure yields domain.UnknownVersion.
func (p *PostgreSQL) Version(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, p.ConnString())
	if err != nil {
		return domain.UnknownVersion
	}
	defer conn.Close(context.Background())

	var raw string
	if err := conn.QueryRow(ctx, "SHOW server_version").Scan(&raw); err != nil {
		return domain.UnknownVersion
	}
	return ParseServerVersion(raw)
}

func (p *PostgreSQL) GetName() string {
	return p.name
}

func (p *PostgreSQL) GetType() string {
	return "postgresql"
}

// ConnString renders the descriptor as a postgres:// URL for pgx.
func (p *PostgreSQL) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.conn.Username, p.conn.Password),
		Host:   net.JoinHostPort(p.conn.Host, strconv.Itoa(p.conn.Port)),
		Path:   "/" + p.conn.Database,
	}
	q := url.Values{}
	q.Set("connect_timeout", "5")
	if p.conn.SSLMode != "" {
		q.Set("sslmode", p.conn.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *PostgreSQL) connArgs() []string {
	return []string{
		"--host", p.conn.Host,
		"--port", strconv.Itoa(p.conn.Port),
		"--username", p.conn.Username,
		"--dbname", p.conn.Database,
	}
}

func (p *PostgreSQL) env() []string {
	env := []string{"PGPASSWORD=" + p.conn.Password}
	if p.conn.SSLMode != "" {
		env = append(env, "PGSSLMODE="+p.conn.SSLMode)
	}
	return env
}

// ParseServerVersion keeps the leading numeric part of a server_version
// value, e.g. "16.2 (Debian 16.2-1.pgdg120+2)" becomes "16.2".
func ParseServerVersion(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return domain.UnknownVersion
	}
	v := strings.TrimRightFunc(fields[0], func(r rune) bool { return !unicode.IsDigit(r) })
	if v == "" || !unicode.IsDigit(rune(v[0])) {
		return domain.UnknownVersion
	}
	return v
}
