// Package migrate wraps goose for the storefront schema. The SQL files are
// embedded so every binary can migrate without the source tree.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// DefaultDir is where `migrate -cmd=create` writes new files. Run reads the
// embedded copy when handed this directory.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect, base FS and logger in package globals.
var gooseMu sync.Mutex

// source resolves dir to the filesystem goose should read.
func source(dir string) (fs.FS, string) {
	if dir == "" || dir == DefaultDir {
		return embedded, embeddedDir
	}
	return os.DirFS(dir), "."
}

func withGoose(ctx context.Context, logg *logger.Logger, dir string, fn func(dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	fsys, resolved := source(dir)
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	if logg != nil {
		goose.SetLogger(&gooseLogger{logg: logg, ctx: ctx})
		defer goose.SetLogger(goose.NopLogger())
	}
	return fn(resolved)
}

// Run executes a goose command (up, down, status, redo, reset).
func Run(ctx context.Context, logg *logger.Logger, db *sql.DB, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	return withGoose(ctx, logg, dir, func(resolved string) error {
		if err := goose.RunContext(ctx, command, db, resolved, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateToVersion moves the schema up or down until it sits at targetVersion.
func MigrateToVersion(ctx context.Context, logg *logger.Logger, db *sql.DB, dir, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	return withGoose(ctx, logg, dir, func(resolved string) error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current < target:
			err = goose.UpToContext(ctx, db, resolved, target)
		case current > target:
			err = goose.DownToContext(ctx, db, resolved, target)
		}
		if err != nil {
			return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
		}
		return nil
	})
}

// gooseLogger routes goose output through the structured logger.
type gooseLogger struct {
	logg *logger.Logger
	ctx  context.Context
}

func (g *gooseLogger) Printf(format string, v ...any) {
	g.logg.Info(g.ctx, fmt.Sprintf(format, v...))
}

func (g *gooseLogger) Fatalf(format string, v ...any) {
	g.logg.Error(g.ctx, "goose fatal", fmt.Errorf(format, v...))
}
