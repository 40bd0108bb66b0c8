/*Command-line access to the ledger database.*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/JonMunkholm/ledger/internal/config"
	"github.com/JonMunkholm/ledger/internal/core"
	"github.com/JonMunkholm/ledger/internal/database"
	"github.com/JonMunkholm/ledger/internal/logging"
)

// runContext holds global options
type runContext struct {
	SQLite string `name:"sqlite" help:"Use a SQLite database file instead of DATABASE_URL."`
}

// cli commands / args available
var cli struct {
	Ctx runContext `embed:""`

	Migrate migrateCmd `cmd:"" help:"Create or update the transactions table."`
	Import  importCmd  `cmd:"" help:"Import a CSV file of transactions."`
	List    listCmd    `cmd:"" help:"Print one page of active transactions."`
}

type migrateCmd struct{}

type importCmd struct {
	File string `arg:"" type:"existingfile" help:"CSV file with date (DD-MM-YYYY), description, amount, currency columns."`
}

type listCmd struct {
	Page  int `default:"1" help:"Page number."`
	Limit int `default:"10" help:"Records per page."`
}

// session is an open database plus the service over it.
type session struct {
	db      *gorm.DB
	service *core.Service
	close   func()
}

func (c *runContext) open(ctx context.Context) (*session, error) {
	getenv := os.Getenv
	if c.SQLite != "" {
		// DATABASE_URL is required but unused with --sqlite.
		getenv = func(key string) string {
			if key == "DATABASE_URL" {
				return "sqlite:" + c.SQLite
			}
			return os.Getenv(key)
		}
	}
	cfg, err := config.LoadFrom(getenv)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var (
		gdb     *gorm.DB
		closeFn func()
	)
	if c.SQLite != "" {
		gdb, err = database.OpenSQLite(c.SQLite, cfg.Database.SlowQueryThreshold)
		if err != nil {
			return nil, err
		}
		closeFn = func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	} else {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		gdb, closeFn = db.Gorm, db.Close
	}

	service := core.NewService(core.NewGormStore(gdb), core.WithBatchSize(cfg.Upload.BatchSize))
	return &session{db: gdb, service: service, close: closeFn}, nil
}

func (m *migrateCmd) Run(c *runContext) error {
	ctx := context.Background()
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if err := core.Migrate(ctx, s.db); err != nil {
		return err
	}
	fmt.Println("schema up to date")
	return nil
}

func (i *importCmd) Run(c *runContext) error {
	ctx := context.Background()
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	f, err := os.Open(i.File)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := s.service.ImportReader(ctx, f)
	if result != nil {
		if perr := printJSON(result); perr != nil {
			return perr
		}
	}
	if errors.Is(err, core.ErrNothingToImport) {
		return nil
	}
	return err
}

func (l *listCmd) Run(c *runContext) error {
	ctx := context.Background()
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	page, err := s.service.List(ctx, l.Page, l.Limit)
	if err != nil {
		return err
	}
	return printJSON(page)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	_ = godotenv.Load()

	ctx := kong.Parse(&cli,
		kong.Name("txctl"),
		kong.Description("Manage ledger transactions from the command line."),
	)
	err := ctx.Run(&cli.Ctx)
	ctx.FatalIfErrorf(err)
}
