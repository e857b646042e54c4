// Command export writes one user's todos to a file or stdout without going
// through the HTTP API.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"todoapi/internal/logger"
	"todoapi/internal/server"
	"todoapi/internal/service"
	db "todoapi/repository/db"
	"todoapi/repository/gormstore"
)

const exportTimeout = 2 * time.Minute

type options struct {
	store      string
	dsn        string
	sqlitePath string
	username   string
	format     string
	search     string
	completed  string
	sortBy     string
	sortOrder  string
	output     string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&o.store, "store", server.StoreSQLite, "storage backend: postgres or sqlite")
	fset.StringVar(&o.dsn, "dsn", os.Getenv("DB_STR"), "postgres connection string")
	fset.StringVar(&o.sqlitePath, "sqlite", "todos.db", "sqlite database file")
	fset.StringVar(&o.username, "user", "", "owner username (required)")
	fset.StringVar(&o.format, "format", "json", "json or csv")
	fset.StringVar(&o.search, "search", "", "case-insensitive substring of title or description")
	fset.StringVar(&o.completed, "completed", "", "true or false")
	fset.StringVar(&o.sortBy, "sort_by", "", "created_at, updated_at or title")
	fset.StringVar(&o.sortOrder, "sort_order", "", "asc or desc")
	fset.StringVar(&o.output, "o", "-", "output file, - for stdout")
	if err := fset.Parse(args); err != nil {
		return options{}, err
	}
	if o.username == "" {
		return options{}, stderrors.New("-user is required")
	}
	return o, nil
}

// values renders the filter flags the way the list endpoint receives them.
func (o options) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("search", o.search)
	set("completed", o.completed)
	set("sort_by", o.sortBy)
	set("sort_order", o.sortOrder)
	return v
}

func openRepository(o options) (service.Repository, func(), error) {
	switch o.store {
	case server.StoreSQLite:
		s, err := gormstore.Open(o.sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case server.StorePostgres:
		s, err := db.NewStorage(o.dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported store %q", o.store)
}

func export(ctx context.Context, repo service.Repository, o options, stdout io.Writer) error {
	user, err := repo.GetUserByUsername(ctx, o.username)
	if err != nil {
		return fmt.Errorf("look up %s: %w", o.username, err)
	}
	file, err := service.NewTodoService(repo).Export(ctx, user.ID, o.format, o.values())
	if err != nil {
		return err
	}

	if o.output == "" || o.output == "-" {
		_, err = stdout.Write(file.Data)
		return err
	}
	if err := os.WriteFile(o.output, file.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", o.output, err)
	}
	logger.Info("export written", "path", o.output, "format", string(file.Format), "bytes", len(file.Data))
	return nil
}

func run(args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	repo, closeRepo, err := openRepository(o)
	if err != nil {
		return err
	}
	defer closeRepo()

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	return export(ctx, repo, o, stdout)
}

func main() {
	if err := logger.Init(logger.Config{Level: "warn", Format: "text", Output: "stderr"}); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !stderrors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "export:", err)
		}
		os.Exit(1)
	}
}
