package db

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"
	"todoapi/internal/logger"
	"todoapi/internal/query"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opTimeout = 15 * time.Second

	uniqueViolation = "23505"

	todoColumns = `id, title, description, completed, user_id, created_at, updated_at`
	userColumns = `id, username, email, hashed_password, is_active, created_at, updated_at`
)

// Storage is the PostgreSQL backend. Every operation acquires its own pooled
// connection and releases it before returning.
type Storage struct {
	pool *pgxpool.Pool

	sqlCreateTodo        string
	sqlGetTodo           string
	sqlDeleteTodo        string
	sqlCountTodos        string
	sqlCreateUser        string
	sqlGetUserByID       string
	sqlGetUserByUsername string
}

func NewStorage(connStr string) (*Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		logger.Error("invalid database connection string", "error", err)
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Storage{
		pool:                 pool,
		sqlCreateTodo:        `INSERT INTO todos (id, title, description, completed, user_id) VALUES ($1, $2, $3, $4, $5) RETURNING ` + todoColumns,
		sqlGetTodo:           `SELECT ` + todoColumns + ` FROM todos WHERE id = $1 AND user_id = $2`,
		sqlDeleteTodo:        `DELETE FROM todos WHERE id = $1 AND user_id = $2`,
		sqlCountTodos:        `SELECT COUNT(*), COUNT(*) FILTER (WHERE completed) FROM todos WHERE user_id = $1`,
		sqlCreateUser:        `INSERT INTO users (id, username, email, hashed_password, is_active) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		sqlGetUserByID:       `SELECT ` + userColumns + ` FROM users WHERE id = $1`,
		sqlGetUserByUsername: `SELECT ` + userColumns + ` FROM users WHERE username = $1`,
	}
	logger.Info("database connection established")
	return s, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

// withConn scopes one logical operation to one pooled connection.
func (s *Storage) withConn(ctx context.Context, fn func(context.Context, *pgxpool.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return fn(ctx, conn)
}

func scanTodo(row pgx.Row) (*models.Task, error) {
	t := &models.Task{}
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.UserID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if t.UpdatedAt != nil {
		u := t.UpdatedAt.UTC()
		t.UpdatedAt = &u
	}
	return t, nil
}

// buildList renders the page and count statements from one predicate.
func buildList(plan query.Plan) (string, string, []any) {
	where, args := plan.Where(query.Dollar)

	count := `SELECT COUNT(*) FROM todos WHERE ` + where

	var page strings.Builder
	page.WriteString(`SELECT ` + todoColumns + ` FROM todos WHERE ` + where)
	page.WriteString(` ORDER BY ` + plan.Sort.OrderBy())
	if plan.Limit > 0 {
		fmt.Fprintf(&page, " LIMIT %d", plan.Limit)
	}
	if plan.Skip > 0 {
		fmt.Fprintf(&page, " OFFSET %d", plan.Skip)
	}
	return page.String(), count, args
}

func (s *Storage) ListTodos(ctx context.Context, plan query.Plan) ([]models.Task, int64, error) {
	pageSQL, countSQL, args := buildList(plan)

	var (
		tasks = []models.Task{}
		total int64
	)
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		if err := conn.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
			return fmt.Errorf("count todos: %w", err)
		}

		rows, err := conn.Query(ctx, pageSQL, args...)
		if err != nil {
			return fmt.Errorf("query todos: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTodo(rows)
			if err != nil {
				return fmt.Errorf("scan todo: %w", err)
			}
			tasks = append(tasks, *t)
		}
		return rows.Err()
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to list todos", "owner", plan.OwnerID, "error", err)
		return nil, 0, err
	}
	return tasks, total, nil
}

func (s *Storage) GetTodo(ctx context.Context, ownerID, id string) (*models.Task, error) {
	var task *models.Task
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		t, err := scanTodo(conn.QueryRow(ctx, s.sqlGetTodo, id, ownerID))
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		logger.ErrorContext(ctx, "failed to get todo", "id", id, "error", err)
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return task, nil
}

func (s *Storage) CreateTodo(ctx context.Context, ownerID string, input models.TaskInput) (*models.Task, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, err
	}

	var task *models.Task
	err = s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		t, err := scanTodo(conn.QueryRow(ctx, s.sqlCreateTodo,
			uuid.New().String(), input.Title, input.Description, input.Completed, ownerID))
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create todo", "owner", ownerID, "error", err)
		return nil, fmt.Errorf("create todo: %w", err)
	}
	logger.InfoContext(ctx, "todo created", "id", task.ID)
	return task, nil
}

// buildUpdate renders a single UPDATE touching only the supplied fields.
func buildUpdate(ownerID, id string, patch models.TaskPatch) (string, []any) {
	sets := make([]string, 0, len(patch.Fields())+1)
	args := make([]any, 0, len(patch.Fields())+2)
	for _, f := range patch.Fields() {
		switch f {
		case models.FieldTitle:
			args = append(args, patch.Title)
		case models.FieldDescription:
			args = append(args, patch.Description)
		case models.FieldCompleted:
			args = append(args, patch.Completed)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", f, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id, ownerID)

	stmt := fmt.Sprintf(`UPDATE todos SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), todoColumns)
	return stmt, args
}

func (s *Storage) UpdateTodo(ctx context.Context, ownerID, id string, patch models.TaskPatch) (*models.Task, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.GetTodo(ctx, ownerID, id)
	}

	stmt, args := buildUpdate(ownerID, id, patch)
	var task *models.Task
	err = s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		t, err := scanTodo(conn.QueryRow(ctx, stmt, args...))
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		logger.ErrorContext(ctx, "failed to update todo", "id", id, "error", err)
		return nil, fmt.Errorf("update todo: %w", err)
	}
	logger.InfoContext(ctx, "todo updated", "id", id)
	return task, nil
}

func (s *Storage) DeleteTodo(ctx context.Context, ownerID, id string) (bool, error) {
	var affected int64
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		ct, err := conn.Exec(ctx, s.sqlDeleteTodo, id, ownerID)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete todo", "id", id, "error", err)
		return false, fmt.Errorf("delete todo: %w", err)
	}
	if affected > 0 {
		logger.InfoContext(ctx, "todo deleted", "id", id)
	}
	return affected > 0, nil
}

func (s *Storage) CountTodos(ctx context.Context, ownerID string) (int64, int64, error) {
	var total, completed int64
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, s.sqlCountTodos, ownerID).Scan(&total, &completed)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to count todos", "owner", ownerID, "error", err)
		return 0, 0, fmt.Errorf("count todos: %w", err)
	}
	return total, completed, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, s.sqlCreateUser,
			user.ID, user.Username, user.Email, user.HashedPassword, user.IsActive).Scan(&user.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errors.ErrUserAlreadyExists
		}
		logger.ErrorContext(ctx, "failed to create user", "error", err)
		return fmt.Errorf("create user: %w", err)
	}
	logger.InfoContext(ctx, "user created", "id", user.ID)
	return nil
}

func (s *Storage) getUser(ctx context.Context, stmt, arg string) (*models.User, error) {
	user := &models.User{}
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, stmt, arg).Scan(
			&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	})
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		logger.ErrorContext(ctx, "failed to get user", "error", err)
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, s.sqlGetUserByID, id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, s.sqlGetUserByUsername, username)
}
