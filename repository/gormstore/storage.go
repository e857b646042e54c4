// Package gormstore is the embedded SQLite backend, built on gorm.
package gormstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"
	"todoapi/internal/logger"
	"todoapi/internal/query"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type userRow struct {
	ID             string     `gorm:"primarykey;size:36"`
	Username       string     `gorm:"size:50;not null;uniqueIndex"`
	Email          string     `gorm:"size:255;not null;uniqueIndex"`
	HashedPassword string     `gorm:"size:255;not null"`
	IsActive       bool       `gorm:"not null"`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      *time.Time `gorm:"autoUpdateTime:false"`
}

func (userRow) TableName() string {
	return "users"
}

type todoRow struct {
	ID          string     `gorm:"primarykey;size:36"`
	Title       string     `gorm:"size:200;not null;index"`
	Description *string    `gorm:"size:1000"`
	Completed   bool       `gorm:"not null"`
	UserID      string     `gorm:"size:36;not null;index:idx_todos_user_created,priority:1"`
	CreatedAt   time.Time  `gorm:"not null;index:idx_todos_user_created,priority:2"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false"`
}

func (todoRow) TableName() string {
	return "todos"
}

func (r todoRow) task() models.Task {
	t := models.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.UpdatedAt != nil {
		u := r.UpdatedAt.UTC()
		t.UpdatedAt = &u
	}
	return t
}

func (r userRow) user() *models.User {
	return &models.User{
		ID:             r.ID,
		Username:       r.Username,
		Email:          r.Email,
		HashedPassword: r.HashedPassword,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt,
	}
}

type Storage struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema. ":memory:" gives a private database for the process lifetime.
func Open(path string) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logger.Error("failed to open sqlite database", "path", path, "error", err)
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers, which SQLite requires anyway.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &todoRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}

	logger.Info("sqlite database ready", "path", path)
	return &Storage{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Storage) ListTodos(ctx context.Context, plan query.Plan) ([]models.Task, int64, error) {
	where, args := plan.Where(query.Question)

	var total int64
	if err := s.db.WithContext(ctx).Model(&todoRow{}).Where(where, args...).Count(&total).Error; err != nil {
		logger.ErrorContext(ctx, "failed to count todos", "owner", plan.OwnerID, "error", err)
		return nil, 0, fmt.Errorf("count todos: %w", err)
	}

	tx := s.db.WithContext(ctx).Where(where, args...).Order(plan.Sort.OrderBy())
	if plan.Limit > 0 {
		tx = tx.Limit(plan.Limit)
	}
	if plan.Skip > 0 {
		tx = tx.Offset(plan.Skip)
	}
	var rows []todoRow
	if err := tx.Find(&rows).Error; err != nil {
		logger.ErrorContext(ctx, "failed to list todos", "owner", plan.OwnerID, "error", err)
		return nil, 0, fmt.Errorf("list todos: %w", err)
	}

	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}
	return tasks, total, nil
}

func (s *Storage) findTodo(tx *gorm.DB, ownerID, id string) (*models.Task, error) {
	var row todoRow
	if err := tx.First(&row, "id = ? AND user_id = ?", id, ownerID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("find todo: %w", err)
	}
	t := row.task()
	return &t, nil
}

func (s *Storage) GetTodo(ctx context.Context, ownerID, id string) (*models.Task, error) {
	t, err := s.findTodo(s.db.WithContext(ctx), ownerID, id)
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		logger.ErrorContext(ctx, "failed to get todo", "id", id, "error", err)
	}
	return t, err
}

func (s *Storage) CreateTodo(ctx context.Context, ownerID string, input models.TaskInput) (*models.Task, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	row := todoRow{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
		UserID:      ownerID,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.ErrorContext(ctx, "failed to create todo", "owner", ownerID, "error", err)
		return nil, fmt.Errorf("create todo: %w", err)
	}
	logger.InfoContext(ctx, "todo created", "id", row.ID)
	t := row.task()
	return &t, nil
}

func (s *Storage) UpdateTodo(ctx context.Context, ownerID, id string, patch models.TaskPatch) (*models.Task, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	var task *models.Task
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.findTodo(tx, ownerID, id)
		if err != nil {
			return err
		}
		if patch.Empty() {
			task = current
			return nil
		}

		now := s.now()
		updates := map[string]any{"updated_at": now}
		for _, f := range patch.Fields() {
			switch f {
			case models.FieldTitle:
				updates[string(f)] = patch.Title
			case models.FieldDescription:
				updates[string(f)] = patch.Description
			case models.FieldCompleted:
				updates[string(f)] = patch.Completed
			}
		}
		if err := tx.Model(&todoRow{}).Where("id = ? AND user_id = ?", id, ownerID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update todo: %w", err)
		}
		patch.Apply(current, now)
		task = current
		return nil
	})
	if err != nil {
		if !stderrors.Is(err, errors.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to update todo", "id", id, "error", err)
		}
		return nil, err
	}
	if !patch.Empty() {
		logger.InfoContext(ctx, "todo updated", "id", id)
	}
	return task, nil
}

func (s *Storage) DeleteTodo(ctx context.Context, ownerID, id string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&todoRow{}, "id = ? AND user_id = ?", id, ownerID)
	if err := result.Error; err != nil {
		logger.ErrorContext(ctx, "failed to delete todo", "id", id, "error", err)
		return false, fmt.Errorf("delete todo: %w", err)
	}
	if result.RowsAffected > 0 {
		logger.InfoContext(ctx, "todo deleted", "id", id)
	}
	return result.RowsAffected > 0, nil
}

func (s *Storage) CountTodos(ctx context.Context, ownerID string) (int64, int64, error) {
	var counts struct {
		Total     int64
		Completed int64
	}
	err := s.db.WithContext(ctx).Model(&todoRow{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0) AS completed").
		Where("user_id = ?", ownerID).
		Scan(&counts).Error
	if err != nil {
		logger.ErrorContext(ctx, "failed to count todos", "owner", ownerID, "error", err)
		return 0, 0, fmt.Errorf("count todos: %w", err)
	}
	return counts.Total, counts.Completed, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = s.now()
	row := userRow{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		HashedPassword: user.HashedPassword,
		IsActive:       user.IsActive,
		CreatedAt:      user.CreatedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&userRow{}).
			Where("username = ? OR LOWER(email) = LOWER(?)", user.Username, user.Email).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return errors.ErrUserAlreadyExists
		}
		return tx.Create(&row).Error
	})
	switch {
	case err == nil:
		logger.InfoContext(ctx, "user created", "id", user.ID)
		return nil
	case stderrors.Is(err, errors.ErrUserAlreadyExists), stderrors.Is(err, gorm.ErrDuplicatedKey):
		return errors.ErrUserAlreadyExists
	default:
		logger.ErrorContext(ctx, "failed to create user", "error", err)
		return fmt.Errorf("create user: %w", err)
	}
}

func (s *Storage) getUser(ctx context.Context, cond string, arg string) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, cond, arg).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound
		}
		logger.ErrorContext(ctx, "failed to get user", "error", err)
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.user(), nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username = ?", username)
}
