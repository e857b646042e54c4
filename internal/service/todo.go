// Package service glues the query builder, a task repository and the export
// formatter behind the operations the HTTP layer exposes.
package service

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"todoapi/internal/domain/models"
	"todoapi/internal/export"
	"todoapi/internal/query"
)

// TodoRepository is the owner-scoped task store every backend implements.
type TodoRepository interface {
	ListTodos(ctx context.Context, plan query.Plan) ([]models.Task, int64, error)
	GetTodo(ctx context.Context, ownerID, id string) (*models.Task, error)
	CreateTodo(ctx context.Context, ownerID string, input models.TaskInput) (*models.Task, error)
	UpdateTodo(ctx context.Context, ownerID, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTodo(ctx context.Context, ownerID, id string) (bool, error)
	CountTodos(ctx context.Context, ownerID string) (total int64, completed int64, err error)
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// Repository is what a complete backend provides.
type Repository interface {
	TodoRepository
	UserRepository
	Ping(ctx context.Context) error
}

type TodoService struct {
	repo TodoRepository
}

func NewTodoService(repo TodoRepository) *TodoService {
	return &TodoService{repo: repo}
}

// List parses values into a plan and returns one page plus the filtered total.
func (s *TodoService) List(ctx context.Context, ownerID string, values url.Values) (*models.TodoListResponse, error) {
	plan, err := query.ParseList(ownerID, values)
	if err != nil {
		return nil, err
	}
	items, total, err := s.repo.ListTodos(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	if items == nil {
		items = []models.Task{}
	}
	return &models.TodoListResponse{Todos: items, Total: total, Skip: plan.Skip, Limit: plan.Limit}, nil
}

func (s *TodoService) Get(ctx context.Context, ownerID, id string) (*models.Task, error) {
	return s.repo.GetTodo(ctx, ownerID, id)
}

func (s *TodoService) Create(ctx context.Context, ownerID string, input models.TaskInput) (*models.Task, error) {
	return s.repo.CreateTodo(ctx, ownerID, input)
}

func (s *TodoService) Update(ctx context.Context, ownerID, id string, patch models.TaskPatch) (*models.Task, error) {
	return s.repo.UpdateTodo(ctx, ownerID, id, patch)
}

func (s *TodoService) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	return s.repo.DeleteTodo(ctx, ownerID, id)
}

func (s *TodoService) Analytics(ctx context.Context, ownerID string) (*models.Analytics, error) {
	total, completed, err := s.repo.CountTodos(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count todos: %w", err)
	}
	return &models.Analytics{
		TotalTodos:     total,
		CompletedTodos: completed,
		PendingTodos:   total - completed,
		CompletionRate: completionRate(total, completed),
	}, nil
}

// completionRate is a percentage rounded to two decimals; zero for no tasks.
func completionRate(total, completed int64) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(completed) / float64(total) * 100
	return math.Round(rate*100) / 100
}

// Export renders the caller's filtered, sorted tasks in the named format.
// Paging parameters in values are ignored.
func (s *TodoService) Export(ctx context.Context, ownerID, format string, values url.Values) (*export.File, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	plan, err := query.ParseExport(ownerID, values)
	if err != nil {
		return nil, err
	}
	return s.ExportPlan(ctx, f, plan)
}

// ExportPlan renders an already built plan.
func (s *TodoService) ExportPlan(ctx context.Context, format export.Format, plan query.Plan) (*export.File, error) {
	items, _, err := s.repo.ListTodos(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("export todos: %w", err)
	}
	return export.Render(format, items)
}
