package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"
	"todoapi/internal/query"

	"github.com/google/uuid"
)

type Storage struct {
	mu    sync.RWMutex
	users map[string]models.User
	tasks map[string]models.Task
	now   func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		users: make(map[string]models.User),
		tasks: make(map[string]models.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return &user, nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, errors.ErrUserNotFound
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username || strings.EqualFold(existing.Email, user.Email) {
			return errors.ErrUserAlreadyExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = s.now()
	s.users[user.ID] = *user
	return nil
}

func (s *Storage) ListTodos(ctx context.Context, plan query.Plan) ([]models.Task, int64, error) {
	s.mu.RLock()
	matched := make([]models.Task, 0)
	for _, t := range s.tasks {
		if plan.Match(t) {
			matched = append(matched, cloneTask(t))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, plan.Sort.Compare)
	start, end := plan.Window(len(matched))
	return matched[start:end], int64(len(matched)), nil
}

func (s *Storage) GetTodo(ctx context.Context, ownerID, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != ownerID {
		return nil, errors.ErrNotFound
	}
	out := cloneTask(t)
	return &out, nil
}

func (s *Storage) CreateTodo(ctx context.Context, ownerID string, input models.TaskInput) (*models.Task, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, err
	}
	t := models.Task{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Description: cloneString(input.Description),
		Completed:   input.Completed,
		UserID:      ownerID,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	out := cloneTask(t)
	return &out, nil
}

func (s *Storage) UpdateTodo(ctx context.Context, ownerID, id string, patch models.TaskPatch) (*models.Task, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != ownerID {
		return nil, errors.ErrNotFound
	}
	patch.Apply(&t, s.now())
	s.tasks[id] = t

	out := cloneTask(t)
	return &out, nil
}

func (s *Storage) DeleteTodo(ctx context.Context, ownerID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != ownerID {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

func (s *Storage) CountTodos(ctx context.Context, ownerID string) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total, completed int64
	for _, t := range s.tasks {
		if t.UserID != ownerID {
			continue
		}
		total++
		if t.Completed {
			completed++
		}
	}
	return total, completed, nil
}

// cloneTask detaches the pointer fields so callers cannot mutate stored rows.
func cloneTask(t models.Task) models.Task {
	t.Description = cloneString(t.Description)
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		t.UpdatedAt = &u
	}
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
