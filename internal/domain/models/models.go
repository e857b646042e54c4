package models

import (
	"strings"
	"time"
)

type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	HashedPassword string     `json:"-"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Normalize trims the username and validates the request.
func (r *RegisterRequest) Normalize() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	return Validate(r)
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Task is the read representation of a todo item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	UserID      string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// TaskInput is the body of a create request.
type TaskInput struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Completed   bool    `json:"completed"`
}

// Normalize trims the title and enforces the write-time invariants.
func (in TaskInput) Normalize() (TaskInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := Validate(in); err != nil {
		return TaskInput{}, err
	}
	return in, nil
}

type TodoListResponse struct {
	Todos []Task `json:"todos"`
	Total int64  `json:"total"`
	Skip  int    `json:"skip"`
	Limit int    `json:"limit"`
}

type Analytics struct {
	TotalTodos     int64   `json:"total_todos"`
	CompletedTodos int64   `json:"completed_todos"`
	PendingTodos   int64   `json:"pending_todos"`
	CompletionRate float64 `json:"completion_rate"`
}
