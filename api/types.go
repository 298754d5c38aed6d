package api

import (
	"context"

	"tarefas-api/domain"
	"tarefas-api/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	InsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, userEmail string) ([]domain.Task, error)
	DeleteTask(ctx context.Context, id string) error

	InsertComment(ctx context.Context, cm domain.Comment) error
	GetComment(ctx context.Context, taskID, id string) (*domain.Comment, error)
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	DeleteComment(ctx context.Context, taskID, id string) error
}

// CountsProvider serves the landing-page aggregates.
type CountsProvider interface {
	Counts(ctx context.Context) (storage.Counts, error)
}

// Authenticator is implemented by types able to resolve sessions from bearer
// tokens.
type Authenticator interface {
	SessionFromBearer(token []byte) (domain.Session, error)
}

// Notifier publishes task-change notifications for live subscribers.
type Notifier interface {
	NotifyTasksChanged(ctx context.Context, userEmail string) error
}
