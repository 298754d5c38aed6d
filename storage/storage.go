package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"tarefas-api/domain"
)

// Storage provides access to the tasks and comments tables.
//
// Tasks are keyed PartitionKey = RowKey = task id so the public detail page
// is a point read. Comments are keyed PartitionKey = task id, RowKey =
// comment id so a task's comments are a single partition scan.
type Storage struct {
	taskTable    *aztables.Client
	commentTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, commentsTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:    svc.NewClient(tasksTable),
		commentTable: svc.NewClient(commentsTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Tarefa   string `json:"Tarefa"`
	Created  string `json:"Created"`
	User     string `json:"User"`
	IsPublic bool   `json:"IsPublic"`
}

type commentEntity struct {
	aztables.Entity
	Comment   string `json:"Comment"`
	Created   string `json:"Created"`
	UserEmail string `json:"UserEmail"`
	UserName  string `json:"UserName"`
	UserImage string `json:"UserImage"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, ent.Created)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:       ent.RowKey,
		Tarefa:   ent.Tarefa,
		Created:  created,
		User:     ent.User,
		IsPublic: ent.IsPublic,
	}, nil
}

func decodeCommentEntity(data []byte) (domain.Comment, error) {
	var ent commentEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Comment{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, ent.Created)
	if err != nil {
		return domain.Comment{}, err
	}
	return domain.Comment{
		ID:      ent.RowKey,
		Comment: ent.Comment,
		Created: created,
		TaskID:  ent.PartitionKey,
		User: domain.Author{
			Email: ent.UserEmail,
			Name:  ent.UserName,
			Image: ent.UserImage,
		},
	}, nil
}

// InsertTask stores a new task document.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	ent := taskEntity{
		Entity:   aztables.Entity{PartitionKey: t.ID, RowKey: t.ID},
		Tarefa:   t.Tarefa,
		Created:  t.Created.UTC().Format(time.RFC3339Nano),
		User:     t.User,
		IsPublic: t.IsPublic,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// GetTask retrieves a task by id. It returns nil without error when the task
// does not exist.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, id, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	task, err := decodeTaskEntity(ent.Value)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks retrieves all tasks owned by the given user.
func (s *Storage) ListTasks(ctx context.Context, userEmail string) ([]domain.Task, error) {
	filter := "User eq '" + escapeFilterValue(userEmail) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// DeleteTask removes a task document. Deleting an already-removed task is
// not an error. Comments attached to the task are left in place.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, id, id, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// InsertComment stores a new comment document.
func (s *Storage) InsertComment(ctx context.Context, cm domain.Comment) error {
	ent := commentEntity{
		Entity:    aztables.Entity{PartitionKey: cm.TaskID, RowKey: cm.ID},
		Comment:   cm.Comment,
		Created:   cm.Created.UTC().Format(time.RFC3339Nano),
		UserEmail: cm.User.Email,
		UserName:  cm.User.Name,
		UserImage: cm.User.Image,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.commentTable.AddEntity(ctx, payload, nil)
	return err
}

// GetComment retrieves a single comment. It returns nil without error when
// the comment does not exist.
func (s *Storage) GetComment(ctx context.Context, taskID, id string) (*domain.Comment, error) {
	ent, err := s.commentTable.GetEntity(ctx, taskID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	cm, err := decodeCommentEntity(ent.Value)
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// ListComments retrieves all comments attached to the given task, in store
// order.
func (s *Storage) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(taskID) + "'"
	pager := s.commentTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	comments := []domain.Comment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			cm, err := decodeCommentEntity(e)
			if err != nil {
				return nil, err
			}
			comments = append(comments, cm)
		}
	}
	return comments, nil
}

// DeleteComment removes a comment document.
func (s *Storage) DeleteComment(ctx context.Context, taskID, id string) error {
	_, err := s.commentTable.DeleteEntity(ctx, taskID, id, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// CountTasks returns the total number of task documents.
func (s *Storage) CountTasks(ctx context.Context) (int, error) {
	return countEntities(ctx, s.taskTable)
}

// CountComments returns the total number of comment documents.
func (s *Storage) CountComments(ctx context.Context) (int, error) {
	return countEntities(ctx, s.commentTable)
}

func countEntities(ctx context.Context, table *aztables.Client) (int, error) {
	sel := "PartitionKey"
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Select: &sel})
	n := 0
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		n += len(resp.Entities)
	}
	return n, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// escapeFilterValue doubles single quotes per OData filter quoting rules.
func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
