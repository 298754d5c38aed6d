package domain

import (
	"sort"
	"time"
)

// Task represents a single to-do item owned by a user. Tasks are immutable
// after creation: the only write operations are create and delete.
type Task struct {
	ID       string    `json:"id"`
	Tarefa   string    `json:"tarefa"`
	Created  time.Time `json:"created"`
	User     string    `json:"user"`
	IsPublic bool      `json:"isPublic"`
	ShareURL string    `json:"shareUrl,omitempty"`
}

// SortTasksByCreatedDesc orders tasks newest first. The table store returns
// entities in key order, so dashboard ordering is applied here. The sort is
// stable so tasks created in the same instant keep their store order.
func SortTasksByCreatedDesc(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Created.After(tasks[j].Created)
	})
}
