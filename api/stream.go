package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tarefas-api/domain"
)

// UpdateBroker fans task-change notifications out to per-user SSE
// subscribers on this instance.
type UpdateBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewUpdateBroker creates an empty broker.
func NewUpdateBroker() *UpdateBroker {
	return &UpdateBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *UpdateBroker) subscribe(userEmail string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	set, ok := b.subs[userEmail]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.subs[userEmail] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *UpdateBroker) unsubscribe(userEmail string, ch chan struct{}) {
	b.mu.Lock()
	if set, ok := b.subs[userEmail]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, userEmail)
		}
	}
	b.mu.Unlock()
}

// Notify wakes every subscriber of the given user. The signal channel is
// buffered with capacity one, so a subscriber that has not yet consumed the
// previous signal coalesces the two.
func (b *UpdateBroker) Notify(userEmail string) {
	b.mu.Lock()
	for ch := range b.subs[userEmail] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

type updateEvent struct {
	User string `json:"user"`
}

// RedisNotifier publishes task-change notifications on the shared updates
// channel so every instance's subscribers see changes regardless of which
// instance handled the mutation.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a notifier publishing on the given channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// NotifyTasksChanged publishes a change notification for the given user.
func (n *RedisNotifier) NotifyTasksChanged(ctx context.Context, userEmail string) error {
	data, err := sonic.Marshal(updateEvent{User: userEmail})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, data).Err()
}

// SubscribeUpdates listens on the Redis updates channel and routes each
// notification to the subscribers of the affected user. It runs until ctx is
// done.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, notify func(userEmail string)) {
	sub := rc.Subscribe(ctx, channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logger.Error("updates subscription channel closed")
				return
			}
			var ev updateEvent
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				logger.Errorf("unable to parse update: %v", err)
				continue
			}
			if ev.User == "" {
				logger.Warn("update without user - ignoring it")
				continue
			}
			notify(ev.User)
		}
	}
}

// streamTasks serves the dashboard's live task list. Each event carries the
// full ordered snapshot of the caller's tasks; a fresh snapshot is sent on
// every change notification until the client disconnects.
func streamTasks(store Storage, auth Authenticator, broker *UpdateBroker, baseURL string) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := sessionFromRequest(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := broker.subscribe(session.Email)
		defer broker.unsubscribe(session.Email, ch)
		for {
			tasks, err := store.ListTasks(ctx, session.Email)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			domain.SortTasksByCreatedDesc(tasks)
			for i := range tasks {
				tasks[i].ShareURL = shareURL(baseURL, tasks[i].ID)
			}
			data, err := sonic.Marshal(tasks)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				c.Logger().Error(err)
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
