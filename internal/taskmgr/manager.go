// Package taskmgr tracks long-running jobs. The in-memory map is the source
// of truth for running jobs; a durable Store is updated behind it so that
// tasks survive restarts.
package taskmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/models"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// Store is the durable side of the manager.
type Store interface {
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	Delete(ctx context.Context, id string) error
}

const (
	writeQueueSize = 1024
	storeTimeout   = 5 * time.Second
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

type storeOp struct {
	kind opKind
	task *models.Task
	id   string
	done chan struct{}
}

// Manager owns every task. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	tasks   map[string]*models.Task
	deleted map[string]struct{}

	store  Store
	logger *logrus.Entry
	now    func() time.Time

	writes    chan storeOp
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts the write-behind worker. A nil store keeps tasks in memory only.
func New(store Store, logger logrus.FieldLogger) *Manager {
	m := &Manager{
		tasks:   make(map[string]*models.Task),
		deleted: make(map[string]struct{}),
		store:   store,
		logger: logger.WithField("component", "taskmgr"),
		now:    func() time.Time { return time.Now().UTC() },
		writes: make(chan storeOp, writeQueueSize),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()
	for op := range m.writes {
		if op.done != nil {
			close(op.done)
			continue
		}
		m.apply(op)
	}
}

func (m *Manager) apply(op storeOp) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case opCreate:
		err = m.store.Create(ctx, op.task)
	case opUpdate:
		err = m.store.Update(ctx, op.task)
	case opDelete:
		err = m.store.Delete(ctx, op.id)
	}
	if err != nil {
		id := op.id
		if op.task != nil {
			id = op.task.ID
		}
		m.logger.WithField("task_id", id).WithError(err).Error("Failed to persist task")
	}
}

// enqueue must be called with m.mu held for task writes, so the queue order
// matches the order of the in-memory changes. The write loop never takes m.mu.
func (m *Manager) enqueue(op storeOp) {
	m.writes <- op
}

// Flush blocks until every write queued before the call has been applied.
func (m *Manager) Flush() {
	done := make(chan struct{})
	m.enqueue(storeOp{done: done})
	<-done
}

// Close drains pending writes and stops the worker. The manager must not be
// used afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.writes)
		m.wg.Wait()
	})
}

// Load fills memory from the store. Errors are logged.
func (m *Manager) Load(ctx context.Context) {
	if m.store == nil {
		return
	}
	tasks, err := m.store.List(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to load tasks")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		m.merge(t)
	}
	m.logger.WithField("count", len(tasks)).Info("Loaded tasks")
}

// merge keeps whichever copy is newer. A terminal task in memory is never
// replaced by a non-terminal one, and deleted ids stay deleted. Caller holds
// m.mu.
func (m *Manager) merge(stored *models.Task) {
	if _, gone := m.deleted[stored.ID]; gone {
		return
	}
	cur, ok := m.tasks[stored.ID]
	if ok {
		if cur.Status.IsTerminal() && !stored.Status.IsTerminal() {
			return
		}
		if !stored.UpdatedAt.After(cur.UpdatedAt) {
			return
		}
	}
	m.tasks[stored.ID] = stored.Clone()
}

// Create validates params and registers a pending task.
func (m *Manager) Create(params models.TaskParams) (string, error) {
	if params == nil {
		return "", fmt.Errorf("%w: params are required", models.ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return "", err
	}

	now := m.now()
	task := &models.Task{
		ID:        uuid.NewString(),
		Type:      params.TaskType(),
		Status:    models.TaskPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.enqueue(storeOp{kind: opCreate, task: task.Clone()})
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type}).Info("Task created")
	return task.ID, nil
}

// mutate applies fn to the task and queues a durable update under the lock.
func (m *Manager) mutate(id string, fn func(t *models.Task) error) error {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := fn(task); err != nil {
		m.mu.Unlock()
		return err
	}
	task.UpdatedAt = m.now()
	m.enqueue(storeOp{kind: opUpdate, task: task.Clone()})
	m.mu.Unlock()
	return nil
}

func transition(t *models.Task, from, to models.TaskStatus) error {
	if t.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// Start moves a pending task to running.
func (m *Manager) Start(id string) error {
	err := m.mutate(id, func(t *models.Task) error {
		if err := transition(t, models.TaskPending, models.TaskRunning); err != nil {
			return err
		}
		now := m.now()
		t.StartTime = &now
		return nil
	})
	if err == nil {
		m.logger.WithField("task_id", id).Info("Task started")
	}
	return err
}

// UpdateProgress records the latest counters. Terminal tasks reject updates.
func (m *Manager) UpdateProgress(id, current string, completed, total, failed int) error {
	return m.mutate(id, func(t *models.Task) error {
		if t.Status.IsTerminal() {
			return fmt.Errorf("%w: progress on %s task", ErrInvalidTransition, t.Status)
		}
		t.Progress = models.Progress{
			Total:      total,
			Completed:  completed,
			Failed:     failed,
			Current:    current,
			Percentage: percentage(completed, failed, total),
		}
		return nil
	})
}

func percentage(completed, failed, total int) int {
	if total <= 0 {
		return 0
	}
	return (completed + failed) * 100 / total
}

// Complete moves a running task to completed.
func (m *Manager) Complete(id string) error {
	err := m.mutate(id, func(t *models.Task) error {
		if err := transition(t, models.TaskRunning, models.TaskCompleted); err != nil {
			return err
		}
		now := m.now()
		t.EndTime = &now
		return nil
	})
	if err == nil {
		m.logger.WithField("task_id", id).Info("Task completed")
	}
	return err
}

// Fail moves a running task to failed with msg.
func (m *Manager) Fail(id, msg string) error {
	err := m.mutate(id, func(t *models.Task) error {
		if err := transition(t, models.TaskRunning, models.TaskFailed); err != nil {
			return err
		}
		now := m.now()
		t.EndTime = &now
		t.ErrorMessage = msg
		return nil
	})
	if err == nil {
		m.logger.WithFields(logrus.Fields{"task_id": id, "error": msg}).Error("Task failed")
	}
	return err
}

// Get returns a copy of the task, hydrating memory from the store on a miss.
func (m *Manager) Get(ctx context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	task, ok := m.tasks[id]
	if ok {
		c := task.Clone()
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	stored, err := m.store.Get(ctx, id)
	if err != nil || stored == nil {
		if err != nil {
			m.logger.WithField("task_id", id).WithError(err).Debug("Task not in store")
		}
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.merge(stored)
	task, ok = m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// List refreshes memory from the store and returns every task, newest
// first. On store errors the in-memory view is returned.
func (m *Manager) List(ctx context.Context) []*models.Task {
	if m.store != nil {
		stored, err := m.store.List(ctx)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to refresh tasks from store")
		}
		m.mu.Lock()
		for _, t := range stored {
			m.merge(t)
		}
		m.mu.Unlock()
	}

	m.mu.RLock()
	out := make([]*models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a task known to memory and queues its durable removal.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	if _, ok := m.tasks[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(m.tasks, id)
	m.deleted[id] = struct{}{}
	m.enqueue(storeOp{kind: opDelete, id: id})
	m.mu.Unlock()

	m.logger.WithField("task_id", id).Info("Task deleted")
	return nil
}
