// Package taskstore persists task records, their append-only history
// and artifacts, and the submitted-task queue (spec.md section 4.1,
// component C2).
package taskstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/service/eventbus"
)

const (
	taskTTL  = 24 * time.Hour
	queueKey = "a2a:queue:submitted"
)

func taskKey(id string) string { return "a2a:task:" + id }

// Store is the task persistence port backing component C2.
type Store struct {
	kv   kv.Store
	bus  *eventbus.Bus
	now  func() time.Time
}

// New builds a Store over the shared kv.Store, publishing transitions
// onto bus as it goes.
func New(store kv.Store, bus *eventbus.Bus) *Store {
	return &Store{kv: store, bus: bus, now: time.Now}
}

// CreateTask atomically allocates a task id, writes the initial
// submitted->queued record with the user message in history, and
// pushes the id onto the submitted queue.
func (s *Store) CreateTask(ctx context.Context, skill string, params map[string]any, userMessage gateway.Message, contextID string) (gateway.Task, error) {
	id := uuid.NewString()
	now := s.now().UTC()
	task := gateway.Task{
		ID:        id,
		ContextID: contextID,
		Skill:     skill,
		Params:    params,
		Status: gateway.TaskStatus{
			State:     gateway.TaskQueued,
			Timestamp: now,
		},
		History: []gateway.Message{userMessage},
	}

	if err := s.write(ctx, task); err != nil {
		return gateway.Task{}, err
	}
	enc, err := kv.Encode(id)
	if err != nil {
		return gateway.Task{}, gateway.Wrap(gateway.KindInternal, "could not encode task id", err)
	}
	if err := s.kv.LPush(ctx, queueKey, enc, 0); err != nil {
		return gateway.Task{}, gateway.Wrap(gateway.KindInternal, "could not enqueue task", err)
	}
	s.publish(id, eventbus.StatusUpdateEvent(task.Status, false))
	return task, nil
}

// PopQueued pops the next submitted task id, or kv.ErrNotFound if the
// queue is empty. The worker is the sole caller, giving single-consumer
// semantics without additional locking.
func (s *Store) PopQueued(ctx context.Context) (string, error) {
	raw, err := s.kv.RPop(ctx, queueKey)
	if err != nil {
		return "", err
	}
	var id string
	if err := kv.Decode(raw, &id); err != nil {
		return "", gateway.Wrap(gateway.KindInternal, "could not decode queued task id", err)
	}
	return id, nil
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (gateway.Task, error) {
	raw, err := s.kv.Get(ctx, taskKey(id))
	if err == kv.ErrNotFound {
		return gateway.Task{}, gateway.NewError(gateway.KindNotFound, fmt.Sprintf("task %q not found", id))
	}
	if err != nil {
		return gateway.Task{}, gateway.Wrap(gateway.KindInternal, "could not load task", err)
	}
	var task gateway.Task
	if err := kv.Decode(raw, &task); err != nil {
		return gateway.Task{}, gateway.Wrap(gateway.KindInternal, "could not decode task", err)
	}
	return task, nil
}

// UpdateTaskStatus enforces the transition table and, on success,
// rewrites the task record and publishes a status-update event.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, state gateway.TaskState, message *gateway.Message) (gateway.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return gateway.Task{}, err
	}
	if !gateway.CanTransition(task.Status.State, state) {
		return gateway.Task{}, gateway.NewError(gateway.KindInvalidTransition,
			fmt.Sprintf("invalid status transition from %q to %q", task.Status.State, state))
	}
	task.Status = gateway.TaskStatus{
		State:     state,
		Message:   message,
		Timestamp: s.now().UTC(),
		Final:     state.IsTerminal(),
	}
	if message != nil {
		task.History = append(task.History, *message)
	}
	if err := s.write(ctx, task); err != nil {
		return gateway.Task{}, err
	}
	s.publish(id, eventbus.StatusUpdateEvent(task.Status, task.Status.Final))
	if task.Status.Final {
		s.publish(id, eventbus.TaskCompleteEvent(task))
	}
	return task, nil
}

// AddArtifact appends an artifact to the task's artifact list and
// publishes an artifact-update event.
func (s *Store) AddArtifact(ctx context.Context, id string, artifact gateway.Artifact, lastChunk bool) (gateway.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return gateway.Task{}, err
	}
	task.Artifacts = append(task.Artifacts, artifact)
	if err := s.write(ctx, task); err != nil {
		return gateway.Task{}, err
	}
	s.publish(id, eventbus.ArtifactUpdateEvent(artifact, lastChunk))
	return task, nil
}

// AppendHistory appends a message to the task's history without
// changing status. No endpoint in this module calls it.
func (s *Store) AppendHistory(ctx context.Context, id string, message gateway.Message) (gateway.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return gateway.Task{}, err
	}
	task.History = append(task.History, message)
	if err := s.write(ctx, task); err != nil {
		return gateway.Task{}, err
	}
	return task, nil
}

func (s *Store) write(ctx context.Context, task gateway.Task) error {
	enc, err := kv.Encode(task)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode task", err)
	}
	if err := s.kv.Set(ctx, taskKey(task.ID), enc, taskTTL); err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not persist task", err)
	}
	return nil
}

func (s *Store) publish(taskID string, event eventbus.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(taskID, event)
}
