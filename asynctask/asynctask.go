// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package asynctask wraps a goroutine in a handle that can be awaited and
// canceled. The realtime session uses tasks for the transport listener and
// the outbound audio stream so that teardown can cancel them exactly once
// and collect their terminal errors.
package asynctask

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type Task[T any] struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	canceled bool
	done     chan struct{}
	result   Result[T]
}

type Result[T any] struct {
	Value T
	Error error
}

var errTaskCanceled = errors.New("task has been canceled")

func TaskCanceledErr() error { return errTaskCanceled }

// Await blocks until the task function has returned and yields its result.
func (t *Task[T]) Await() Result[T] {
	<-t.done
	return t.result
}

func (t *Task[T]) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Task[T]) IsCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Cancel requests cancellation through the task's context. It does not wait
// for the task to finish and is a no-op on a finished or canceled task.
func (t *Task[T]) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.canceled && !t.IsDone() {
		t.cancel()
		t.canceled = true
	}
}

type TaskFunc[T any] = func(context.Context) (T, error)

func CreateTask[T any](ctx context.Context, fn TaskFunc[T]) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		var value T
		var err error

		defer func() {
			if r := recover(); r != nil {
				err = errors.Join(err, fmt.Errorf("task panicked: %v", r))
			}

			t.mu.Lock()
			if t.canceled {
				err = errors.Join(err, errTaskCanceled)
			}
			t.result = Result[T]{Value: value, Error: err}
			t.mu.Unlock()
			close(t.done)

			cancel()
		}()

		value, err = fn(ctx)
	}()

	return t
}

type TaskNoValue = Task[struct{}]

func CreateTaskNoValue(ctx context.Context, fn func(context.Context) error) *TaskNoValue {
	return CreateTask(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}
