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

// Package asyncqueue provides an unbounded FIFO queue safe for concurrent
// use. The realtime packages rely on it to serialize inbound control-channel
// events: producers append from transport goroutines, a single consumer
// drains in arrival order.
package asyncqueue

import (
	"sync"
	"time"
)

type Queue[T any] struct {
	cond   *sync.Cond
	values []T
	head   int
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		cond: sync.NewCond(&sync.Mutex{}),
	}
}

// Put appends v and wakes any waiting consumer.
func (q *Queue[T]) Put(v T) {
	q.cond.L.Lock()
	q.values = append(q.values, v)
	q.cond.L.Unlock()
	q.cond.Broadcast()
}

// Get removes and returns the oldest value, blocking until one is available.
func (q *Queue[T]) Get() T {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	for q.size() == 0 {
		q.cond.Wait()
	}
	return q.pop()
}

// GetTimeout is like Get but gives up after the given duration,
// reporting false if no value arrived in time.
func (q *Queue[T]) GetTimeout(timeout time.Duration) (T, bool) {
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		q.cond.L.Lock()
		timedOut = true
		q.cond.L.Unlock()
		q.cond.Broadcast()
	})
	defer timer.Stop()

	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	for q.size() == 0 && !timedOut {
		q.cond.Wait()
	}

	if timedOut {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// GetNoWait removes and returns the oldest value without blocking,
// reporting false if the queue is empty.
func (q *Queue[T]) GetNoWait() (T, bool) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	if q.size() == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

func (q *Queue[T]) Len() int {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	return q.size()
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

func (q *Queue[T]) size() int { return len(q.values) - q.head }

// pop must be called with the lock held and at least one value present.
func (q *Queue[T]) pop() T {
	v := q.values[q.head]
	var zero T
	q.values[q.head] = zero // helps GC
	q.head++
	if q.head == len(q.values) {
		q.values = q.values[:0]
		q.head = 0
	}
	return v
}
