/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signzip

import (
	"sync"
	"sync/atomic"
)

// Priority distinguishes routine progress text from milestone messages.
// The hub delivers both; filtering is the listener's business.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityImportant
)

// ProgressEvent is a point-in-time snapshot of a signing run.
type ProgressEvent struct {
	Priority Priority
	Message  string
	Percent  int
}

type ProgressListener interface {
	OnProgress(ProgressEvent)
}

// listenerHub broadcasts progress events to subscribers. Mutations swap in
// a fresh snapshot slice, so a publish in flight always iterates a stable
// collection even while listeners come and go from other goroutines.
type listenerHub struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]ProgressListener]
}

func (h *listenerHub) Subscribe(l ProgressListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.load()
	next := make([]ProgressListener, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, l)
	h.snapshot.Store(&next)
}

func (h *listenerHub) Unsubscribe(l ProgressListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.load()
	next := make([]ProgressListener, 0, len(old))
	for _, cur := range old {
		if cur != l {
			next = append(next, cur)
		}
	}
	h.snapshot.Store(&next)
}

func (h *listenerHub) load() []ProgressListener {
	if p := h.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *listenerHub) publish(ev ProgressEvent) {
	for _, l := range h.load() {
		l.OnProgress(ev)
	}
}
