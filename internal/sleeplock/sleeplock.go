// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package sleeplock provides a mutex whose contended acquirers yield the
// goroutine rather than spinning, and which can report whether it is
// currently held. The latter is what distinguishes it from sync.Mutex: code
// that requires a lock to be held across a call chain can assert as much,
// turning ordering bugs into immediate panics instead of silent corruption.
package sleeplock

import "sync"

// A sleepable mutex. The zero value is an unlocked mutex.
//
// Unlike sync.Mutex, a Mutex tracks whether it is held, so Held may be used
// in precondition checks. It does not track *who* holds it; the usual
// discipline of unlocking from the acquiring goroutine is the caller's
// responsibility.
type Mutex struct {
	mu sync.Mutex

	// INVARIANT: held == false implies no goroutine is inside the critical
	// section.
	held bool // GUARDED_BY(mu)

	// Lazily initialized; always non-nil once a contended Lock has occurred.
	cond *sync.Cond // GUARDED_BY(mu)
}

// LOCKS_REQUIRED(l.mu)
func (l *Mutex) waiters() *sync.Cond {
	if l.cond == nil {
		l.cond = sync.NewCond(&l.mu)
	}

	return l.cond
}

// Acquire the mutex, yielding the calling goroutine until it is available.
func (l *Mutex) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.held {
		l.waiters().Wait()
	}

	l.held = true
}

// Release the mutex, waking one waiter if any. Panics if the mutex is not
// held.
func (l *Mutex) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		panic("sleeplock: unlock of unheld mutex")
	}

	l.held = false
	if l.cond != nil {
		l.cond.Signal()
	}
}

// Return whether the mutex is currently held. Useful only for precondition
// checks of the form "panic if not held"; the answer may be stale by the time
// the caller acts on it in any other context.
func (l *Mutex) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held
}
