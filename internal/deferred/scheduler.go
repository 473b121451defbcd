// Package deferred runs callbacks after a delay on the engine goroutine.
//
// Scheduler is cooperative: nothing fires until Poll is called, and callbacks
// run synchronously inside Poll. A callback returns the delay until it should
// run again, or 0 to finish.
package deferred

import (
	"sort"
	"time"

	"superkeys/internal/clock"
)

// Token identifies a scheduled callback. The zero Token is invalid.
type Token uint32

// InvalidToken is returned when nothing was scheduled.
const InvalidToken Token = 0

// DefaultCapacity bounds the number of concurrently scheduled callbacks.
const DefaultCapacity = 8

// Func is a scheduled callback. trigger is the time it was due.
type Func func(trigger time.Time) time.Duration

type entry struct {
	due time.Time
	fn  Func
}

// Scheduler holds pending callbacks.
type Scheduler struct {
	clock    clock.Clock
	capacity int
	next     Token
	entries  map[Token]*entry
}

// NewScheduler creates a scheduler reading time from c.
func NewScheduler(c clock.Clock) *Scheduler {
	return &Scheduler{
		clock:    c,
		capacity: DefaultCapacity,
		entries:  make(map[Token]*entry),
	}
}

// Schedule runs fn after delay. It returns InvalidToken when delay is not
// positive, fn is nil or the scheduler is full.
func (s *Scheduler) Schedule(delay time.Duration, fn Func) Token {
	if delay <= 0 || fn == nil || len(s.entries) >= s.capacity {
		return InvalidToken
	}
	s.next++
	if s.next == InvalidToken {
		s.next++
	}
	s.entries[s.next] = &entry{due: s.clock.Now().Add(delay), fn: fn}
	return s.next
}

// Extend moves the deadline of token to now+delay. It reports false for an
// unknown token.
func (s *Scheduler) Extend(token Token, delay time.Duration) bool {
	e, ok := s.entries[token]
	if !ok {
		return false
	}
	e.due = s.clock.Now().Add(delay)
	return true
}

// Cancel drops token. It reports false for an unknown token.
func (s *Scheduler) Cancel(token Token) bool {
	if _, ok := s.entries[token]; !ok {
		return false
	}
	delete(s.entries, token)
	return true
}

// Pending returns the number of scheduled callbacks.
func (s *Scheduler) Pending() int { return len(s.entries) }

// Next returns the earliest deadline.
func (s *Scheduler) Next() (time.Time, bool) {
	var (
		best  time.Time
		found bool
	)
	for _, e := range s.entries {
		if !found || e.due.Before(best) {
			best, found = e.due, true
		}
	}
	return best, found
}

// Poll runs every callback due at now, earliest first, and returns how many
// ran. Callbacks may schedule, extend or cancel other tokens.
func (s *Scheduler) Poll(now time.Time) int {
	type due struct {
		token Token
		at    time.Time
	}
	var ready []due
	for tok, e := range s.entries {
		if !e.due.After(now) {
			ready = append(ready, due{tok, e.due})
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].at.Equal(ready[j].at) {
			return ready[i].token < ready[j].token
		}
		return ready[i].at.Before(ready[j].at)
	})

	ran := 0
	for _, r := range ready {
		e, ok := s.entries[r.token]
		if !ok || e.due.After(now) {
			continue
		}
		next := e.fn(e.due)
		ran++
		if _, still := s.entries[r.token]; !still {
			continue
		}
		if next > 0 {
			e.due = now.Add(next)
		} else {
			delete(s.entries, r.token)
		}
	}
	return ran
}
