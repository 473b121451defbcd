// Package store records state machine transitions in SQLite for later
// inspection.
package store

import "time"

// Transition is one recorded dispatch.
type Transition struct {
	ID           int64     `json:"id"`
	SessionID    int64     `json:"session_id"`
	Time         time.Time `json:"time"`
	Code         string    `json:"code"`
	Pressed      bool      `json:"pressed"`
	StateBefore  string    `json:"state_before"`
	StateAfter   string    `json:"state_after"`
	Result       string    `json:"result"`
	Redispatched bool      `json:"redispatched"`
}

// Session is one daemon run.
type Session struct {
	ID         int64     `json:"id"`
	UUID       string    `json:"uuid"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitzero"`
	ConfigPath string    `json:"config_path"`
}

// Stats summarizes the store.
type Stats struct {
	Transitions int64            `json:"transitions"`
	Sessions    int64            `json:"sessions"`
	Oldest      time.Time        `json:"oldest,omitzero"`
	Newest      time.Time        `json:"newest,omitzero"`
	ByState     map[string]int64 `json:"by_state"`
}
