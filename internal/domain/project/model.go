// Package project implements the Project entity: a stable, canonicalized
// key (the slug) standing in for a filesystem working copy or logical
// project name, under which agents, messages, and reservations live.
package project

import "time"

// Project is a coordination boundary: one archive, one set of agents.
type Project struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	HumanKey  string    `json:"human_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is a lightweight listing representation.
type Summary struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	HumanKey     string    `json:"human_key"`
	AgentCount   int       `json:"agent_count"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}
