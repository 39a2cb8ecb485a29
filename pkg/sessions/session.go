package sessions

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a session
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Validate checks if the status is valid
func (s Status) Validate() error {
	switch s {
	case StatusActive, StatusCompleted, StatusFailed:
		return nil
	}
	return fmt.Errorf("invalid session status: %q", s)
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Role identifies which agent produced a message
type Role string

const (
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
	RoleSystem  Role = "system"
)

// Validate checks if the role is valid
func (r Role) Validate() error {
	switch r {
	case RoleManager, RoleWorker, RoleSystem:
		return nil
	}
	return fmt.Errorf("invalid message role: %q", r)
}

// Session represents one manager/worker coding-assistant session
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       Status    `json:"status"`
	ManagerModel string    `json:"manager_model,omitempty"`
	WorkerModel  string    `json:"worker_model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one transcript entry within a session
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
