package events

import (
	"time"

	"github.com/mernacademy/student-auth/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered EventType = "account_registered"
	EventEmailVerified     EventType = "email_verified"
	EventPasswordReset     EventType = "password_reset"
	EventPasswordChanged   EventType = "password_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id"`
	Email     string      `json:"email"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// AccountRegisteredPayload carries signup details for downstream
// collaborators such as the student records service.
type AccountRegisteredPayload struct {
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
	Course string      `json:"course,omitempty"`
}
