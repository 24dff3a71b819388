package auth

import (
	"time"

	"github.com/xtrntr/energytrade/internal/models"
)

// Status is the authentication state of a session
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusValidating
	StatusAuthenticated
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusValidating:
		return "validating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusInvalid:
		return "invalid"
	}
	return "unknown"
}

// Outcome classifies a finished validation or profile fetch
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeCredential Outcome = "credential"
	OutcomeTransient  Outcome = "transient"
	OutcomeStale      Outcome = "stale"
	OutcomeCanceled   Outcome = "canceled"
)

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	Status        Status
	Authenticated bool
	HasToken      bool
	User          *models.User
	Epoch         uint64
	ChangedAt     time.Time
}
