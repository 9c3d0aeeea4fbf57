package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunRecord is the persisted metadata of one diagnostic run. Transcript
// and narrative bodies stay out of the database; only the verdict and
// counters survive past registry eviction.
type RunRecord struct {
	ID            uuid.UUID `json:"id"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Transport     string    `json:"transport"`
	Stage         string    `json:"stage"`
	Degraded      bool      `json:"degraded"`
	Failure       string    `json:"failure,omitempty"`
	Error         string    `json:"error,omitempty"`
	Verdict       string    `json:"verdict,omitempty"`
	Triggered     []string  `json:"triggered,omitempty"`
	CommandsTotal int       `json:"commands_total"`
	CommandsOK    int       `json:"commands_ok"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Profile is a stored credential set. Secrets holds the AES-256-GCM
// encrypted credential payload and is never serialized into responses.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Transport string    `json:"transport"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username"`
	Secrets   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Querier is the persistence surface the handlers and the runner depend
// on. Tests substitute a mock.
type Querier interface {
	InsertRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	ListProfiles(ctx context.Context) ([]*Profile, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error
}

var _ Querier = (*Store)(nil)
