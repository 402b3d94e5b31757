package store

import (
	"time"
)

// RunRecord is the persisted outcome of one reconciliation run. The
// record is immutable once written; the reconcilers never read it
// back.
type RunRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Org        string    `gorm:"index;not null" json:"org"`
	DryRun     bool      `gorm:"not null" json:"dry_run"`
	Force      bool      `gorm:"not null" json:"force"`
	StartedAt  time.Time `gorm:"index;not null" json:"started_at"`
	DurationMS int64     `json:"duration_ms"`

	// Summary counters for listings.
	TeamsChanged          int `json:"teams_changed"`
	ReposChanged          int `json:"repos_changed"`
	OwnersChanged         int `json:"owners_changed"`
	CollaboratorsRemoved  int `json:"collaborators_removed"`
	MembersWithoutTeam    int `json:"members_without_team"`

	// Changes is the full ledger report as JSON.
	Changes string `gorm:"type:text" json:"changes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// User is an API user for basic authentication.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
