// Package audit records an append-only history of placement, healing, and
// node-death events to Postgres.
//
// Repurposed from the teacher's db package (db/db.go), which stubbed out a
// bare pgx connection and a hand-written session table never wired to any
// handler. This package replaces that stub with a real gorm model the
// coordinator writes events to; nothing in the coordinator reads them back.
// When no DSN is configured,
// Sink is a no-op so the control plane never depends on Postgres being
// reachable — mirroring the teacher's own main.go, which leaves
// db.ConnectDB() commented out by default.
package audit

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Event is one row of the placement_events audit trail.
type Event struct {
	ID         uint `gorm:"primaryKey"`
	FileID     string
	ChunkID    string
	EventType  string // "placed", "retrieved", "healed", "heal_failed", "node_died"
	NodeID     string
	OccurredAt time.Time
}

// TableName stores events in the placement_events table.
func (Event) TableName() string { return "placement_events" }

// Sink records audit events. It never returns an error to the caller's
// control-plane operation: failures are logged and swallowed. The gorm
// sink writes each event synchronously.
type Sink interface {
	Record(e Event)
}

// noopSink is used when no AUDIT_DSN is configured.
type noopSink struct{}

func (noopSink) Record(Event) {}

// gormSink writes events to Postgres via gorm.
type gormSink struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// New returns a Sink backed by dsn, or a no-op Sink if dsn is empty.
// Connection errors are logged and degrade to a no-op rather than failing
// coordinator boot — the audit trail is an enrichment, not a dependency
// of the control plane.
func New(dsn string, logger *logrus.Logger) Sink {
	if dsn == "" {
		return noopSink{}
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.WithError(err).Warn("audit: could not connect to postgres, disabling audit log")
		return noopSink{}
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		logger.WithError(err).Warn("audit: could not migrate schema, disabling audit log")
		return noopSink{}
	}
	return &gormSink{db: db, logger: logger}
}

func (s *gormSink) Record(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if err := s.db.Create(&e).Error; err != nil {
		s.logger.WithError(err).Warn("audit: failed to record event")
	}
}
