// Package pgeventstore is the Postgres-backed eventstore.Store, using
// GORM over pgx the same way the rest of this codebase talks to
// Postgres.
package pgeventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/weitingchou/jagereye/internal/eventstore"
	"github.com/weitingchou/jagereye/internal/platform/logger"
)

// EventContent is the content sub-document: open-ended, event-type
// specific payload.
type EventContent struct {
	ID      uint `gorm:"primaryKey"`
	Payload string
}

// baseEventRow is the GORM model backing eventstore.BaseEvent.
type baseEventRow struct {
	ID         uint `gorm:"primaryKey"`
	AnalyzerID string
	Type       string
	AppName    string
	Timestamp  float64
	Date       time.Time
	ContentID  string
}

func (baseEventRow) TableName() string { return "base_events" }
func (EventContent) TableName() string { return "event_contents" }

// Store is the Postgres-backed eventstore.Store.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Config holds connection parameters, read the same way the rest of this
// module reads its environment.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// New opens a Postgres connection via GORM and auto-migrates the event
// tables.
func New(cfg Config, zlog *logger.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("pgeventstore: connect: %w", err)
	}
	if err := db.AutoMigrate(&EventContent{}, &baseEventRow{}); err != nil {
		return nil, fmt.Errorf("pgeventstore: auto migrate: %w", err)
	}
	return &Store{db: db, log: zlog.With("component", "pgeventstore")}, nil
}

// InsertContents stores each content document and returns the generated
// row ID, as a string, per input item in order.
func (s *Store) InsertContents(ctx context.Context, contents []map[string]any) ([]string, error) {
	ids := make([]string, len(contents))
	for i, c := range contents {
		payload, err := marshalPayload(c)
		if err != nil {
			return nil, fmt.Errorf("pgeventstore: marshal content %d: %w", i, err)
		}
		row := EventContent{Payload: payload}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, fmt.Errorf("pgeventstore: insert content %d: %w", i, err)
		}
		ids[i] = fmt.Sprintf("%d", row.ID)
	}
	return ids, nil
}

// InsertBaseEvents stores the index documents in one batch.
func (s *Store) InsertBaseEvents(ctx context.Context, events []eventstore.BaseEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]baseEventRow, len(events))
	for i, e := range events {
		rows[i] = baseEventRow{
			AnalyzerID: e.AnalyzerID,
			Type:       e.Type,
			AppName:    e.AppName,
			Timestamp:  e.Timestamp,
			Date:       e.Date,
			ContentID:  e.ContentID,
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("pgeventstore: insert base events: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func marshalPayload(c map[string]any) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
