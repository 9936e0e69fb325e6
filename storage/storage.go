// Package storage archives conversation transcripts so sessions can be resumed.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boat-builder/convo/llm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrSessionNotFound    = errors.New("storage: no transcript stored for session")
	ErrTranscriptDiverged = errors.New("storage: transcript does not extend the stored one")
)

// TranscriptEntry is one stored message. Seq is the message's position in
// its session's transcript.
type TranscriptEntry struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"not null;size:64;uniqueIndex:idx_session_seq"`
	Seq       int    `gorm:"not null;uniqueIndex:idx_session_seq"`
	Role      string `gorm:"not null;size:16"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}

func (TranscriptEntry) TableName() string {
	return "transcript_entries"
}

// Store keeps transcripts in a SQL database through gorm.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to a "postgres" or "sqlite" database and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
	return New(dialector)
}

// New wraps an arbitrary gorm dialector.
func New(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&TranscriptEntry{}); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.With().Str("module", "storage").Logger(),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save brings the stored transcript of sessionID up to date with messages.
// Transcripts only grow, so the stored entries must be a prefix of messages.
func (s *Store) Save(ctx context.Context, sessionID string, messages []llm.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored []TranscriptEntry
		if err := tx.Where("session_id = ?", sessionID).Order("seq").Find(&stored).Error; err != nil {
			return fmt.Errorf("failed to query transcript: %w", err)
		}

		if len(stored) > len(messages) {
			return fmt.Errorf("%w: %d stored, %d given", ErrTranscriptDiverged, len(stored), len(messages))
		}
		for i, entry := range stored {
			if llm.Role(entry.Role) != messages[i].Role || entry.Content != messages[i].Content {
				return fmt.Errorf("%w: entry %d differs", ErrTranscriptDiverged, i)
			}
		}

		fresh := make([]TranscriptEntry, 0, len(messages)-len(stored))
		for i := len(stored); i < len(messages); i++ {
			fresh = append(fresh, TranscriptEntry{
				SessionID: sessionID,
				Seq:       i,
				Role:      string(messages[i].Role),
				Content:   messages[i].Content,
			})
		}
		if len(fresh) == 0 {
			return nil
		}
		if err := tx.Create(&fresh).Error; err != nil {
			return fmt.Errorf("failed to save transcript: %w", err)
		}

		s.logger.Debug().Str("session_id", sessionID).Int("added", len(fresh)).Msg("Transcript saved")
		return nil
	})
}

// Load returns the stored transcript of sessionID in order.
func (s *Store) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	var entries []TranscriptEntry
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	messages := make([]llm.Message, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, llm.Message{Role: llm.Role(entry.Role), Content: entry.Content})
	}
	return messages, nil
}

// Sessions lists the ids of every stored session.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&TranscriptEntry{}).
		Distinct().
		Order("session_id").
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}
