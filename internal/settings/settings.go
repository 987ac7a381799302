// Package settings stores class-level feature toggles, such as whether
// submissions are open or a payment method is enabled.
package settings

import (
	"context"
	"log/slog"
	"time"

	"github.com/duetrack/duetrack/internal/remote"
)

// Toggle is one named boolean setting.
type Toggle struct {
	Key       string    `json:"key"`
	Enabled   bool      `json:"enabled"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Service reads and writes toggles through the record store.
type Service struct {
	records remote.RecordStore
	logger  *slog.Logger
	nowFn   func() time.Time
}

func NewService(records remote.RecordStore, logger *slog.Logger) *Service {
	return &Service{records: records, logger: logger, nowFn: time.Now}
}

// List returns all toggles.
func (s *Service) List(ctx context.Context) ([]Toggle, error) {
	rows, err := s.records.Select(ctx, remote.TableSettings, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Toggle, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRecord(row))
	}
	return out, nil
}

// Get returns one toggle. Unset keys read as disabled.
func (s *Service) Get(ctx context.Context, key string) (Toggle, error) {
	rows, err := s.records.Select(ctx, remote.TableSettings, remote.Filter{"key": key})
	if err != nil {
		return Toggle{}, err
	}
	if len(rows) == 0 {
		return Toggle{Key: key}, nil
	}
	return fromRecord(rows[0]), nil
}

// Set upserts a toggle.
func (s *Service) Set(ctx context.Context, key string, enabled bool, updatedBy string) (Toggle, error) {
	now := s.nowFn()

	rows, err := s.records.Select(ctx, remote.TableSettings, remote.Filter{"key": key})
	if err != nil {
		return Toggle{}, err
	}

	if len(rows) > 0 {
		err = s.records.Update(ctx, remote.TableSettings, remote.Filter{"key": key}, remote.Record{
			"value":      enabled,
			"updated_by": updatedBy,
			"updated_at": now,
		})
	} else {
		_, err = s.records.Insert(ctx, remote.TableSettings, remote.Record{
			"key":        key,
			"value":      enabled,
			"updated_by": updatedBy,
			"updated_at": now,
		})
	}
	if err != nil {
		return Toggle{}, err
	}

	s.logger.Info("setting changed", "key", key, "enabled", enabled, "by", updatedBy)
	return Toggle{Key: key, Enabled: enabled, UpdatedBy: updatedBy, UpdatedAt: now}, nil
}

func fromRecord(row remote.Record) Toggle {
	toggle := Toggle{}
	if key, ok := row["key"].(string); ok {
		toggle.Key = key
	}
	if enabled, ok := row["value"].(bool); ok {
		toggle.Enabled = enabled
	}
	if by, ok := row["updated_by"].(string); ok {
		toggle.UpdatedBy = by
	}
	switch v := row["updated_at"].(type) {
	case time.Time:
		toggle.UpdatedAt = v
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			toggle.UpdatedAt = ts
		}
	}
	return toggle
}
