// Package storage handles persistence of the watch-list snapshot.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mandarake-watch/pkg/watch"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/googleapi"
)

// snapshotObject is the single object/file holding the whole state.
const snapshotObject = "data.json"

// Store persists the snapshot to Google Cloud Storage, or to a local
// directory when localPath is set (development mode).
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler. Exactly one of bucket or localPath
// should be set; localPath wins when both are.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// Load reads the snapshot. A missing or unreadable snapshot yields an empty
// default rather than an error, so a fresh deployment starts clean and a
// corrupt file never wedges the service.
func (s *Store) Load(ctx context.Context) *watch.Snapshot {
	data, err := s.read(ctx)
	if err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Failed to load snapshot, starting empty", "error", err)
		}
		return watch.NewSnapshot()
	}

	var snap watch.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("Snapshot is corrupt, starting empty", "error", err)
		return watch.NewSnapshot()
	}
	if snap.Users == nil {
		snap.Users = make(map[string]*watch.UserRecord)
	}
	if snap.Settings == nil {
		snap.Settings = make(map[string]string)
	}
	return &snap
}

// Save writes the whole snapshot atomically: temp-file-then-rename locally,
// a single object write on Cloud Storage. A failure after retries is
// returned to the caller; silent data loss is not acceptable here.
func (s *Store) Save(ctx context.Context, snap *watch.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		finalPath := filepath.Join(s.localPath, snapshotObject)
		tmpPath := finalPath + ".tmp"
		if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
			return fmt.Errorf("write temp snapshot: %w", err)
		}
		if err := os.Rename(tmpPath, finalPath); err != nil {
			return fmt.Errorf("replace snapshot: %w", err)
		}
		s.logger.Debug("Snapshot saved to local storage", "path", finalPath, "user_count", len(snap.Users))
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(snapshotObject).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying snapshot save after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Debug("Snapshot saved", "bucket", s.bucket, "user_count", len(snap.Users))
	return nil
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	// Local filesystem storage
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, snapshotObject))
		if err != nil {
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	// Cloud Storage with retry logic for reliability
	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(snapshotObject).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying snapshot load after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func isNotExist(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, os.ErrNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
