package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/repository/atomicfile"
)

// Repository defines persistence operations for the monitor state.
type Repository interface {
	Load(ctx context.Context) (liveness.MonitorState, error)
	Save(ctx context.Context, state liveness.MonitorState) error
}

// FileRepository persists the monitor state to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// rename replaces the state file with the freshly written temporary file.
	rename atomicfile.RenameFunc
	// now stamps saved documents.
	now func() time.Time
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

const documentVersion = 1

var (
	// ErrNotFound is returned when the state has never been saved.
	ErrNotFound = errors.New("state not found")

	// ErrCorrupt is returned when stored state cannot be decoded.
	ErrCorrupt = errors.New("state is corrupt")
)

type document struct {
	Version int                       `json:"version"`
	SavedAt time.Time                 `json:"saved_at"`
	Devices map[string]recordDocument `json:"devices"`
}

type recordDocument struct {
	Status               string    `json:"status"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastChangedAt        time.Time `json:"last_changed_at,omitzero"`
	LastCheckedAt        time.Time `json:"last_checked_at,omitzero"`
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path:   filepath.Clean(path),
		rename: os.Rename,
		now:    time.Now,
	}
}

// Load reads the state from disk.
func (r *FileRepository) Load(_ context.Context) (liveness.MonitorState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc document
	if err = json.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode state file: %w", ErrCorrupt, err)
	}

	if doc.Version != documentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)
	}

	return fromDocument(&doc)
}

// Save atomically replaces the state file.
func (r *FileRepository) Save(_ context.Context, state liveness.MonitorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(toDocument(state, r.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err = atomicfile.WriteWith(r.path, data, config.DefaultFilePermissions, r.rename); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

// LoadOrEmpty loads the state and degrades any failure to an empty state.
// The error is returned for reporting only; callers are expected to continue.
func LoadOrEmpty(ctx context.Context, repo Repository) (liveness.MonitorState, error) {
	loaded, err := repo.Load(ctx)
	if err == nil {
		return loaded, nil
	}

	if errors.Is(err, ErrNotFound) {
		logger.Info(ctx, "no saved state, starting with every device UNKNOWN")
		return liveness.MonitorState{}, err
	}

	logger.ErrorKV(ctx, "saved state is unusable, starting with every device UNKNOWN", "error", err)

	return liveness.MonitorState{}, err
}

// fromDocument converts the stored document into the domain state.
func fromDocument(doc *document) (liveness.MonitorState, error) {
	state := make(liveness.MonitorState, len(doc.Devices))

	for id, stored := range doc.Devices {
		status, err := liveness.ParseStatus(stored.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: device %q: %w", ErrCorrupt, id, err)
		}

		state[id] = liveness.Record{
			DeviceID:             id,
			Status:               status,
			ConsecutiveFailures:  stored.ConsecutiveFailures,
			ConsecutiveSuccesses: stored.ConsecutiveSuccesses,
			LastChangedAt:        stored.LastChangedAt,
			LastCheckedAt:        stored.LastCheckedAt,
		}
	}

	return state, nil
}

// toDocument converts the domain state into the stored document.
func toDocument(state liveness.MonitorState, savedAt time.Time) *document {
	doc := &document{
		Version: documentVersion,
		SavedAt: savedAt.UTC(),
		Devices: make(map[string]recordDocument, len(state)),
	}

	for id, record := range state {
		doc.Devices[id] = recordDocument{
			Status:               string(record.Status),
			ConsecutiveFailures:  record.ConsecutiveFailures,
			ConsecutiveSuccesses: record.ConsecutiveSuccesses,
			LastChangedAt:        record.LastChangedAt,
			LastCheckedAt:        record.LastCheckedAt,
		}
	}

	return doc
}
