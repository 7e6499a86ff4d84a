package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/repository/atomicfile"
)

const corruptSuffixLayout = "20060102T150405.000000000Z"

// FileRegistry keeps the registry in memory and persists it as one JSON document.
type FileRegistry struct {
	path        string
	rename      atomicfile.RenameFunc
	now         func() time.Time
	subscribers map[int64]liveness.Subscriber
	pending     map[int64]liveness.PendingRequest
	// mu serializes mutations together with their write to disk.
	mu sync.Mutex
}

type document struct {
	Subscribers []subscriberDocument `json:"subscribers"`
	Pending     []pendingDocument    `json:"pending"`
}

type subscriberDocument struct {
	ChatID  int64     `json:"chat_id"`
	AddedAt time.Time `json:"added_at,omitzero"`
}

type pendingDocument struct {
	ChatID      int64     `json:"chat_id"`
	DisplayName string    `json:"display_name,omitempty"`
	RequestedAt time.Time `json:"requested_at,omitzero"`
}

// NewFileRegistry opens the registry stored at path. A missing file is an empty registry.
// A corrupt file is an error; see OpenOrEmpty for the degrading variant.
func NewFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{
		path:        filepath.Clean(path),
		rename:      os.Rename,
		now:         time.Now,
		subscribers: make(map[int64]liveness.Subscriber),
		pending:     make(map[int64]liveness.PendingRequest),
	}

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}

		return nil, fmt.Errorf("read subscribers file: %w", err)
	}

	var doc document
	if err = json.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode subscribers file: %w", ErrCorrupt, err)
	}

	for _, s := range doc.Subscribers {
		r.subscribers[s.ChatID] = liveness.Subscriber(s)
	}

	for _, p := range doc.Pending {
		r.pending[p.ChatID] = liveness.PendingRequest(p)
	}

	return r, nil
}

// OpenOrEmpty opens the registry stored at path and degrades a corrupt document to an
// empty registry. The corrupt file is first renamed to "<path>.corrupt-<timestamp>" so
// no later write replaces it. The returned error wraps ErrCorrupt and is for reporting
// only; any other failure returns a nil registry.
func OpenOrEmpty(path string) (*FileRegistry, error) {
	r, err := NewFileRegistry(path)
	if err == nil || !errors.Is(err, ErrCorrupt) {
		return r, err
	}

	aside := fmt.Sprintf("%s.corrupt-%s", filepath.Clean(path), time.Now().UTC().Format(corruptSuffixLayout))
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return nil, fmt.Errorf("move corrupt subscribers file aside: %w", renameErr)
	}

	r, openErr := NewFileRegistry(path)
	if openErr != nil {
		return nil, openErr
	}

	return r, fmt.Errorf("%w (kept as %s)", err, aside)
}

// List returns the subscribers sorted by chat ID.
func (r *FileRegistry) List(_ context.Context) ([]liveness.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedSubscribers(r.subscribers), nil
}

// Pending returns the pending requests sorted by chat ID.
func (r *FileRegistry) Pending(_ context.Context) ([]liveness.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedPending(r.pending), nil
}

// Add subscribes the chat.
func (r *FileRegistry) Add(_ context.Context, chatID int64) (AddResult, error) {
	if chatID == 0 {
		return "", ErrInvalidChatID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[chatID]; ok {
		return AlreadyPresent, nil
	}

	err := r.mutate(func(subscribers map[int64]liveness.Subscriber, pending map[int64]liveness.PendingRequest) {
		subscribers[chatID] = liveness.Subscriber{ChatID: chatID, AddedAt: r.now().UTC()}
		delete(pending, chatID)
	})
	if err != nil {
		return "", err
	}

	return Added, nil
}

// Remove unsubscribes the chat and drops its pending request.
func (r *FileRegistry) Remove(_ context.Context, chatID int64) (RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, subscribed := r.subscribers[chatID]
	_, pending := r.pending[chatID]

	if !subscribed && !pending {
		return NotPresent, nil
	}

	err := r.mutate(func(subscribers map[int64]liveness.Subscriber, pending map[int64]liveness.PendingRequest) {
		delete(subscribers, chatID)
		delete(pending, chatID)
	})
	if err != nil {
		return "", err
	}

	return Removed, nil
}

// Request records an access request from the chat.
func (r *FileRegistry) Request(_ context.Context, chatID int64, displayName string) (RequestResult, error) {
	if chatID == 0 {
		return "", ErrInvalidChatID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[chatID]; ok {
		return AlreadySubscribed, nil
	}

	if _, ok := r.pending[chatID]; ok {
		return AlreadyPending, nil
	}

	err := r.mutate(func(_ map[int64]liveness.Subscriber, pending map[int64]liveness.PendingRequest) {
		pending[chatID] = liveness.PendingRequest{
			ChatID:      chatID,
			DisplayName: displayName,
			RequestedAt: r.now().UTC(),
		}
	})
	if err != nil {
		return "", err
	}

	return RequestCreated, nil
}

// Approve moves a pending request to the subscribers.
func (r *FileRegistry) Approve(_ context.Context, chatID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[chatID]; !ok {
		return false, nil
	}

	err := r.mutate(func(subscribers map[int64]liveness.Subscriber, pending map[int64]liveness.PendingRequest) {
		delete(pending, chatID)
		subscribers[chatID] = liveness.Subscriber{ChatID: chatID, AddedAt: r.now().UTC()}
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// Deny drops a pending request.
func (r *FileRegistry) Deny(_ context.Context, chatID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[chatID]; !ok {
		return false, nil
	}

	err := r.mutate(func(_ map[int64]liveness.Subscriber, pending map[int64]liveness.PendingRequest) {
		delete(pending, chatID)
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// mutate applies change to copies of the registry, persists them, and only then
// swaps them in. A failed write leaves the in-memory registry untouched.
// Callers must hold r.mu.
func (r *FileRegistry) mutate(change func(map[int64]liveness.Subscriber, map[int64]liveness.PendingRequest)) error {
	subscribers := maps.Clone(r.subscribers)
	pending := maps.Clone(r.pending)

	change(subscribers, pending)

	doc := document{
		Subscribers: make([]subscriberDocument, 0, len(subscribers)),
		Pending:     make([]pendingDocument, 0, len(pending)),
	}

	for _, s := range sortedSubscribers(subscribers) {
		doc.Subscribers = append(doc.Subscribers, subscriberDocument(s))
	}

	for _, p := range sortedPending(pending) {
		doc.Pending = append(doc.Pending, pendingDocument(p))
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subscribers: %w", err)
	}

	if err = atomicfile.WriteWith(r.path, data, config.DefaultFilePermissions, r.rename); err != nil {
		return fmt.Errorf("write subscribers file: %w", err)
	}

	r.subscribers = subscribers
	r.pending = pending

	return nil
}

func sortedSubscribers(set map[int64]liveness.Subscriber) []liveness.Subscriber {
	result := make([]liveness.Subscriber, 0, len(set))
	for _, id := range slices.Sorted(maps.Keys(set)) {
		result = append(result, set[id])
	}

	return result
}

func sortedPending(set map[int64]liveness.PendingRequest) []liveness.PendingRequest {
	result := make([]liveness.PendingRequest, 0, len(set))
	for _, id := range slices.Sorted(maps.Keys(set)) {
		result = append(result, set[id])
	}

	return result
}
