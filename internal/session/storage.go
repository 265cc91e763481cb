package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
)

// Storage keys. The token and the identity are always written and removed
// together.
const (
	KeyToken       = "token"
	KeyCurrentUser = "currentUser"
)

// Snapshot is what a session persists.
type Snapshot struct {
	Token string
	User  *domain.User
}

// Valid reports whether both halves are present.
func (s *Snapshot) Valid() bool {
	return s != nil && s.Token != "" && s.User.Valid()
}

// Storage persists a session snapshot. Load returns (nil, nil) when nothing
// is stored. Save and Clear write both keys or neither.
type Storage interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

// ErrCorrupt is returned when stored data cannot be decoded or only one of
// the two keys is present.
var ErrCorrupt = errors.New("stored session is corrupt")

// encode renders a snapshot as the two key values.
func encode(snap Snapshot) (map[string]string, error) {
	user, err := json.Marshal(snap.User)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	return map[string]string{KeyToken: snap.Token, KeyCurrentUser: string(user)}, nil
}

// decode rebuilds a snapshot from the two key values. Both empty means
// nothing is stored.
func decode(token, user string) (*Snapshot, error) {
	if token == "" && user == "" {
		return nil, nil
	}
	if token == "" || user == "" {
		return nil, ErrCorrupt
	}
	var u domain.User
	if err := json.Unmarshal([]byte(user), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &Snapshot{Token: token, User: &u}, nil
}

// =============================================================================
// Memory
// =============================================================================

// MemoryStorage keeps the snapshot in process memory.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage creates an empty memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decode(m.values[KeyToken], m.values[KeyCurrentUser])
}

func (m *MemoryStorage) Save(_ context.Context, snap Snapshot) error {
	values, err := encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.values = values
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	m.values = make(map[string]string)
	m.mu.Unlock()
	return nil
}

// Set writes one raw key. It exists to simulate partially written storage.
func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

// =============================================================================
// File
// =============================================================================

// FileStorage keeps the snapshot in a JSON file. Writes go to a temporary
// file in the same directory and are renamed into place.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage creates a file storage at path. The file is created on the
// first Save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the file location.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Load(context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return decode(values[KeyToken], values[KeyCurrentUser])
}

func (f *FileStorage) Save(_ context.Context, snap Snapshot) error {
	values, err := encode(snap)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
