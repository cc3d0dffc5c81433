package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/runlens/runlens/internal/domain"
	"github.com/runlens/runlens/internal/domain/workflow"
)

// DescriptorService holds the registered workflow descriptors and the
// immutable node index built for each. One index is built per key and shared
// by every run of that workflow; registration is the only write path.
type DescriptorService struct {
	mu      sync.RWMutex
	descs   map[string]workflow.Descriptor
	indexes map[string]*workflow.Index
}

// NewDescriptorService creates an empty descriptor registry.
func NewDescriptorService() *DescriptorService {
	return &DescriptorService{
		descs:   make(map[string]workflow.Descriptor),
		indexes: make(map[string]*workflow.Index),
	}
}

// Register validates the descriptor, builds its node index and stores both
// under the descriptor key. Keys are write-once: live runs may already route
// by the existing index, so re-registering a key returns ErrConflict.
func (s *DescriptorService) Register(d *workflow.Descriptor) error {
	idx, err := workflow.NewIndex(d)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.descs[d.Key]; exists {
		return fmt.Errorf("workflow %q already registered: %w", d.Key, domain.ErrConflict)
	}
	s.descs[d.Key] = *d
	s.indexes[d.Key] = idx
	slog.Info("workflow registered", "workflow", d.Key, "nodes", len(idx.Nodes()))
	return nil
}

// LoadDirectory registers every descriptor found in dir. A missing directory
// registers nothing. Returns the number of workflows registered.
func (s *DescriptorService) LoadDirectory(dir string) (int, error) {
	descs, err := workflow.LoadFromDirectory(dir)
	if err != nil {
		return 0, fmt.Errorf("load workflows: %w", err)
	}
	for i := range descs {
		if err := s.Register(&descs[i]); err != nil {
			return i, err
		}
	}
	return len(descs), nil
}

// Descriptor returns the registered descriptor for a key.
func (s *DescriptorService) Descriptor(key string) (*workflow.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descs[key]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", key, domain.ErrNotFound)
	}
	return &d, nil
}

// Index returns the node index for a key.
func (s *DescriptorService) Index(key string) (*workflow.Index, error) {
	idx, ok := s.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", key, domain.ErrNotFound)
	}
	return idx, nil
}

// Lookup is the non-error variant of Index for callers that probe keys
// taken from untrusted event traffic.
func (s *DescriptorService) Lookup(key string) (*workflow.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[key]
	return idx, ok
}

// List returns all registered descriptors sorted by key.
func (s *DescriptorService) List() []workflow.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Descriptor, 0, len(s.descs))
	for _, d := range s.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
