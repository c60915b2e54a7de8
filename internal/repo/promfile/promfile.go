// Package promfile persists service promotion bindings in a JSON file so a
// serving process can recover its bound run across restarts without a
// database, and so a file watcher can observe rollouts.
package promfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
)

type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("promotion file path is required")
	}
	return &Store{path: path}, nil
}

// Path is the backing file, suitable for handing to a file watcher.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) GetBinding(ctx context.Context, service string) (domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bindings, err := s.load()
	if err != nil {
		return domain.Promotion{}, err
	}
	binding, ok := bindings[service]
	if !ok {
		return domain.Promotion{}, repo.ErrNotFound
	}
	return binding, nil
}

func (s *Store) PutBinding(ctx context.Context, promotion domain.Promotion) error {
	if err := promotion.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bindings, err := s.load()
	if err != nil {
		return err
	}
	bindings[promotion.Service] = promotion
	return s.save(bindings)
}

func (s *Store) load() (map[string]domain.Promotion, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]domain.Promotion{}, nil
		}
		return nil, fmt.Errorf("read promotion file: %w", err)
	}
	if len(raw) == 0 {
		return map[string]domain.Promotion{}, nil
	}
	var bindings map[string]domain.Promotion
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return nil, fmt.Errorf("decode promotion file: %w", err)
	}
	if bindings == nil {
		bindings = map[string]domain.Promotion{}
	}
	return bindings, nil
}

// save writes to a temp file and renames so readers and watchers never see a
// torn write.
func (s *Store) save(bindings map[string]domain.Promotion) error {
	raw, err := json.MarshalIndent(bindings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode promotion file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create promotion dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".promotions-*.json")
	if err != nil {
		return fmt.Errorf("create temp promotion file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write promotion file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close promotion file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace promotion file: %w", err)
	}
	return nil
}
