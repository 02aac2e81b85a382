package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/model"
)

// DefaultStateKey is the namespaced key the dispatch state is stored under.
const DefaultStateKey = "mailrelay:dispatch_state"

// StateRepo implements core.StateStore as a single JSON document in a CacheRepository.
type StateRepo struct {
	cache core.CacheRepository
	key   string
}

// StateRepoOptions configure a StateRepo.
type StateRepoOptions struct {
	Cache core.CacheRepository // Required
	Key   string               // Optional: defaults to DefaultStateKey
}

// NewStateRepo creates a StateRepo.
func NewStateRepo(opts StateRepoOptions) (*StateRepo, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache repository is required")
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = DefaultStateKey
	}
	return &StateRepo{cache: opts.Cache, key: key}, nil
}

// Key returns the storage key.
func (r *StateRepo) Key() string { return r.key }

// Load returns the stored state, or a zero state when nothing has been saved.
func (r *StateRepo) Load(ctx context.Context) (*model.DispatchState, error) {
	raw, err := r.cache.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("load dispatch state: %w", err)
	}
	if len(raw) == 0 {
		return model.NewDispatchState(), nil
	}
	return decodeState(raw)
}

// Save replaces the stored state. The key never expires.
func (r *StateRepo) Save(ctx context.Context, state *model.DispatchState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, r.key, raw, 0); err != nil {
		return fmt.Errorf("save dispatch state: %w", err)
	}
	return nil
}

// Clear deletes the stored state so the next Load yields the zero state.
func (r *StateRepo) Clear(ctx context.Context) error {
	if _, err := r.cache.Delete(ctx, r.key); err != nil {
		return fmt.Errorf("clear dispatch state: %w", err)
	}
	return nil
}

func encodeState(state *model.DispatchState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("dispatch state is required")
	}
	snapshot := state.Clone()
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode dispatch state: %w", err)
	}
	return raw, nil
}

func decodeState(raw []byte) (*model.DispatchState, error) {
	var st model.DispatchState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode dispatch state: %w", err)
	}
	st.Normalize()
	return &st, nil
}
