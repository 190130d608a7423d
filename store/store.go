// Package store persists the ledger state as one JSON document under a single key of a
// string key/value collaborator, and serializes load→mutate→save cycles.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/onnwee/tank-queue/ledger"
	"github.com/onnwee/tank-queue/telemetry"
)

// DefaultKey is the kv key holding the serialized ledger state.
const DefaultKey = "tq.state"

// ErrNoChange may be returned by an Update callback to skip the save.
var ErrNoChange = errors.New("store: no change")

// KV is the persistence collaborator. Get returns "" for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// StateStore loads and saves ledger.State. Update is the only safe way to mutate state
// when more than one goroutine dispatches actions.
type StateStore struct {
	kv  KV
	key string
	mu  sync.Mutex
}

// New returns a store over kv. An empty key selects DefaultKey.
func New(kv KV, key string) *StateStore {
	if key == "" {
		key = DefaultKey
	}
	return &StateStore{kv: kv, key: key}
}

// Key reports the kv key the state lives under.
func (s *StateStore) Key() string { return s.key }

// Load reads the state. A missing or empty blob yields a fresh state. A blob that does
// not parse is logged, counted, copied to "<key>.corrupt" and replaced by a fresh state;
// only kv read failures are returned as errors.
func (s *StateStore) Load(ctx context.Context) (*ledger.State, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	if strings.TrimSpace(raw) == "" {
		return ledger.NewState(), nil
	}
	st := ledger.NewState()
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("ledger state is corrupt, starting from empty state",
			slog.String("key", s.key), slog.Int("bytes", len(raw)), slog.Any("err", err), slog.String("component", "store"))
		if telemetry.StateCorrupt != nil {
			telemetry.StateCorrupt.Inc()
		}
		if serr := s.kv.Set(ctx, s.key+".corrupt", raw); serr != nil {
			slog.Warn("could not preserve corrupt state", slog.Any("err", serr), slog.String("component", "store"))
		}
		return ledger.NewState(), nil
	}
	st.Normalize()
	return st, nil
}

// Save overwrites the stored blob with st.
func (s *StateStore) Save(ctx context.Context, st *ledger.State) error {
	if st == nil {
		st = ledger.NewState()
	}
	st.Normalize()
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(b)); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

// Update runs load→fn→save while holding the store lock and returns the state fn saw.
// If fn returns ErrNoChange the save is skipped and Update returns nil error; any other
// error also skips the save and is returned.
func (s *StateStore) Update(ctx context.Context, fn func(*ledger.State) error) (*ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		if errors.Is(err, ErrNoChange) {
			return st, nil
		}
		return st, err
	}
	if err := s.Save(ctx, st); err != nil {
		return st, err
	}
	return st, nil
}

// View loads the state under the store lock without saving.
func (s *StateStore) View(ctx context.Context) (*ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Load(ctx)
}

// Reset replaces the stored state with an empty one.
func (s *StateStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Save(ctx, ledger.NewState())
}
