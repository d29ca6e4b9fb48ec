package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "cadencebot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <path>                      (JSON object keyed by instance name, rewritten wholesale)
//   - <prefix>.actions.jsonl      (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	instancesPath string
	actionsPath   string
	actionsFile   *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	actionsPath := prefix + ".actions.jsonl"
	af, err := os.OpenFile(actionsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:           log,
		instancesPath: path,
		actionsPath:   actionsPath,
		actionsFile:   af,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actionsFile == nil {
		return nil
	}
	err := s.actionsFile.Close()
	s.actionsFile = nil
	return err
}

func (s *fileStore) LoadInstances(ctx context.Context) ([]InstanceRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.instancesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytesTrim(b)) == 0 {
		return nil, nil
	}

	var m map[string]InstanceRecord
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.instancesPath, err)
	}
	out := make([]InstanceRecord, 0, len(m))
	for key, rec := range m {
		// The map key is authoritative for identity.
		if rec.Name != key {
			s.log.Debug("instance record name differs from key; using key", logx.String("key", key), logx.String("name", rec.Name))
			rec.Name = key
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fileStore) SaveInstances(ctx context.Context, recs []InstanceRecord) error {
	_ = ctx
	m := make(map[string]InstanceRecord, len(recs))
	for _, r := range recs {
		m[r.Name] = r
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.instancesPath + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.instancesPath)
}

func (s *fileStore) AppendAction(ctx context.Context, rec ActionRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actionsFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.actionsFile).Encode(rec)
}

func (s *fileStore) RecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.actionsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make([]ActionRecord, 0, limit)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r ActionRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
		if len(out) > limit {
			out = out[1:]
		}
	}
	return out, sc.Err()
}

func bytesTrim(b []byte) []byte {
	return []byte(strings.TrimSpace(string(b)))
}
