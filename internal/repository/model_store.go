package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/regression"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
)

// FileModelStore keeps one JSON artifact per (timeframe, family) under dir/<tf>/<family>.json.
type FileModelStore struct {
	dir   string
	codec regression.Codec
}

func NewFileModelStore(dir string, codec regression.Codec) *FileModelStore {
	return &FileModelStore{dir: dir, codec: codec}
}

func (s *FileModelStore) path(tf domrepo.Timeframe, fam models.ModelFamily) string {
	return filepath.Join(s.dir, tableSuffix(tf), string(fam)+".json")
}

type stagedArtifact struct {
	tmp, target, backup string
	hadPrev             bool
}

// Save stages every artifact as a temp file next to its target and renames them into place
// only once all writes succeeded. A failed rename restores the artifacts replaced so far.
func (s *FileModelStore) Save(ctx context.Context, ms ...domsvc.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := make([]stagedArtifact, 0, len(ms))
	defer func() {
		for _, a := range staged {
			_ = os.Remove(a.tmp)
		}
	}()
	for _, m := range ms {
		a, err := s.stage(m)
		if err != nil {
			return err
		}
		staged = append(staged, a)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i := range staged {
		if err := commit(&staged[i]); err != nil {
			rollback(staged[:i])
			return fmt.Errorf("save model: %w", err)
		}
	}
	for _, a := range staged {
		if a.hadPrev {
			_ = os.Remove(a.backup)
		}
	}
	return nil
}

func (s *FileModelStore) stage(m domsvc.Model) (stagedArtifact, error) {
	meta := m.Meta()
	tf := domrepo.Timeframe(meta.Timeframe)
	if !domrepo.IsValidTimeframe(tf) {
		return stagedArtifact{}, fmt.Errorf("save model: invalid timeframe %q", meta.Timeframe)
	}
	b, err := regression.Encode(m)
	if err != nil {
		return stagedArtifact{}, err
	}

	target := s.path(tf, meta.Family)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return stagedArtifact{}, fmt.Errorf("save model: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+string(meta.Family)+"-*.tmp")
	if err != nil {
		return stagedArtifact{}, fmt.Errorf("save model: %w", err)
	}
	a := stagedArtifact{tmp: tmp.Name(), target: target, backup: filepath.Join(filepath.Dir(target), "."+string(meta.Family)+".prev")}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(a.tmp)
		return stagedArtifact{}, fmt.Errorf("save model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(a.tmp)
		return stagedArtifact{}, fmt.Errorf("save model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(a.tmp)
		return stagedArtifact{}, fmt.Errorf("save model: %w", err)
	}
	return a, nil
}

func commit(a *stagedArtifact) error {
	if err := os.Rename(a.target, a.backup); err == nil {
		a.hadPrev = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(a.tmp, a.target); err != nil {
		if a.hadPrev {
			_ = os.Rename(a.backup, a.target)
			a.hadPrev = false
		}
		return err
	}
	return nil
}

func rollback(done []stagedArtifact) {
	for i := len(done) - 1; i >= 0; i-- {
		a := done[i]
		if a.hadPrev {
			_ = os.Rename(a.backup, a.target)
		} else {
			_ = os.Remove(a.target)
		}
	}
}

func (s *FileModelStore) Load(ctx context.Context, tf domrepo.Timeframe, fam models.ModelFamily) (domsvc.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(tf, fam))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", domsvc.ErrModelNotFound, tf, fam)
		}
		return nil, fmt.Errorf("load model: %w", err)
	}
	return s.codec.Decode(b)
}

// List returns the metadata of every stored model for tf, sorted by family.
func (s *FileModelStore) List(ctx context.Context, tf domrepo.Timeframe) ([]models.ModelMeta, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, tableSuffix(tf)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.ModelMeta{}, nil
		}
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]models.ModelMeta, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		m, err := s.Load(ctx, tf, models.ModelFamily(strings.TrimSuffix(name, ".json")))
		if err != nil {
			return nil, err
		}
		out = append(out, m.Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	return out, nil
}

// CachedModelStore fronts a ModelStore with an in-process cache of decoded models.
// Models are immutable, so cached instances are shared between requests.
type CachedModelStore struct {
	next  domrepo.ModelStore
	cache *cache.MemoryCache
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedModelStore(next domrepo.ModelStore, ttl time.Duration, l *applogger.Logger) *CachedModelStore {
	return &CachedModelStore{
		next:  next,
		cache: cache.NewMemoryCache(cache.WithMemoryMaxSize(64), cache.WithMemoryCleanup(time.Minute)),
		ttl:   ttl,
		l:     l,
	}
}

func modelKey(tf domrepo.Timeframe, fam models.ModelFamily) string {
	return cache.GenerateKeyWithParams("model", tableSuffix(tf), fam)
}

func (s *CachedModelStore) Save(ctx context.Context, ms ...domsvc.Model) error {
	if err := s.next.Save(ctx, ms...); err != nil {
		return err
	}
	for _, m := range ms {
		meta := m.Meta()
		if err := s.cache.Set(ctx, modelKey(domrepo.Timeframe(meta.Timeframe), meta.Family), m, s.ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *CachedModelStore) Load(ctx context.Context, tf domrepo.Timeframe, fam models.ModelFamily) (domsvc.Model, error) {
	key := modelKey(tf, fam)
	var m domsvc.Model
	if err := s.cache.Get(ctx, key, &m); err == nil && m != nil {
		return m, nil
	}
	m, err := s.next.Load(ctx, tf, fam)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, m, s.ttl); err != nil && s.l != nil {
		s.l.Warn("model cache set failed", applogger.String("key", key), applogger.Error(err))
	}
	return m, nil
}

func (s *CachedModelStore) List(ctx context.Context, tf domrepo.Timeframe) ([]models.ModelMeta, error) {
	return s.next.List(ctx, tf)
}

// Invalidate drops every cached model of tf.
func (s *CachedModelStore) Invalidate(ctx context.Context, tf domrepo.Timeframe) error {
	return s.cache.DeleteByPattern(ctx, modelKey(tf, "*"))
}

func (s *CachedModelStore) Close() error { return s.cache.Close() }
