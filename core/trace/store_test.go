package trace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/grocerybot/core/factory"
	"github.com/kilianp07/grocerybot/core/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(i int, kind Kind, branch string) Record {
	return Record{
		ID:        fmt.Sprintf("r%d", i),
		Timestamp: base.Add(time.Duration(i) * time.Second),
		Kind:      kind,
		Tick:      int64(i),
		Branch:    branch,
	}
}

func fill(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	recs := []Record{
		sample(0, KindTick, "root/patrol"),
		sample(1, KindPlan, ""),
		sample(2, KindTick, "root/approach"),
		sample(3, KindTick, "root/patrol"),
	}
	recs[1].Target = &model.Point{X: 1, Y: 2}
	for _, r := range recs {
		require.NoError(t, s.Append(ctx, r))
	}
}

func ids(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// exercise runs the same queries against every store implementation.
func exercise(t *testing.T, s Store) {
	t.Helper()
	fill(t, s)
	ctx := context.Background()

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r0", "r1", "r2", "r3"}, ids(all))
	require.NotNil(t, all[1].Target)
	assert.Equal(t, 2.0, all[1].Target.Y)

	ticks, err := s.Query(ctx, Query{Kind: KindTick})
	require.NoError(t, err)
	assert.Equal(t, []string{"r0", "r2", "r3"}, ids(ticks))

	patrol, err := s.Query(ctx, Query{Branch: "root/patrol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r0", "r3"}, ids(patrol))

	window, err := s.Query(ctx, Query{Start: base.Add(time.Second), End: base.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(window))

	last, err := s.Query(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, ids(last))
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore(10))
}

func TestMemoryStoreBounded(t *testing.T) {
	s := NewMemoryStore(2)
	fill(t, s)
	out, err := s.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, ids(out))
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "trace.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "trace.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRotatingJSONLStoreRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 0, 0)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	rec := sample(0, KindTick, "root/patrol")
	rec.Error = strings.Repeat("a", 1000)
	const n = 1500
	for i := 0; i < n; i++ {
		require.NoError(t, s.Append(context.Background(), rec))
	}
	files, _ := filepath.Glob(filepath.Join(dir, "trace*"))
	if len(files) < 2 {
		t.Fatalf("expected rotated files, got %v", files)
	}
	out, err := s.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, out, n)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), &redis.Options{Addr: mr.Addr()}, "test", 0)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRedisStoreTrimmed(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	s, err := NewRedisStore(ctx, &redis.Options{Addr: mr.Addr()}, "trim", 3)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	fill(t, s)
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	out, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(out))
	assert.True(t, mr.Exists("grocerybot:trim:trace"))
}

func TestRedisStoreRequiresNamespace(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := NewRedisStore(context.Background(), &redis.Options{Addr: mr.Addr()}, "", 0)
	assert.Error(t, err)
}

func TestNewStoreFromConfig(t *testing.T) {
	assert.Subset(t, StoreTypes(), []string{"jsonl", "memory", "redis", "rotating", "sqlite"})

	s, err := NewStore(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	s, err = NewStore(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": path}})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	_, err = NewStore(factory.ModuleConfig{Type: "sqlite"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	s, err = NewStore(factory.ModuleConfig{Type: "redis", Conf: map[string]any{"addr": mr.Addr(), "max_len": "5"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewStore(factory.ModuleConfig{Type: "bogus"})
	assert.Error(t, err)
}
