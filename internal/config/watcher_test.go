package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o644))

	var (
		mu      sync.Mutex
		reloads []*Config
	)
	w := NewWatcher(afero.NewOsFs(), path, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		reloads = append(reloads, cfg)
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// 非法内容不触发回调
	require.NoError(t, os.WriteFile(path, []byte("zabbix: {}\n"), 0o644))
	time.Sleep(2 * reloadDelay)

	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+"schedule:\n  interval: 45\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloads) > 0
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "@every 45s", reloads[len(reloads)-1].GetScheduleSpec())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o644))

	called := make(chan struct{}, 1)
	w := NewWatcher(afero.NewOsFs(), path, func(*Config) {
		select {
		case called <- struct{}{}:
		default:
		}
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o644))

	select {
	case <-called:
		t.Fatal("不应重新加载")
	case <-time.After(3 * reloadDelay):
	}
}
