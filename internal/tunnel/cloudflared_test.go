package tunnel

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"remotevibes/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestCloudflared(t *testing.T) *Cloudflared {
	t.Helper()
	cfg := config.TunnelConfig{
		TunnelID:    "test-tunnel",
		Domain:      "vibes.example.com",
		ConfigDir:   t.TempDir(),
		MainService: "http://rv_main:8000",
	}
	return NewCloudflared(cfg, nil, slog.Default())
}

func readConfig(t *testing.T, dir string) cloudflaredConfig {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	require.NoError(t, err)
	var cfg cloudflaredConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	return cfg
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"My_App.Web": "my-app-web",
		"shop":       "shop",
		"--weird--":  "weird",
		"...":        "repo",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), "slug of %q", in)
	}
}

func TestRegisterWritesIngress(t *testing.T) {
	c := newTestCloudflared(t)

	urls, err := c.Register(context.Background(), "abcdef1234567890", "My_App.Web", 9000, 9002)
	require.NoError(t, err)
	assert.Equal(t, "https://my-app-web.vibes.example.com", urls.App)
	assert.Equal(t, "https://edit.my-app-web.vibes.example.com", urls.Editor)

	cfg := readConfig(t, c.cfg.ConfigDir)
	assert.Equal(t, "test-tunnel", cfg.Tunnel)
	require.Len(t, cfg.Ingress, 5)

	// 主应用规则永远排第一
	assert.Equal(t, "vibes.example.com", cfg.Ingress[0].Hostname)
	assert.Equal(t, "http://rv_main:8000", cfg.Ingress[0].Service)

	assert.Equal(t, "edit.my-app-web.vibes.example.com", cfg.Ingress[1].Hostname)
	assert.Equal(t, "http://host.docker.internal:9000", cfg.Ingress[1].Service)
	assert.Equal(t, "my-app-web.vibes.example.com", cfg.Ingress[2].Hostname)
	assert.Equal(t, "http://host.docker.internal:9002", cfg.Ingress[2].Service)
	assert.Equal(t, "app.my-app-web.vibes.example.com", cfg.Ingress[3].Hostname)
	assert.Equal(t, "http://host.docker.internal:9002", cfg.Ingress[3].Service)

	// catch-all 必须在最后
	assert.Equal(t, "http_status:404", cfg.Ingress[4].Service)
	assert.Empty(t, cfg.Ingress[4].Hostname)
}

func TestUnregisterRemovesRules(t *testing.T) {
	c := newTestCloudflared(t)
	ctx := context.Background()

	_, err := c.Register(ctx, "session-one", "alpha-repo", 9000, 9002)
	require.NoError(t, err)
	_, err = c.Register(ctx, "session-two", "beta-repo", 9010, 9012)
	require.NoError(t, err)

	cfg := readConfig(t, c.cfg.ConfigDir)
	assert.Len(t, cfg.Ingress, 8)

	require.NoError(t, c.Unregister(ctx, "session-one"))

	cfg = readConfig(t, c.cfg.ConfigDir)
	require.Len(t, cfg.Ingress, 5)
	assert.Equal(t, "edit.beta-repo.vibes.example.com", cfg.Ingress[1].Hostname)
	assert.Equal(t, "beta-repo.vibes.example.com", cfg.Ingress[2].Hostname)
	assert.Equal(t, "app.beta-repo.vibes.example.com", cfg.Ingress[3].Hostname)
}

func TestUnregisterUnknownSessionIsNoop(t *testing.T) {
	c := newTestCloudflared(t)
	require.NoError(t, c.Unregister(context.Background(), "never-registered"))

	// 没有注册过任何 session 时不应生成配置文件
	_, err := os.Stat(filepath.Join(c.cfg.ConfigDir, configFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestStateSurvivesReload(t *testing.T) {
	c := newTestCloudflared(t)
	ctx := context.Background()

	_, err := c.Register(ctx, "session-one", "alpha-repo", 9000, 9002)
	require.NoError(t, err)

	// 新实例读取同一目录，应能看到既有 session
	c2 := NewCloudflared(c.cfg, nil, slog.Default())
	_, err = c2.Register(ctx, "session-two", "beta-repo", 9010, 9012)
	require.NoError(t, err)

	cfg := readConfig(t, c.cfg.ConfigDir)
	assert.Len(t, cfg.Ingress, 8)
}
