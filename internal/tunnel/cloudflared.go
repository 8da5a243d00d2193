package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"remotevibes/internal/config"
	"remotevibes/internal/runtime"

	"gopkg.in/yaml.v3"
)

var _ Registrar = (*Cloudflared)(nil)

const (
	configFileName = "config.yaml"
	stateFileName  = "sessions.json"

	restartGrace = 5 * time.Second
)

// Cloudflared maintains a cloudflared ingress file on a shared volume and
// restarts the cloudflared container after every change. State lives next to
// the config so the ingress can be rebuilt in full each time.
type Cloudflared struct {
	cfg    config.TunnelConfig
	rt     runtime.Client
	logger *slog.Logger

	mu sync.Mutex // serializes rewrite + restart
}

func NewCloudflared(cfg config.TunnelConfig, rt runtime.Client, logger *slog.Logger) *Cloudflared {
	return &Cloudflared{
		cfg:    cfg,
		rt:     rt,
		logger: logger.With("component", "tunnel"),
	}
}

func (c *Cloudflared) Enabled() bool {
	return c.cfg.TunnelID != "" && c.cfg.Domain != ""
}

func (c *Cloudflared) Register(ctx context.Context, sessionID, repoName string, editorPort, devPort int) (URLs, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.loadState()
	if err != nil {
		return URLs{}, err
	}

	state[sessionID] = entry{RepoName: repoName, EditorPort: editorPort, DevPort: devPort}

	if err := c.flush(ctx, state); err != nil {
		return URLs{}, err
	}

	slug := Slug(repoName)
	urls := URLs{
		App:    fmt.Sprintf("https://%s.%s", slug, c.cfg.Domain),
		Editor: fmt.Sprintf("https://edit.%s.%s", slug, c.cfg.Domain),
	}
	c.logger.Info("Tunnel registered", "session_id", sessionID, "app_url", urls.App)
	return urls, nil
}

func (c *Cloudflared) Unregister(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.loadState()
	if err != nil {
		return err
	}
	if _, ok := state[sessionID]; !ok {
		return nil
	}
	delete(state, sessionID)

	return c.flush(ctx, state)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a repo name into a safe DNS label.
func Slug(repoName string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(repoName), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "repo"
	}
	return slug
}

func (c *Cloudflared) loadState() (map[string]entry, error) {
	state := make(map[string]entry)
	data, err := os.ReadFile(filepath.Join(c.cfg.ConfigDir, stateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return nil, fmt.Errorf("read tunnel state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		// 损坏的状态文件从空开始重建
		c.logger.Warn("Tunnel state file corrupted, rebuilding", "error", err)
		return make(map[string]entry), nil
	}
	return state, nil
}

// flush rewrites state + ingress and pokes cloudflared. The restart is
// best-effort; the files on disk are the source of truth.
func (c *Cloudflared) flush(ctx context.Context, state map[string]entry) error {
	if err := os.MkdirAll(c.cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create tunnel config dir: %w", err)
	}

	stateData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tunnel state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.cfg.ConfigDir, stateFileName), stateData, 0o644); err != nil {
		return fmt.Errorf("write tunnel state: %w", err)
	}

	cfgData, err := yaml.Marshal(c.render(state))
	if err != nil {
		return fmt.Errorf("marshal tunnel config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.cfg.ConfigDir, configFileName), cfgData, 0o644); err != nil {
		return fmt.Errorf("write tunnel config: %w", err)
	}

	if c.rt != nil && c.cfg.Container != "" {
		if err := c.rt.RestartContainer(ctx, c.cfg.Container, restartGrace); err != nil {
			c.logger.Warn("Failed to restart cloudflared", "container", c.cfg.Container, "error", err)
		}
	}
	return nil
}

// render builds the full ingress rule list. The main app rule comes first,
// sessions follow in slug order so rewrites are deterministic, and the 404
// catch-all must stay last.
func (c *Cloudflared) render(state map[string]entry) cloudflaredConfig {
	entries := make([]entry, 0, len(state))
	for _, e := range state {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return Slug(entries[i].RepoName) < Slug(entries[j].RepoName) })

	rules := make([]ingressRule, 0, 3*len(entries)+2)
	if c.cfg.MainService != "" {
		rules = append(rules, ingressRule{Hostname: c.cfg.Domain, Service: c.cfg.MainService})
	}
	for _, e := range entries {
		slug := Slug(e.RepoName)
		rules = append(rules,
			ingressRule{
				Hostname: fmt.Sprintf("edit.%s.%s", slug, c.cfg.Domain),
				Service:  fmt.Sprintf("http://host.docker.internal:%d", e.EditorPort),
			},
			ingressRule{
				Hostname: fmt.Sprintf("%s.%s", slug, c.cfg.Domain),
				Service:  fmt.Sprintf("http://host.docker.internal:%d", e.DevPort),
			},
			// app.{slug} 和 {slug} 指向同一个 dev server
			ingressRule{
				Hostname: fmt.Sprintf("app.%s.%s", slug, c.cfg.Domain),
				Service:  fmt.Sprintf("http://host.docker.internal:%d", e.DevPort),
			},
		)
	}
	rules = append(rules, ingressRule{Service: "http_status:404"})

	return cloudflaredConfig{
		Tunnel:          c.cfg.TunnelID,
		CredentialsFile: filepath.Join(c.cfg.ConfigDir, c.cfg.TunnelID+".json"),
		Ingress:         rules,
	}
}
