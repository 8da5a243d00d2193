package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remotevibes/internal/session"

	"github.com/go-pg/pg/v10"
	"github.com/redis/go-redis/v9"
)

var _ session.Store = (*Repository)(nil)

var ErrSessionNotFound = errors.New("session not found")

type Repository struct {
	db    *pg.DB
	redis redis.Cmdable
}

func NewRepository(db *pg.DB, redis redis.Cmdable) *Repository {
	return &Repository{
		db:    db,
		redis: redis,
	}
}

func (r *Repository) Create(ctx context.Context, s *session.Session) error {
	model := fromDomain(s)
	if _, err := r.db.ModelContext(ctx, model).Insert(); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*session.Session, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, sessionCacheKey(id)).Result()
		if err == nil {
			var cached session.Session
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	model := &SessionModel{ID: id}
	if err := r.db.ModelContext(ctx, model).WherePK().Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}

	s := model.toDomain()

	if r.redis != nil {
		if b, err := json.Marshal(s); err == nil {
			_ = r.redis.Set(ctx, sessionCacheKey(id), b, sessionCacheTTL).Err()
		}
	}

	return s, nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]*session.Session, error) {
	var models []SessionModel
	err := r.db.ModelContext(ctx, &models).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Select()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*session.Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, models[i].toDomain())
	}
	return sessions, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status session.Status) error {
	res, err := r.db.ModelContext(ctx, &SessionModel{}).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Update()
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *Repository) MarkRunning(ctx context.Context, id string, b session.ContainerBindings) error {
	res, err := r.db.ModelContext(ctx, &SessionModel{}).
		Set("status = ?", session.StatusRunning).
		Set("container_id = ?", b.ContainerID).
		Set("container_name = ?", b.ContainerName).
		Set("editor_port = ?", b.EditorPort).
		Set("agent_api_port = ?", b.AgentAPIPort).
		Set("dev_server_port = ?", b.DevServerPort).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Update()
	if err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *Repository) MarkStopped(ctx context.Context, id string) error {
	now := time.Now()
	// stopped_at 只在首次停止时写入
	res, err := r.db.ModelContext(ctx, &SessionModel{}).
		Set("status = ?", session.StatusStopped).
		Set("stopped_at = COALESCE(stopped_at, ?)", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Update()
	if err != nil {
		return fmt.Errorf("mark session stopped: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *Repository) UpdateTunnel(ctx context.Context, id string, url string, active bool) error {
	_, err := r.db.ModelContext(ctx, &SessionModel{}).
		Set("tunnel_url = ?", url).
		Set("tunnel_active = ?", active).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Update()
	if err != nil {
		return fmt.Errorf("update session tunnel: %w", err)
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *Repository) UpdatePR(ctx context.Context, id string, prURL, prTitle string) error {
	_, err := r.db.ModelContext(ctx, &SessionModel{}).
		Set("last_pr_url = ?", prURL).
		Set("last_pr_title = ?", prTitle).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Update()
	if err != nil {
		return fmt.Errorf("update session pr info: %w", err)
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *Repository) invalidate(ctx context.Context, id string) {
	if r.redis != nil {
		_ = r.redis.Del(ctx, sessionCacheKey(id)).Err()
	}
}
