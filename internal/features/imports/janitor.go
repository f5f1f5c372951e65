package imports

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"go-catalog/internal/config"
)

const janitorSchedule = "@every 10m"

// Janitor sweeps the session registry on a schedule. Sessions idle past the
// TTL are cancelled with reason session_expired; terminal sessions are
// evicted one TTL after they finish, once their archive exists.
type Janitor struct {
	store     *SessionStore
	repo      SessionRepository
	hub       *Broadcaster
	logger    *zap.Logger
	ttl       time.Duration
	scheduler *cron.Cron
}

func NewJanitor(cfg *config.Config, store *SessionStore, repo SessionRepository, hub *Broadcaster, logger *zap.Logger) *Janitor {
	return &Janitor{
		store:  store,
		repo:   repo,
		hub:    hub,
		logger: logger,
		ttl:    cfg.SessionTTL,
	}
}

func (j *Janitor) Start() error {
	j.scheduler = cron.New()
	if _, err := j.scheduler.AddFunc(janitorSchedule, j.Sweep); err != nil {
		return err
	}
	j.scheduler.Start()
	j.logger.Info("session janitor started", zap.Duration("ttl", j.ttl))
	return nil
}

func (j *Janitor) Stop() error {
	if j.scheduler != nil {
		ctx := j.scheduler.Stop()
		<-ctx.Done()
	}
	return nil
}

// Sweep walks every registered session once.
func (j *Janitor) Sweep() {
	now := time.Now()
	var expired, evicted int

	for _, id := range j.store.IDs() {
		var evict bool
		var doc *SessionArchive

		err := j.store.Update(id, func(sess *ImportSession) error {
			idle := now.Sub(sess.UpdatedAt)
			switch {
			case sess.Status.IsTerminal():
				evict = idle > j.ttl

			case idle <= j.ttl:
				// Still live.

			case sess.Status == StatusValidating || sess.Status == StatusImporting:
				// A running stage owns its transitions; ask it to stop.
				sess.CancelRequested = true

			default:
				if err := sess.Transition(StatusCancelled); err != nil {
					return err
				}
				sess.Reason = ReasonSessionExpired
				archive := newSessionArchive(sess)
				doc = &archive
				j.hub.Publish(ProgressEvent{
					SessionID: sess.ID,
					Status:    sess.Status,
					Progress:  sess.Progress,
					Reason:    sess.Reason,
				})
			}
			return nil
		})
		if err != nil {
			j.logger.Warn("session sweep failed", zap.String("session_id", id), zap.Error(err))
			continue
		}

		if doc != nil {
			expired++
			saveCtx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			if saveErr := j.repo.Save(saveCtx, *doc); saveErr != nil {
				j.logger.Warn("session archive failed",
					zap.String("session_id", id),
					zap.Error(saveErr))
			}
			cancel()
			j.hub.CloseSession(id)
		}
		if evict {
			evicted++
			j.store.Remove(id)
			j.hub.CloseSession(id)
		}
	}

	if expired > 0 || evicted > 0 {
		j.logger.Info("session sweep",
			zap.Int("expired", expired),
			zap.Int("evicted", evicted))
	}
}
