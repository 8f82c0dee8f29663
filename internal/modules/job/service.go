// README: Job service; idempotent creation per request and technician assignment.
package job

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"repairtrack/internal/types"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrDuplicateID = errors.New("job id already taken")
	ErrIDExhausted = errors.New("could not allocate job id")
	ErrBadRequest  = errors.New("bad request")
)

const maxIDAttempts = 5

type Repository interface {
	Insert(ctx context.Context, j *Job) (string, error)
	Get(ctx context.Context, id string) (*Job, error)
	GetByRequest(ctx context.Context, requestID types.ID) (*Job, error)
	LastSequence(ctx context.Context, year int) (int, error)
	AssignTechnician(ctx context.Context, id, technician string, at time.Time) error
}

type Service struct {
	repo  Repository
	log   *zap.Logger
	group singleflight.Group
	now   func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// CreateForRequest returns the job linked to seed.RequestID, creating it on
// first call. Concurrent calls for the same request share one round trip and
// the unique request_id column covers calls from other processes.
func (s *Service) CreateForRequest(ctx context.Context, seed Seed) (string, error) {
	if seed.RequestID == "" {
		return "", ErrBadRequest
	}
	v, err, _ := s.group.Do(string(seed.RequestID), func() (any, error) {
		return s.create(ctx, seed)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) create(ctx context.Context, seed Seed) (string, error) {
	existing, err := s.repo.GetByRequest(ctx, seed.RequestID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	now := s.now()
	last, err := s.repo.LastSequence(ctx, now.Year())
	if err != nil {
		return "", err
	}

	priority := seed.Priority
	if priority == "" {
		priority = "Medium"
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		j := &Job{
			ID:            FormatID(now.Year(), last+1+attempt),
			RequestID:     seed.RequestID,
			Customer:      seed.Customer,
			CustomerPhone: seed.CustomerPhone,
			Device:        seed.Device,
			Issue:         seed.Issue,
			Status:        StatusPending,
			Priority:      priority,
			Technician:    UnassignedTechnician,
			EstimatedCost: seed.EstimatedCost,
			CreatedAt:     now,
		}
		id, err := s.repo.Insert(ctx, j)
		if errors.Is(err, ErrDuplicateID) {
			s.log.Debug("job id collision, retrying", zap.String("job_id", j.ID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return "", err
		}
		if id == j.ID {
			s.log.Info("job created", zap.String("job_id", id), zap.String("request_id", string(seed.RequestID)))
		}
		return id, nil
	}
	return "", ErrIDExhausted
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) AssignTechnician(ctx context.Context, id, technician string) error {
	technician = strings.TrimSpace(technician)
	if id == "" || technician == "" || strings.EqualFold(technician, UnassignedTechnician) {
		return ErrBadRequest
	}
	return s.repo.AssignTechnician(ctx, id, technician, s.now())
}
