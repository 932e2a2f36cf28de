package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

const TrainJobType = "models.train"

// TrainJobPayload is the queued form of a training request.
type TrainJobPayload struct {
	JobID      string    `json:"job_id"`
	Timeframe  string    `json:"timeframe"`
	Symbols    []string  `json:"symbols,omitempty"`
	Families   []string  `json:"families,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (p TrainJobPayload) params() TrainParams {
	fams := make([]models.ModelFamily, len(p.Families))
	for i, f := range p.Families {
		fams[i] = models.ModelFamily(f)
	}
	return TrainParams{
		Timeframe: domrepo.Timeframe(p.Timeframe),
		Symbols:   p.Symbols,
		Families:  fams,
	}
}

// TrainJob runs queued training requests.
type TrainJob struct {
	uc *TrainUseCase
	l  *applogger.Logger
}

func NewTrainJob(uc *TrainUseCase, l *applogger.Logger) *TrainJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &TrainJob{uc: uc, l: l}
}

func (j *TrainJob) Name() string { return "train_models" }

func (j *TrainJob) Type() string { return TrainJobType }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[TrainJobPayload](payload)
	if err != nil {
		return err
	}
	report, err := j.uc.Run(ctx, p.params())
	if errors.Is(err, ErrTrainingInProgress) {
		// the running job covers this request
		j.l.Info("train job skipped", applogger.String("job_id", p.JobID), applogger.String("timeframe", p.Timeframe))
		return nil
	}
	if err != nil {
		return fmt.Errorf("train job %s: %w", p.JobID, err)
	}
	j.l.Info("train job done",
		applogger.String("job_id", p.JobID),
		applogger.String("version", report.Version),
		applogger.Int("models", len(report.Models)))
	return nil
}

var _ queue.Job = (*TrainJob)(nil)

// TrainDispatcher schedules a training request and returns its job id.
type TrainDispatcher interface {
	Dispatch(ctx context.Context, p TrainJobPayload) (string, error)
}

// QueueTrainDispatcher enqueues training on the Redis job queue.
type QueueTrainDispatcher struct {
	q queue.QueueService
}

func NewQueueTrainDispatcher(q queue.QueueService) *QueueTrainDispatcher {
	return &QueueTrainDispatcher{q: q}
}

func (d *QueueTrainDispatcher) Dispatch(ctx context.Context, p TrainJobPayload) (string, error) {
	p = stamp(p)
	if err := d.q.PublishMessage(ctx, TrainJobType, p); err != nil {
		return "", fmt.Errorf("enqueue training: %w", err)
	}
	return p.JobID, nil
}

// InlineTrainDispatcher runs training in a background goroutine when no queue is configured.
type InlineTrainDispatcher struct {
	job *TrainJob
}

func NewInlineTrainDispatcher(job *TrainJob) *InlineTrainDispatcher {
	return &InlineTrainDispatcher{job: job}
}

func (d *InlineTrainDispatcher) Dispatch(_ context.Context, p TrainJobPayload) (string, error) {
	p = stamp(p)
	go func() {
		if err := d.job.Handle(context.Background(), p); err != nil {
			d.job.l.Error("inline train job failed", applogger.String("job_id", p.JobID), applogger.Error(err))
		}
	}()
	return p.JobID, nil
}

func stamp(p TrainJobPayload) TrainJobPayload {
	if p.JobID == "" {
		p.JobID = uuid.NewString()
	}
	if p.EnqueuedAt.IsZero() {
		p.EnqueuedAt = time.Now().UTC()
	}
	return p
}
