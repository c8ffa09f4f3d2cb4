package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"manuscript-converter/config"
	"manuscript-converter/logging"
	"manuscript-converter/models"
	"manuscript-converter/services"
)

const busyRetryDelay = 10 * time.Second

// Exporter runs the conversion pipeline for a downloaded source.
type Exporter interface {
	ExportToHtml(ctx context.Context, localFile string, job *models.ConversionJob) error
	ExportToPdf(ctx context.Context, localFile string, job *models.ConversionJob) error
}

type Pool struct {
	config     *config.Config
	queue      Queue
	locker     ResourceLocker
	store      services.ObjectStore
	exporter   Exporter
	workspaces *services.Workspaces
	log        logging.Logger

	now        func() time.Time
	afterFunc  func(time.Duration, func())
	popTimeout time.Duration
}

func NewPool(
	cfg *config.Config,
	queue Queue,
	locker ResourceLocker,
	store services.ObjectStore,
	exporter Exporter,
	log logging.Logger,
) *Pool {
	return &Pool{
		config:     cfg,
		queue:      queue,
		locker:     locker,
		store:      store,
		exporter:   exporter,
		workspaces: services.NewWorkspaces(cfg.WorkspaceDir, cfg.KeepWorkspaces),
		log:        log,
		now:        time.Now,
		afterFunc:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		popTimeout: 30 * time.Second,
	}
}

func (p *Pool) StartWorker(ctx context.Context, workerID int) {
	log := p.log.With("worker", workerID)
	log.Info(ctx, "worker starting")

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "worker shutting down")
			return
		default:
			payload, err := p.queue.Pop(ctx, p.popTimeout)
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error(ctx, "queue error", "error", err)
				sleep(ctx, 5*time.Second)
				continue
			}

			p.handlePayload(ctx, log, payload)
		}
	}
}

func (p *Pool) handlePayload(ctx context.Context, log logging.Logger, payload string) {
	var ev models.FileConfirmedEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Error(ctx, "failed to parse event", "error", err)
		// Remove malformed event from processing queue
		_ = p.queue.Ack(ctx, payload)
		return
	}
	if err := ev.Validate(); err != nil {
		log.Error(ctx, "rejecting event", "error", err)
		_ = p.queue.Ack(ctx, payload)
		_ = p.queue.Fail(ctx, payload)
		return
	}

	p.processJob(ctx, log, &ev, payload)
}

func (p *Pool) processJob(ctx context.Context, log logging.Logger, ev *models.FileConfirmedEvent, payload string) {
	runID := uuid.NewString()
	log = log.With("run_id", runID, "resource_kind", ev.ResourceKind, "resource_id", ev.ResourceID)
	status := p.statusKey(ev)

	unlock, ok, err := p.locker.TryLock(ctx, resourceKey(ev), p.config.LockTTL)
	if err != nil {
		p.handleJobFailure(ctx, log, ev, payload, fmt.Errorf("acquiring resource lock: %w", err))
		return
	}
	if !ok {
		// Another run owns the resource: queue behind it without spending a
		// retry. The payload stays on the processing list until it is pushed
		// back, so stale recovery still sees it if the process stops first.
		log.Info(ctx, "resource busy, requeueing", "delay", busyRetryDelay.String())
		p.afterFunc(busyRetryDelay, func() {
			bg := context.Background()
			if err := p.queue.Push(bg, payload); err != nil {
				log.Error(bg, "failed to requeue busy event", "error", err)
				return
			}
			_ = p.queue.Ack(bg, payload)
		})
		return
	}
	defer unlock()

	log.Info(ctx, "processing file", "filename", ev.Filename)
	p.setStatus(ctx, status, map[string]interface{}{"status": "processing"})
	start := p.now()

	if err := p.run(ctx, log, runID, ev); err != nil {
		p.handleJobFailure(ctx, log, ev, payload, err)
		return
	}

	p.setStatus(ctx, status, map[string]interface{}{"status": "completed", "error": ""})
	_ = p.queue.Ack(ctx, payload)
	log.Info(ctx, "conversion completed", "duration_ms", p.now().Sub(start).Milliseconds())
}

// run downloads the source into a fresh workspace and runs the requested
// exports. The workspace is removed on every exit path.
func (p *Pool) run(ctx context.Context, log logging.Logger, runID string, ev *models.FileConfirmedEvent) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, p.config.ConversionTimeout)
	defer cancel()

	ws, err := p.workspaces.Create(ev.ResourceID, p.now())
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn(ctx, "workspace cleanup failed", "root", ws.Root, "error", err)
		}
	}()

	job, err := models.NewConversionJob(runID, ev, ws.Root)
	if err != nil {
		return err
	}

	local := ws.Layout(job.Filename).Source
	if err := p.store.Download(timeoutCtx, job.SourceKey, local); err != nil {
		return fmt.Errorf("downloading source: %w", err)
	}

	var errs []error
	if ev.Wants(models.TargetHTML) {
		if err := p.exporter.ExportToHtml(timeoutCtx, local, job); err != nil {
			errs = append(errs, fmt.Errorf("html export: %w", err))
		}
	}
	if ev.Wants(models.TargetPDF) {
		if err := p.exporter.ExportToPdf(timeoutCtx, local, job); err != nil {
			errs = append(errs, fmt.Errorf("pdf export: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) handleJobFailure(ctx context.Context, log logging.Logger, ev *models.FileConfirmedEvent, payload string, jobErr error) {
	log.Error(ctx, "conversion failed", "error", jobErr)

	_ = p.queue.Ack(ctx, payload)

	maxRetries := p.maxRetries(ev)
	if ev.RetryCount < maxRetries {
		ev.RetryCount++
		ev.MaxRetries = maxRetries
		newPayload, _ := json.Marshal(ev)

		delay := backoff(ev.RetryCount)
		p.afterFunc(delay, func() {
			_ = p.queue.Push(context.Background(), string(newPayload))
		})
		log.Info(ctx, "scheduled retry", "retry", ev.RetryCount, "max_retries", maxRetries, "delay", delay.String())
		return
	}

	_ = p.queue.Fail(ctx, payload)
	p.setStatus(ctx, p.statusKey(ev), map[string]interface{}{
		"status": "failed",
		"error":  jobErr.Error(),
	})
	log.Error(ctx, "moved to failed queue", "retries", maxRetries)
}

func (p *Pool) setStatus(ctx context.Context, key string, fields map[string]interface{}) {
	fields["updated_at"] = p.now().Format(time.RFC3339)
	if err := p.queue.SetStatus(ctx, key, fields); err != nil {
		p.log.Warn(ctx, "failed to update status", "key", key, "error", err)
	}
}

func (p *Pool) RecoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	p.log.Info(ctx, "starting stale job recovery loop")

	for {
		select {
		case <-ctx.Done():
			p.log.Info(ctx, "recovery loop shutting down")
			return
		case <-ticker.C:
			p.recoverStaleJobs(ctx)
		}
	}
}

// recoverStaleJobs re-queues events left on the processing list by a
// crashed worker. An event whose resource lock is still held is in flight.
func (p *Pool) recoverStaleJobs(ctx context.Context) {
	jobs, err := p.queue.Processing(ctx)
	if err != nil {
		p.log.Error(ctx, "failed to read processing queue", "error", err)
		return
	}

	staleAfter := 2 * p.config.ConversionTimeout
	recovered := 0
	for _, payload := range jobs {
		var ev models.FileConfirmedEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		if p.now().Sub(ev.CreatedAt) <= staleAfter {
			continue
		}
		held, err := p.locker.Held(ctx, resourceKey(&ev))
		if err != nil || held {
			continue
		}

		_ = p.queue.Ack(ctx, payload)
		if maxRetries := p.maxRetries(&ev); ev.RetryCount < maxRetries {
			ev.RetryCount++
			ev.MaxRetries = maxRetries
			newPayload, _ := json.Marshal(ev)
			_ = p.queue.Push(ctx, string(newPayload))
			recovered++
		} else {
			_ = p.queue.Fail(ctx, payload)
		}
	}

	if recovered > 0 {
		p.log.Info(ctx, "recovered stale jobs", "count", recovered)
	}
}

// resourceKey matches models.ConversionJob.LockKey for valid events.
func resourceKey(ev *models.FileConfirmedEvent) string {
	kind, err := models.ParseResourceKind(ev.ResourceKind)
	if err != nil {
		return ev.ResourceKind + ":" + ev.ResourceID
	}
	return string(kind) + ":" + ev.ResourceID
}

func (p *Pool) statusKey(ev *models.FileConfirmedEvent) string {
	return p.config.StatusPrefix + resourceKey(ev)
}

// maxRetries prefers the limit carried by the event over the configured one.
func (p *Pool) maxRetries(ev *models.FileConfirmedEvent) int {
	if ev.MaxRetries > 0 {
		return ev.MaxRetries
	}
	return p.config.MaxRetries
}

func backoff(retry int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(retry))) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
