// Package pipeline sequences the conversion stages for one resource and
// persists the results.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"manuscript-converter/config"
	"manuscript-converter/logging"
	"manuscript-converter/models"
	"manuscript-converter/services"
)

type Orchestrator struct {
	documents *services.DocumentConverter
	pdfs      *services.PDFConverter
	rewriter  *services.HTMLRewriter
	media     *services.MediaTranscoder
	sync      *services.StorageSynchronizer
	store     services.ObjectStore
	records   services.RecordStore
	locks     *KeyedMutex
	log       logging.Logger
}

func NewOrchestrator(
	cfg *config.Config,
	runner services.ToolRunner,
	store services.ObjectStore,
	records services.RecordStore,
	premium services.PremiumConverter,
	log logging.Logger,
) *Orchestrator {
	exec := services.NewExecutor(runner, cfg.Stages, log)
	return &Orchestrator{
		documents: services.NewDocumentConverter(exec, cfg.Tools),
		pdfs:      services.NewPDFConverter(exec, cfg.Tools, premium),
		rewriter:  services.NewHTMLRewriter(cfg.MediaPublicURL, cfg.ImageClass),
		media:     services.NewMediaTranscoder(exec, cfg.Tools, cfg.JPEGMaxSize),
		sync:      services.NewStorageSynchronizer(store),
		store:     store,
		records:   records,
		locks:     NewKeyedMutex(),
		log:       log,
	}
}

// ExportToHtml converts localFile to HTML, publishes its media and stores
// html and images on the job's record. Nothing is persisted unless every
// stage succeeds.
func (o *Orchestrator) ExportToHtml(ctx context.Context, localFile string, job *models.ConversionJob) error {
	unlock := o.locks.Lock(job.LockKey())
	defer unlock()

	log := o.runLogger(job, models.TargetHTML)
	start := time.Now()
	layout := services.NewLayout(job.WorkspaceRoot, job.Filename).WithSource(localFile)
	log.Debug(ctx, "state", "state", "downloaded", "source", localFile)

	if layout.Ext() == ".pdf" {
		log.Info(ctx, "pdf sources have no html rendition, skipping")
		return nil
	}

	layout, err := o.documents.Resolve(ctx, layout)
	if err != nil {
		return fmt.Errorf("resolving source: %w", err)
	}

	out, err := o.documents.ToHTML(ctx, layout)
	if err != nil {
		return fmt.Errorf("converting to html: %w", err)
	}
	log.Debug(ctx, "state", "state", "html_generated", "html", out.HTMLPath)

	html, err := o.rewriter.Rewrite(out.HTMLPath, out.OutputDir, job)
	if err != nil {
		return fmt.Errorf("rewriting html: %w", err)
	}

	assets, err := o.media.Transcode(ctx, layout, job.MediaPrefix())
	if err != nil {
		return fmt.Errorf("transcoding media: %w", err)
	}
	log.Debug(ctx, "state", "state", "media_transcoded", "assets", len(assets))

	images, err := o.sync.Reconcile(ctx, layout.Media, job.MediaPrefix())
	if err != nil {
		return fmt.Errorf("syncing media: %w", err)
	}
	log.Debug(ctx, "state", "state", "media_synced", "images", len(images))

	err = o.records.UpdateHTML(ctx, job.Kind, job.ResourceID, models.HTMLResult{HTML: html, Images: images})
	if err != nil {
		return fmt.Errorf("persisting html: %w", err)
	}

	log.Info(ctx, "html export finished", "images", len(images), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// ExportToPdf renders localFile to PDF, uploads it next to the source and
// stores its filename as the record's pdf_url.
func (o *Orchestrator) ExportToPdf(ctx context.Context, localFile string, job *models.ConversionJob) error {
	unlock := o.locks.Lock(job.LockKey())
	defer unlock()

	log := o.runLogger(job, models.TargetPDF)
	start := time.Now()
	layout := services.NewLayout(job.WorkspaceRoot, job.Filename).WithSource(localFile)
	log.Debug(ctx, "state", "state", "downloaded", "source", localFile)

	layout, err := o.documents.Resolve(ctx, layout)
	if err != nil {
		return fmt.Errorf("resolving source: %w", err)
	}

	pdfPath, err := o.pdfs.ToPDF(ctx, layout, job.Premium())
	if err != nil {
		return fmt.Errorf("converting to pdf: %w", err)
	}
	log.Debug(ctx, "state", "state", "pdf_generated", "pdf", pdfPath)

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("reading pdf: %w", err)
	}
	filename := filepath.Base(pdfPath)
	if err := o.store.Save(ctx, job.RootPrefix()+filename, data); err != nil {
		return fmt.Errorf("uploading pdf: %w", err)
	}
	log.Debug(ctx, "state", "state", "uploaded", "key", job.RootPrefix()+filename)

	if err := o.records.UpdatePDF(ctx, job.Kind, job.ResourceID, models.PDFResult{PDFFilename: filename}); err != nil {
		return fmt.Errorf("persisting pdf: %w", err)
	}

	log.Info(ctx, "pdf export finished", "pdf", filename, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (o *Orchestrator) runLogger(job *models.ConversionJob, target string) logging.Logger {
	return o.log.With(
		"run_id", job.RunID,
		"resource_kind", string(job.Kind),
		"resource_id", job.ResourceID,
		"target", target,
	)
}
