package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/domain/report"
	"github.com/artpar/pulse/ports"
)

// ErrExportActive is returned when deleting an export that is still running.
var ErrExportActive = errors.New("export still in progress")

// Progress checkpoints of an export job.
const (
	ProgressStarted  = 10
	ProgressFetched  = 50
	ProgressRendered = 75
)

// ExportConfig tunes the export pipeline.
type ExportConfig struct {
	MaxConcurrent int           // Pending plus processing exports per project
	MaxFileSize   int64         // Bytes
	URLTTL        time.Duration // Lifetime of signed download URLs
	Retention     time.Duration // Records and files expire after this
	JobTimeout    time.Duration
}

// DefaultExportConfig returns production defaults.
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		MaxConcurrent: 5,
		MaxFileSize:   50 << 20,
		URLTTL:        24 * time.Hour,
		Retention:     7 * 24 * time.Hour,
		JobTimeout:    5 * time.Minute,
	}
}

// ExportRequest asks for one report file.
type ExportRequest struct {
	ProjectID  string
	UserID     string
	ReportType export.ReportType
	Format     export.Format
	Range      analytics.Range
	Options    export.Options
}

// ExportDeps contains dependencies for the export service.
type ExportDeps struct {
	Store     ports.ExportStore
	Objects   ports.ObjectStore
	Engine    *Engine
	Renderers map[export.Format]ports.Renderer
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    zerolog.Logger
	Observer  ports.Observer
}

// ExportService runs export jobs in the background. Each job is the only
// writer of its record once created.
type ExportService struct {
	store     ports.ExportStore
	objects   ports.ObjectStore
	engine    *Engine
	renderers map[export.Format]ports.Renderer
	clock     ports.Clock
	idGen     ports.IDGenerator
	logger    zerolog.Logger
	observer  ports.Observer
	cfg       ExportConfig

	// createMu serialises the cap check with record creation.
	createMu sync.Mutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewExportService creates an export service.
func NewExportService(deps ExportDeps, cfg ExportConfig) *ExportService {
	obs := deps.Observer
	if obs == nil {
		obs = ports.NopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ExportService{
		store:     deps.Store,
		objects:   deps.Objects,
		engine:    deps.Engine,
		renderers: deps.Renderers,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		logger:    deps.Logger.With().Str("service", "export").Logger(),
		observer:  obs,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// CreateExport validates req, stores a pending record and starts the job.
func (s *ExportService) CreateExport(ctx context.Context, req ExportRequest) (export.Record, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return export.Record{}, fmt.Errorf("export service stopped: %w", err)
	}

	active, err := s.store.CountActive(ctx, req.ProjectID)
	if err != nil {
		return export.Record{}, fmt.Errorf("count active exports: %w", err)
	}
	if active >= s.cfg.MaxConcurrent {
		return export.Record{}, fmt.Errorf("%w: %d of %d running", export.ErrTooManyExports, active, s.cfg.MaxConcurrent)
	}

	format, err := export.ParseFormat(strings.ToLower(string(req.Format)))
	if err != nil {
		return export.Record{}, err
	}
	if _, ok := s.renderers[format]; !ok {
		return export.Record{}, fmt.Errorf("%w: %q", export.ErrUnsupportedFormat, format)
	}
	if _, ok := report.Lookup(req.ReportType); !ok {
		return export.Record{}, fmt.Errorf("%w: %q", export.ErrUnknownReportType, req.ReportType)
	}
	rng := req.Range.Normalize()
	if err := rng.Validate(); err != nil {
		return export.Record{}, err
	}
	if req.ReportType == export.ReportFunnel && len(trimSteps(req.Options.Steps)) == 0 {
		return export.Record{}, ErrInvalidFunnel
	}

	now := s.clock.Now()
	rec := export.Record{
		ID:         s.idGen.New(),
		ProjectID:  req.ProjectID,
		UserID:     req.UserID,
		ReportType: req.ReportType,
		Format:     format,
		Status:     export.StatusPending,
		DateRange:  rng,
		Options:    req.Options,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.Retention),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return export.Record{}, fmt.Errorf("create export: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(rec)
	}()

	s.logger.Info().
		Str("export_id", rec.ID).
		Str("project_id", rec.ProjectID).
		Str("report", string(rec.ReportType)).
		Str("format", string(rec.Format)).
		Msg("export queued")
	return rec, nil
}

// process runs one job to completion or failure.
func (s *ExportService) process(rec export.Record) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()
	start := s.clock.Now()
	log := s.logger.With().Str("export_id", rec.ID).Logger()

	done, err := s.run(ctx, rec)
	if err == nil {
		s.observer.ExportFinished(string(rec.Format), string(export.StatusCompleted), done.File.Size)
		log.Info().
			Str("size", humanize.Bytes(uint64(done.File.Size))).
			Dur("duration", s.clock.Now().Sub(start)).
			Msg("export completed")
		return
	}

	s.observer.ExportFinished(string(rec.Format), string(export.StatusFailed), 0)
	log.Error().Err(err).Msg("export failed")

	// The record may be pending or processing here.
	latest, getErr := s.store.Get(context.Background(), rec.ID)
	if getErr != nil {
		log.Error().Err(getErr).Msg("load export for failure")
		return
	}
	failed, tErr := export.Transition(latest, export.StatusFailed, s.clock.Now())
	if tErr != nil {
		log.Error().Err(tErr).Msg("mark export failed")
		return
	}
	failed.Error = err.Error()
	if uErr := s.store.Update(context.Background(), failed); uErr != nil {
		log.Error().Err(uErr).Msg("save failed export")
	}
}

func (s *ExportService) run(ctx context.Context, rec export.Record) (export.Record, error) {
	rec, err := export.Transition(rec, export.StatusProcessing, s.clock.Now())
	if err != nil {
		return rec, err
	}
	if err := s.progress(ctx, &rec, ProgressStarted); err != nil {
		return rec, err
	}

	data, err := s.fetch(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("fetch %s: %w", rec.ReportType, err)
	}
	if err := s.progress(ctx, &rec, ProgressFetched); err != nil {
		return rec, err
	}

	tmpl, _ := report.Lookup(rec.ReportType)
	body, err := s.renderers[rec.Format].Render(data, tmpl, report.Meta{
		ProjectID:   rec.ProjectID,
		ReportType:  rec.ReportType,
		Range:       rec.DateRange,
		GeneratedAt: s.clock.Now(),
	})
	if err != nil {
		return rec, fmt.Errorf("render %s: %w", rec.Format, err)
	}
	if err := s.progress(ctx, &rec, ProgressRendered); err != nil {
		return rec, err
	}

	size := int64(len(body))
	if size > s.cfg.MaxFileSize {
		return rec, fmt.Errorf("%w: %s over %s", export.ErrFileTooLarge,
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.cfg.MaxFileSize)))
	}

	key := export.FileKey(rec)
	contentType := rec.Format.ContentType()
	if err := s.objects.Upload(ctx, key, body, contentType); err != nil {
		return rec, fmt.Errorf("upload: %w", err)
	}
	url, err := s.objects.SignedURL(ctx, key, s.cfg.URLTTL)
	if err != nil {
		s.removeObject(key)
		return rec, fmt.Errorf("sign url: %w", err)
	}

	now := s.clock.Now()
	rec.File = &export.File{
		Key:          key,
		Size:         size,
		ContentType:  contentType,
		DownloadURL:  url,
		URLExpiresAt: now.Add(s.cfg.URLTTL),
	}
	rec, err = export.Transition(rec, export.StatusCompleted, now)
	if err != nil {
		s.removeObject(key)
		return rec, err
	}
	if err := s.store.Update(ctx, rec); err != nil {
		s.removeObject(key)
		return rec, fmt.Errorf("save export: %w", err)
	}
	return rec, nil
}

func (s *ExportService) progress(ctx context.Context, rec *export.Record, p int) error {
	rec.Progress = p
	rec.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, *rec); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// fetch loads report data through the engine so exports share its cache.
func (s *ExportService) fetch(ctx context.Context, rec export.Record) (any, error) {
	p, r, o := rec.ProjectID, rec.DateRange, rec.Options
	switch rec.ReportType {
	case export.ReportOverview:
		res, err := s.engine.Overview(ctx, p, r)
		return res.Data, err
	case export.ReportEvents:
		res, err := s.engine.Events(ctx, p, r, o.Granularity)
		return res.Data, err
	case export.ReportUsers:
		res, err := s.engine.Users(ctx, p, r, o.Granularity)
		return res.Data, err
	case export.ReportRetention:
		res, err := s.engine.Retention(ctx, p, r, o.Offsets)
		return res.Data, err
	case export.ReportFunnel:
		window := time.Duration(o.WindowHours * float64(time.Hour))
		res, err := s.engine.Funnel(ctx, p, r, o.Steps, window)
		return res.Data, err
	case export.ReportSessions:
		res, err := s.engine.Sessions(ctx, p, r, o.Granularity)
		return res.Data, err
	case export.ReportScreens:
		res, err := s.engine.Screens(ctx, p, r)
		return res.Data, err
	default:
		return nil, fmt.Errorf("%w: %q", export.ErrUnknownReportType, rec.ReportType)
	}
}

func (s *ExportService) removeObject(key string) {
	if err := s.objects.Delete(context.Background(), key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("remove orphaned export file")
	}
}

// GetExport returns one export of a project with its effective status.
// Expired exports lose their file; completed ones get a fresh URL once the
// previous one lapsed.
func (s *ExportService) GetExport(ctx context.Context, projectID, id string) (export.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return export.Record{}, err
	}
	if rec.ProjectID != projectID {
		return export.Record{}, ports.ErrNotFound
	}

	now := s.clock.Now()
	rec.Status = rec.EffectiveStatus(now)
	switch {
	case rec.Status == export.StatusExpired:
		rec.File = nil
	case rec.File != nil && !now.Before(rec.File.URLExpiresAt):
		url, err := s.objects.SignedURL(ctx, rec.File.Key, s.cfg.URLTTL)
		if err != nil {
			s.logger.Warn().Err(err).Str("export_id", rec.ID).Msg("refresh download url")
			break
		}
		rec.File.DownloadURL = url
		rec.File.URLExpiresAt = now.Add(s.cfg.URLTTL)
	}
	return rec, nil
}

// ListExports returns a project's unexpired exports, newest first.
func (s *ExportService) ListExports(ctx context.Context, projectID string) ([]export.Record, error) {
	all, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]export.Record, 0, len(all))
	for _, rec := range all {
		if !rec.IsExpired(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// DeleteExport removes a finished export and its file.
func (s *ExportService) DeleteExport(ctx context.Context, projectID, id string) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.ProjectID != projectID {
		return ports.ErrNotFound
	}
	if rec.IsActive() {
		return ErrExportActive
	}
	if rec.File != nil {
		if err := s.objects.Delete(ctx, rec.File.Key); err != nil {
			return fmt.Errorf("delete export file: %w", err)
		}
	}
	return s.store.Delete(ctx, id)
}

// PurgeExpired deletes expired records and their files. A record whose file
// cannot be deleted is kept for the next run.
func (s *ExportService) PurgeExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired exports: %w", err)
	}

	var (
		purged int
		errs   []error
	)
	for _, rec := range expired {
		if rec.IsActive() {
			continue
		}
		if rec.File != nil {
			if err := s.objects.Delete(ctx, rec.File.Key); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", rec.File.Key, err))
				continue
			}
		}
		if err := s.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, ports.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete export %s: %w", rec.ID, err))
			continue
		}
		purged++
	}
	if purged > 0 {
		s.logger.Info().Int("purged", purged).Msg("expired exports purged")
	}
	return purged, errors.Join(errs...)
}

// Wait blocks until every running job has finished.
func (s *ExportService) Wait() {
	s.wg.Wait()
}

// Close stops accepting exports, cancels running jobs and waits for them.
func (s *ExportService) Close() {
	s.createMu.Lock()
	s.cancel()
	s.createMu.Unlock()
	s.wg.Wait()
}
