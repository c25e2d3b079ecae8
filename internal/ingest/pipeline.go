package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/logging"
	"github.com/Anansitrading/kijko/internal/project"
	"github.com/Anansitrading/kijko/internal/secrets"
	"github.com/Anansitrading/kijko/internal/vectorstore"
)

// indexBatchSize is how many chunks go into one upsert. Progress advances
// per batch so the indexing phase moves visibly on large projects.
const indexBatchSize = 64

// Options configures the pipeline.
type Options struct {
	// Workdir is where repositories are cloned, one subtree per project.
	Workdir string

	// MaxFileSize is the parsing size cap in bytes.
	MaxFileSize int64

	// ChunkSize and ChunkOverlap feed the chunking phase.
	ChunkSize    int
	ChunkOverlap int

	// VectorSize is the embedding dimension for new collections.
	VectorSize int
}

// Service runs ingestion pipelines. One run per project at a time; trackers
// for finished runs are retained so the snapshot endpoint keeps answering
// after completion.
type Service struct {
	projects  project.Store
	vectors   vectorstore.Store
	redactor  *secrets.Redactor
	publisher Publisher
	logger    *logging.Logger
	metrics   *Metrics
	opts      Options

	mu       sync.Mutex
	trackers map[string]*Tracker
	active   map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewService creates the pipeline service.
func NewService(projects project.Store, vectors vectorstore.Store, redactor *secrets.Redactor, publisher Publisher, logger *logging.Logger, opts Options) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1500
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 1024 * 1024
	}
	if opts.VectorSize <= 0 {
		opts.VectorSize = 384
	}
	return &Service{
		projects:  projects,
		vectors:   vectors,
		redactor:  redactor,
		publisher: publisher,
		logger:    logger,
		metrics:   NewMetrics(),
		opts:      opts,
		trackers:  make(map[string]*Tracker),
		active:    make(map[string]context.CancelFunc),
	}
}

// Start launches an ingestion run for the project and returns the initial
// snapshot. At most one run per project is in flight; a second Start while
// one is running returns ErrAlreadyRunning.
func (s *Service) Start(ctx context.Context, projectID string) (Snapshot, error) {
	proj, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	repos, err := s.projects.Repositories(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(repos) == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoRepositories, projectID)
	}

	s.mu.Lock()
	if _, running := s.active[projectID]; running {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, projectID)
	}
	tracker := NewTracker(projectID, s.publisher)
	runCtx, cancel := context.WithCancel(context.Background())
	s.trackers[projectID] = tracker
	s.active[projectID] = cancel
	s.mu.Unlock()

	if err := s.projects.SetStatus(ctx, projectID, project.StatusProcessing); err != nil {
		s.logger.Warn(ctx, "setting project status", zap.Error(err))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, projectID)
			s.mu.Unlock()
			cancel()
		}()
		s.run(runCtx, proj, repos, tracker)
	}()

	return tracker.Snapshot(), nil
}

// Snapshot returns the latest progress document for a project.
func (s *Service) Snapshot(projectID string) (Snapshot, error) {
	s.mu.Lock()
	tracker, ok := s.trackers[projectID]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, projectID)
	}
	return tracker.Snapshot(), nil
}

// Shutdown cancels active runs and waits for them to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.active {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the five phases. Any phase error fails the run.
func (s *Service) run(ctx context.Context, proj *project.Project, repos []*project.Repository, tracker *Tracker) {
	start := time.Now()
	log := s.logger.With(zap.String("project_id", proj.ID))
	log.Info(ctx, "ingestion started", zap.Int("repositories", len(repos)))

	files, err := s.fetchAndParse(ctx, proj, repos, tracker)
	if err != nil {
		s.fail(ctx, proj, tracker, "pipeline_failed", err, start)
		return
	}

	chunks, err := s.chunkPhase(ctx, proj, files, tracker)
	if err != nil {
		s.fail(ctx, proj, tracker, "chunking_failed", err, start)
		return
	}

	phaseStart := time.Now()
	tracker.BeginPhase(ctx, PhaseOptimization, "optimizing chunks")
	opt := optimizeChunks(chunks, s.redactor, proj.AnonymizeSecrets)
	tracker.AddMetric("secrets_redacted", opt.secretsRedacted)
	tracker.AddMetric("tokens_estimated", opt.tokensEstimated)
	tracker.Advance(ctx, 100, "optimization complete")
	s.metrics.RecordPhase(ctx, PhaseOptimization, time.Since(phaseStart))

	if err := s.indexPhase(ctx, proj, chunks, tracker); err != nil {
		s.fail(ctx, proj, tracker, "indexing_failed", err, start)
		return
	}

	outcome := project.IngestionOutcome{
		Status:          project.StatusActive,
		TotalFiles:      len(files),
		OriginalTokens:  opt.tokensEstimated,
		OptimizedTokens: opt.tokensEstimated,
		Duration:        time.Since(start),
	}
	if err := s.projects.RecordIngestion(ctx, proj.ID, outcome); err != nil {
		log.Warn(ctx, "recording ingestion outcome", zap.Error(err))
	}

	tracker.Complete(ctx, "ingestion complete")
	s.metrics.RecordRun(ctx, StatusCompleted, time.Since(start))
	log.Info(ctx, "ingestion completed",
		zap.Int("files", len(files)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Service) fetchAndParse(ctx context.Context, proj *project.Project, repos []*project.Repository, tracker *Tracker) ([]SourceFile, error) {
	phaseStart := time.Now()
	tracker.BeginPhase(ctx, PhaseRepositoryFetch, "fetching repositories")

	dirs := make(map[string]string, len(repos))
	for i, repo := range repos {
		dir := filepath.Join(s.opts.Workdir, proj.ID, repo.ID)
		repo.Status = project.RepoSyncing
		_ = s.projects.UpdateRepository(ctx, repo)

		if err := fetchRepository(ctx, repo.URL, repo.Branch, dir); err != nil {
			repo.Status = project.RepoError
			_ = s.projects.UpdateRepository(ctx, repo)
			return nil, err
		}
		dirs[repo.ID] = dir
		tracker.AddMetric("repositories_fetched", 1)
		tracker.Advance(ctx, float64(i+1)/float64(len(repos))*100, fmt.Sprintf("fetched %s", repo.Name))
	}
	s.metrics.RecordPhase(ctx, PhaseRepositoryFetch, time.Since(phaseStart))

	phaseStart = time.Now()
	tracker.BeginPhase(ctx, PhaseParsing, "parsing source files")
	var files []SourceFile
	for i, repo := range repos {
		parsed, err := parseTree(ctx, dirs[repo.ID], repo.ID, ParseOptions{
			MaxFileSize:     s.opts.MaxFileSize,
			IncludePatterns: repo.IncludePaths,
			ExcludePatterns: repo.ExcludePaths,
		})
		if err != nil {
			return nil, err
		}
		files = append(files, parsed...)

		now := time.Now()
		repo.Status = project.RepoConnected
		repo.FileCount = len(parsed)
		repo.LastSyncAt = &now
		_ = s.projects.UpdateRepository(ctx, repo)

		tracker.AddMetric("files_parsed", int64(len(parsed)))
		tracker.Advance(ctx, float64(i+1)/float64(len(repos))*100, fmt.Sprintf("parsed %d files", len(files)))
	}
	s.metrics.AddFiles(ctx, len(files))
	s.metrics.RecordPhase(ctx, PhaseParsing, time.Since(phaseStart))
	return files, nil
}

func (s *Service) chunkPhase(ctx context.Context, proj *project.Project, files []SourceFile, tracker *Tracker) ([]vectorstore.Chunk, error) {
	phaseStart := time.Now()
	tracker.BeginPhase(ctx, PhaseChunking, "chunking files")

	opts := ChunkOptions{
		Strategy: proj.Chunking,
		Size:     s.opts.ChunkSize,
		Overlap:  s.opts.ChunkOverlap,
	}

	var chunks []vectorstore.Chunk
	for i, file := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		fileChunks, err := chunkFile(file, proj.ID, opts)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, fileChunks...)

		if (i+1)%25 == 0 || i == len(files)-1 {
			tracker.Advance(ctx, float64(i+1)/float64(len(files))*100, fmt.Sprintf("chunked %d/%d files", i+1, len(files)))
		}
	}
	tracker.AddMetric("chunks_created", int64(len(chunks)))
	s.metrics.RecordPhase(ctx, PhaseChunking, time.Since(phaseStart))
	return chunks, nil
}

func (s *Service) indexPhase(ctx context.Context, proj *project.Project, chunks []vectorstore.Chunk, tracker *Tracker) error {
	phaseStart := time.Now()
	tracker.BeginPhase(ctx, PhaseIndexing, "indexing chunks")

	collection := vectorstore.CollectionForProject(proj.ID)
	if err := s.vectors.EnsureCollection(ctx, collection, s.opts.VectorSize); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += indexBatchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + indexBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.vectors.Upsert(ctx, collection, chunks[start:end]); err != nil {
			return err
		}
		tracker.AddMetric("chunks_indexed", int64(end-start))
		tracker.Advance(ctx, float64(end)/float64(len(chunks))*100, fmt.Sprintf("indexed %d/%d chunks", end, len(chunks)))
	}
	s.metrics.AddChunks(ctx, len(chunks))
	s.metrics.RecordPhase(ctx, PhaseIndexing, time.Since(phaseStart))
	return nil
}

func (s *Service) fail(ctx context.Context, proj *project.Project, tracker *Tracker, code string, err error, start time.Time) {
	s.logger.Error(ctx, "ingestion failed",
		zap.String("project_id", proj.ID),
		zap.String("code", code),
		zap.Error(err),
	)
	tracker.Fail(ctx, code, err.Error())
	s.metrics.RecordRun(ctx, StatusFailed, time.Since(start))
	if serr := s.projects.SetStatus(ctx, proj.ID, project.StatusError); serr != nil {
		s.logger.Warn(ctx, "setting project status", zap.Error(serr))
	}
}
