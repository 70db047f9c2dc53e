// Package analysis runs contact analyses as stored sessions. It sits between
// the HTTP, CLI and worker entry points and the domain: it gathers structure
// text from uploads or the remote archive, parses and validates it, runs the
// contact engine and persists the result, then fans the session out to the
// optional cache, object store, event stream, search index and graph.
package analysis

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ContactScope/internal/application/reporting"
	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/domain/structure"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ContactScope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

const (
	cacheKeyPrefix    = "session:"
	sideEffectTimeout = 10 * time.Second
	searchScanLimit   = 1000
)

// Side-effect component names as reported to metrics.
const (
	componentCache   = "cache"
	componentStorage = "storage"
	componentEvents  = "events"
	componentIndex   = "index"
	componentGraph   = "graph"
)

// Service defines the analysis session operations.
type Service interface {
	Analyze(ctx context.Context, input *AnalyzeInput) (*session.Session, error)
	GetSession(ctx context.Context, id common.ID) (*session.Session, error)
	ListSessions(ctx context.Context, page common.Pagination) (*ListResult, error)
	SearchSessions(ctx context.Context, query string, page common.Pagination) (*ListResult, error)
	DeleteSession(ctx context.Context, id common.ID) error
	ExportInteractions(ctx context.Context, id common.ID, variant string) (*Export, error)
	ExportCoordinates(ctx context.Context, id common.ID, label string) (*Export, error)
	ExportSummary(ctx context.Context, id common.ID) (*Export, error)
	Partners(ctx context.Context, id common.ID, chain contact.ChainKey) ([]repositories.Partner, error)
	HandleRequest(ctx context.Context, msg *common.Message) error
}

// Upload is structure text supplied directly by the caller.
type Upload struct {
	Label   string
	Content []byte
}

// AccessionInput names a structure to download. An empty label defaults to
// the normalized code.
type AccessionInput struct {
	Code  string
	Label string
}

// AnalyzeInput describes one analysis request. Uploads come first in the
// session, then accessions, each in the order given. Zero Cutoff and Workers
// fall back to the configured values.
type AnalyzeInput struct {
	Uploads         []Upload
	Accessions      []AccessionInput
	Cutoff          float64
	Workers         int
	BruteForce      bool
	FirstAltLocOnly bool
}

// ListResult is one page of session headers.
type ListResult struct {
	Sessions   []session.Header `json:"sessions"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// Export is a rendered report. URL is set when the artefact was also written
// to object storage.
type Export struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
	URL         string `json:"url,omitempty"`
}

// Dependencies wires the service. Repository is required; every other
// collaborator is optional and skipped when nil.
type Dependencies struct {
	Repository session.Repository
	Fetcher    Fetcher
	Cache      Cache
	Artefacts  ArtefactStore
	Publisher  EventPublisher
	Indexer    SessionIndexer
	Searcher   SessionSearcher
	Graph      GraphProjector
	Metrics    Metrics
	Logger     logging.Logger
}

// Options carries the tunables.
type Options struct {
	Analysis       config.AnalysisConfig
	CacheTTL       time.Duration
	CompletedTopic string
	Codec          kafka.Codec
	Source         string
}

type serviceImpl struct {
	repo      session.Repository
	fetcher   Fetcher
	cache     Cache
	artefacts ArtefactStore
	publisher EventPublisher
	indexer   SessionIndexer
	searcher  SessionSearcher
	graph     GraphProjector
	metrics   Metrics
	logger    logging.Logger

	opts  Options
	group singleflight.Group
}

// NewService creates a new analysis service.
func NewService(deps Dependencies, opts Options) (Service, error) {
	if deps.Repository == nil {
		return nil, errors.InvalidParam("analysis service requires a session repository")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if opts.Analysis.Cutoff <= 0 {
		opts.Analysis.Cutoff = contact.DefaultCutoff
	}
	if opts.Analysis.MaxCutoff <= 0 {
		opts.Analysis.MaxCutoff = math.Max(config.DefaultAnalysisMaxCutoff, opts.Analysis.Cutoff)
	}
	opts.Analysis.MaxCutoff = math.Min(opts.Analysis.MaxCutoff, contact.MaxCutoff)
	if opts.Analysis.MaxBruteForceAtoms <= 0 {
		opts.Analysis.MaxBruteForceAtoms = config.DefaultAnalysisMaxBruteForceAtoms
	}
	if opts.Analysis.Workers < 1 {
		opts.Analysis.Workers = 1
	}
	if opts.Codec.Encoding() == "" {
		opts.Codec, _ = kafka.NewCodec(kafka.EncodingJSON)
	}
	if opts.Source == "" {
		opts.Source = "contactscope"
	}
	return &serviceImpl{
		repo:      deps.Repository,
		fetcher:   deps.Fetcher,
		cache:     deps.Cache,
		artefacts: deps.Artefacts,
		publisher: deps.Publisher,
		indexer:   deps.Indexer,
		searcher:  deps.Searcher,
		graph:     deps.Graph,
		metrics:   deps.Metrics,
		logger:    deps.Logger.Named("analysis"),
		opts:      opts,
	}, nil
}

// Analyze gathers, parses and validates the input structures, runs the engine
// and saves the session. Only a failed save fails the request once the engine
// has produced a result.
func (s *serviceImpl) Analyze(ctx context.Context, input *AnalyzeInput) (*session.Session, error) {
	start := time.Now()
	sess, err := s.analyze(ctx, input, start)
	if err != nil {
		s.metrics.RecordAnalysis(analysisStatus(err), time.Since(start), nil)
		s.logger.Warn("analysis failed", logging.Err(err), logging.Duration("took", time.Since(start)))
		return nil, err
	}
	s.metrics.RecordAnalysis("ok", sess.Duration, sess.Result)
	return sess, nil
}

func (s *serviceImpl) analyze(ctx context.Context, input *AnalyzeInput, start time.Time) (*session.Session, error) {
	if input == nil {
		return nil, errors.InvalidParam("analysis input is required")
	}
	if err := s.checkLimits(input); err != nil {
		return nil, err
	}
	if s.opts.Analysis.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Analysis.Timeout)
		defer cancel()
	}

	structs, raw, err := s.loadStructures(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := structure.ValidateSet(structs); err != nil {
		return nil, err
	}
	if input.BruteForce {
		n := 0
		for _, st := range structs {
			n += st.Len()
		}
		if limit := s.opts.Analysis.MaxBruteForceAtoms; n > limit {
			return nil, errors.Newf(errors.CodeInvalidParam, "brute force scan is limited to %d atoms, got %d", limit, n)
		}
	}

	cutoff := input.Cutoff
	if cutoff <= 0 {
		cutoff = s.opts.Analysis.Cutoff
	}
	workers := input.Workers
	if workers < 1 {
		workers = s.opts.Analysis.Workers
	}
	engineOpts := []contact.Option{contact.WithCutoff(cutoff), contact.WithWorkers(workers)}
	if input.BruteForce {
		engineOpts = append(engineOpts, contact.WithBruteForce())
	}

	res, err := contact.Analyze(ctx, structs, engineOpts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.CodeTimeout, "analysis deadline exceeded")
		}
		return nil, errors.Wrap(err, errors.CodeAnalysisFailed, "contact analysis failed")
	}

	sess := session.New(structs, res, time.Since(start))
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, errors.Wrap(err, errors.CodeAnalysisFailed, "failed to persist session")
	}
	s.logger.Info("analysis completed",
		logging.String("session_id", sess.ID.String()),
		logging.Strings("labels", sess.Labels),
		logging.Int("atoms", res.Summary.Atoms),
		logging.Int("interactions", res.Summary.Interactions),
		logging.Duration("took", sess.Duration))

	s.fanOut(ctx, sess, raw)
	return sess, nil
}

func (s *serviceImpl) checkLimits(input *AnalyzeInput) error {
	n := len(input.Uploads) + len(input.Accessions)
	if n == 0 {
		return errors.InvalidParam("at least one structure is required")
	}
	if c := input.Cutoff; math.IsNaN(c) || c > s.opts.Analysis.MaxCutoff {
		return errors.Newf(errors.CodeInvalidParam, "cutoff must not exceed %g, got %g", s.opts.Analysis.MaxCutoff, c)
	}
	if limit := s.opts.Analysis.MaxStructures; limit > 0 && n > limit {
		return errors.Newf(errors.CodeStructureTooLarge, "too many structures: %d > %d", n, limit)
	}
	if limit := s.opts.Analysis.MaxUploadBytes; limit > 0 {
		var total int64
		for _, u := range input.Uploads {
			total += int64(len(u.Content))
		}
		if total > limit {
			return errors.Newf(errors.CodeStructureTooLarge, "upload too large: %d > %d bytes", total, limit)
		}
	}
	return nil
}

// loadStructures returns the parsed structures in input order together with
// the raw text keyed by label.
func (s *serviceImpl) loadStructures(ctx context.Context, input *AnalyzeInput) ([]*structure.Structure, map[string][]byte, error) {
	codes := make([]string, len(input.Accessions))
	for i, a := range input.Accessions {
		code, err := structure.NormalizeAccession(a.Code)
		if err != nil {
			return nil, nil, err
		}
		codes[i] = code
	}
	if len(codes) > 0 && s.fetcher == nil {
		return nil, nil, errors.New(errors.ErrCodeFeatureDisabled, "remote structure fetch is not configured")
	}

	fetched := make([][]byte, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			data, err := s.fetcher.Fetch(gctx, code)
			if err != nil {
				return err
			}
			fetched[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, errors.Wrap(err, errors.CodeTimeout, "structure fetch deadline exceeded")
		}
		return nil, nil, err
	}

	var parseOpts []structure.ParseOption
	if input.FirstAltLocOnly || s.opts.Analysis.FirstAltLocOnly {
		parseOpts = append(parseOpts, structure.WithFirstAltLocOnly())
	}

	structs := make([]*structure.Structure, 0, len(input.Uploads)+len(codes))
	raw := make(map[string][]byte, cap(structs))
	for _, u := range input.Uploads {
		st, err := s.parse(u.Content, u.Label, parseOpts)
		if err != nil {
			return nil, nil, err
		}
		structs = append(structs, st)
		raw[st.Label] = u.Content
	}
	for i, code := range codes {
		label := strings.TrimSpace(input.Accessions[i].Label)
		if label == "" {
			label = code
		}
		st, err := s.parse(fetched[i], label, parseOpts)
		if err != nil {
			return nil, nil, err
		}
		st.Accession = code
		structs = append(structs, st)
		raw[st.Label] = fetched[i]
	}
	return structs, raw, nil
}

func (s *serviceImpl) parse(data []byte, label string, opts []structure.ParseOption) (*structure.Structure, error) {
	st, rep, err := structure.ParseString(string(data), label, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "failed to read structure text").
			WithDetail("label=" + label)
	}
	s.metrics.RecordAtomsParsed(rep.Atoms)
	if len(rep.Malformed) > 0 {
		s.logger.Warn("skipped malformed coordinate records",
			logging.String("label", label),
			logging.Int("malformed", len(rep.Malformed)),
			logging.Int("first_line", rep.Malformed[0].Line))
	}
	s.logger.Debug("structure parsed",
		logging.String("label", label),
		logging.Int("atoms", rep.Atoms),
		logging.Int("defaulted", rep.Defaulted),
		logging.Bool("truncated", rep.Truncated))
	return st, nil
}

// fanOut performs the optional writes. Failures are logged and counted and
// never reach the caller.
func (s *serviceImpl) fanOut(parent context.Context, sess *session.Session, raw map[string][]byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), sideEffectTimeout)
	defer cancel()

	if s.cache != nil {
		s.sideEffect(componentCache, sess.ID, s.cache.Set(ctx, cacheKey(sess.ID), sess, s.opts.CacheTTL))
	}
	if s.artefacts != nil {
		for _, label := range sess.Labels {
			_, err := s.artefacts.PutRaw(ctx, sess.ID, label, raw[label])
			s.sideEffect(componentStorage, sess.ID, err)
		}
	}
	if s.publisher != nil && s.opts.CompletedTopic != "" {
		s.sideEffect(componentEvents, sess.ID, s.publishCompleted(ctx, sess))
	}
	if s.indexer != nil {
		s.sideEffect(componentIndex, sess.ID, s.indexer.IndexSession(ctx, sess.Header()))
	}
	if s.graph != nil {
		s.sideEffect(componentGraph, sess.ID, s.graph.Project(ctx, sess.ID, sess.Result))
	}
}

func (s *serviceImpl) sideEffect(component string, id common.ID, err error) {
	if err == nil {
		return
	}
	s.metrics.RecordSideEffectFailure(component)
	s.logger.Warn("session side effect failed",
		logging.String("component", component),
		logging.String("session_id", id.String()),
		logging.Err(err))
}

func (s *serviceImpl) publishCompleted(ctx context.Context, sess *session.Session) error {
	sum := sess.Result.Summary
	payload := kafka.AnalysisCompletedPayload{
		SessionID:         sess.ID.String(),
		Labels:            sess.Labels,
		Accessions:        sess.Accessions,
		Cutoff:            sum.Cutoff,
		Structures:        sum.Structures,
		Atoms:             sum.Atoms,
		Interactions:      sum.Interactions,
		Intra:             sum.Intra,
		Inter:             sum.Inter,
		InterfaceResidues: sum.InterfaceResidues,
		DurationMs:        sess.Duration.Milliseconds(),
		CreatedAt:         sess.CreatedAt,
	}
	env, err := kafka.NewEventEnvelope(kafka.EventAnalysisCompleted, s.opts.Source, payload)
	if err != nil {
		return err
	}
	msg, err := s.opts.Codec.Encode(s.opts.CompletedTopic, env)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, msg)
}

// GetSession reads through the cache. Concurrent misses for one id share a
// single repository lookup.
func (s *serviceImpl) GetSession(ctx context.Context, id common.ID) (*session.Session, error) {
	if err := id.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "invalid session id")
	}
	if s.cache != nil {
		var cached session.Session
		err := s.cache.Get(ctx, cacheKey(id), &cached)
		if err == nil {
			s.metrics.RecordCacheAccess(true)
			return &cached, nil
		}
		if !errors.IsNotFound(err) {
			s.logger.Warn("session cache read failed", logging.String("session_id", id.String()), logging.Err(err))
		}
		s.metrics.RecordCacheAccess(false)
	}

	v, err, _ := s.group.Do(id.String(), func() (interface{}, error) {
		sess, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, cacheKey(id), sess, s.opts.CacheTTL); err != nil {
				s.sideEffect(componentCache, id, err)
			}
		}
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

// ListSessions returns session headers newest first.
func (s *serviceImpl) ListSessions(ctx context.Context, page common.Pagination) (*ListResult, error) {
	page = page.Normalize(20, 100)
	headers, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list sessions")
	}
	return newListResult(headers, total, page), nil
}

// SearchSessions matches query against labels and accession codes. Without a
// search index the stored headers are scanned.
func (s *serviceImpl) SearchSessions(ctx context.Context, query string, page common.Pagination) (*ListResult, error) {
	page = page.Normalize(20, 100)
	query = strings.TrimSpace(query)
	if s.searcher != nil {
		headers, total, err := s.searcher.SearchSessions(ctx, query, page)
		if err != nil {
			return nil, err
		}
		return newListResult(headers, total, page), nil
	}
	if query == "" {
		return s.ListSessions(ctx, page)
	}

	var matched []session.Header
	scan := common.Pagination{Page: 1, PageSize: 100}
	for scanned := 0; scanned < searchScanLimit; scan.Page++ {
		headers, _, err := s.repo.List(ctx, scan)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan sessions")
		}
		for _, h := range headers {
			if headerMatches(h, query) {
				matched = append(matched, h)
			}
		}
		scanned += len(headers)
		if len(headers) < scan.PageSize {
			break
		}
	}

	total := int64(len(matched))
	start := page.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return newListResult(matched[start:end], total, page), nil
}

func headerMatches(h session.Header, q string) bool {
	q = strings.ToLower(q)
	for _, l := range h.Labels {
		if strings.Contains(strings.ToLower(l), q) {
			return true
		}
	}
	for _, a := range h.Accessions {
		if strings.EqualFold(a, q) {
			return true
		}
	}
	return false
}

// DeleteSession removes the stored session and then clears every side
// channel that may hold a copy.
func (s *serviceImpl) DeleteSession(ctx context.Context, id common.ID) error {
	if err := id.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "invalid session id")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.sideEffect(componentCache, id, s.cache.Delete(ctx, cacheKey(id)))
	}
	if s.artefacts != nil {
		_, err := s.artefacts.DeleteSession(ctx, id)
		s.sideEffect(componentStorage, id, err)
	}
	if s.indexer != nil {
		s.sideEffect(componentIndex, id, s.indexer.DeleteSession(ctx, id))
	}
	if s.graph != nil {
		s.sideEffect(componentGraph, id, s.graph.DeleteSession(ctx, id))
	}
	s.logger.Info("session deleted", logging.String("session_id", id.String()))
	return nil
}

// ExportInteractions renders the full interaction table of a session,
// filtered by variant.
func (s *serviceImpl) ExportInteractions(ctx context.Context, id common.ID, variant string) (*Export, error) {
	v, err := reporting.ParseVariant(variant)
	if err != nil {
		return nil, err
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	art, err := reporting.InteractionsArtefact(id.String(), sess.Result, v)
	if err != nil {
		return nil, err
	}
	return s.export(ctx, id, art), nil
}

// ExportCoordinates renders the stored atoms of one input structure.
func (s *serviceImpl) ExportCoordinates(ctx context.Context, id common.ID, label string) (*Export, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	st, ok := sess.Structure(label)
	if !ok {
		return nil, errors.NotFound("structure not found in session").WithDetail("label=" + label)
	}
	art, err := reporting.CoordinatesArtefact(id.String(), st)
	if err != nil {
		return nil, err
	}
	return s.export(ctx, id, art), nil
}

// ExportSummary renders the Markdown overview of a session.
func (s *serviceImpl) ExportSummary(ctx context.Context, id common.ID) (*Export, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	art, err := reporting.SummaryArtefact(id.String(), sess.Labels, sess.Result, reporting.DefaultTopResidues)
	if err != nil {
		return nil, err
	}
	return s.export(ctx, id, art), nil
}

func (s *serviceImpl) export(ctx context.Context, id common.ID, art *reporting.Artefact) *Export {
	out := &Export{Name: art.Name, ContentType: art.ContentType, Body: art.Body}
	if s.artefacts == nil {
		return out
	}
	key, err := s.artefacts.PutArtefact(ctx, art.Name, art.ContentType, art.Body)
	if err != nil {
		s.sideEffect(componentStorage, id, err)
		return out
	}
	if out.URL, err = s.artefacts.PresignedURL(ctx, key); err != nil {
		s.sideEffect(componentStorage, id, err)
	}
	return out
}

// Partners lists the chains in contact with chain according to the graph
// projection of session id.
func (s *serviceImpl) Partners(ctx context.Context, id common.ID, chain contact.ChainKey) ([]repositories.Partner, error) {
	if s.graph == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "contact graph is not enabled")
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := sess.Result.Chain(chain); !ok {
		return nil, errors.NotFound("chain not found in session").WithDetail("chain=" + chain.String())
	}
	return s.graph.Partners(ctx, id, chain)
}

// HandleRequest runs an analysis for one analysis.requested message.
func (s *serviceImpl) HandleRequest(ctx context.Context, msg *common.Message) error {
	req, err := kafka.DecodeAnalysisRequest(msg)
	if err != nil {
		return err
	}
	input := &AnalyzeInput{Cutoff: req.Cutoff}
	for i, code := range req.Accessions {
		a := AccessionInput{Code: code}
		if len(req.Labels) > 0 {
			a.Label = req.Labels[i]
		}
		input.Accessions = append(input.Accessions, a)
	}
	sess, err := s.Analyze(ctx, input)
	if err != nil {
		return err
	}
	s.logger.Info("analysis request handled",
		logging.String("session_id", sess.ID.String()),
		logging.Int64("offset", msg.Offset),
		logging.Int("partition", msg.Partition))
	return nil
}

func cacheKey(id common.ID) string { return cacheKeyPrefix + id.String() }

func newListResult(headers []session.Header, total int64, page common.Pagination) *ListResult {
	if headers == nil {
		headers = []session.Header{}
	}
	pages := int((total + int64(page.PageSize) - 1) / int64(page.PageSize))
	return &ListResult{
		Sessions:   headers,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: pages,
	}
}

// analysisStatus buckets a failure for the analysis counter.
func analysisStatus(err error) string {
	switch errors.GetCode(err) {
	case errors.CodeTimeout:
		return "timeout"
	case errors.CodeInvalidParam, errors.ErrCodeValidation, errors.CodeEmptyStructure,
		errors.CodeLabelCollision, errors.CodeInvalidAccession, errors.CodeStructureTooLarge:
		return "rejected"
	case errors.CodeSourceUnavailable, errors.CodeSourceRateLimited:
		return "source_error"
	}
	return "error"
}
