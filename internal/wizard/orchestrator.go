// Package wizard runs kiosk sessions: the step machine of each flow, the
// generation pipelines, history and usage bookkeeping, and the detached
// backup that produces share links.
package wizard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vtokiosk/internal/analytics"
	"vtokiosk/internal/auth"
	"vtokiosk/internal/backup"
	"vtokiosk/internal/capture"
	"vtokiosk/internal/catalog"
	"vtokiosk/internal/design"
	"vtokiosk/internal/domain"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/i18n"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/promptcfg"
	"vtokiosk/internal/store"
)

// Gateway is the inference surface the pipelines call.
type Gateway interface {
	AnalyzeAttire(ctx context.Context, photo string) gateway.AttireFlags
	TryOn(ctx context.Context, person, garment string) (string, error)
	ConsultAndSynthesize(ctx context.Context, photo string, cr gateway.ConsultRequest) (gateway.Consultation, error)
}

// Prompts resolves the consult settings once per operation.
type Prompts interface {
	Resolve(ctx context.Context) promptcfg.Config
}

// Publisher delivers session events. Topics are session ids.
type Publisher interface {
	Publish(topic, event string, v any)
	CloseTopic(topic string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}
func (nopPublisher) CloseTopic(string)           {}

const (
	DefaultSessionTTL    = 30 * time.Minute
	DefaultBackupTimeout = 60 * time.Second
)

type Options struct {
	Catalog  *catalog.Catalog
	Assets   design.ImageSource
	Gateway  Gateway
	Prompts  Prompts
	History  *store.History
	Usage    *store.Usage
	Backup   backup.Uploader
	Recorder analytics.Recorder
	Events   Publisher
	Auth     auth.Session

	FrameContentScale float64
	BackupTimeout     time.Duration
	SessionTTL        time.Duration
	// StatusInterval and CountdownInterval override the default periods.
	StatusInterval    time.Duration
	CountdownInterval time.Duration

	Logger *infra.Logger
}

type Orchestrator struct {
	catalog  *catalog.Catalog
	layout   design.Layout
	assets   design.ImageSource
	gw       Gateway
	prompts  Prompts
	history  *store.History
	usage    *store.Usage
	backup   backup.Uploader
	recorder analytics.Recorder
	events   Publisher
	auth     atomic.Pointer[auth.Session]

	frameScale     float64
	backupTimeout  time.Duration
	ttl            time.Duration
	statusEvery    time.Duration
	countdownEvery time.Duration
	logger         *infra.Logger
	now            func() time.Time

	base     context.Context
	stop     context.CancelFunc
	tasks    sync.WaitGroup
	mu       sync.RWMutex
	sessions map[string]*session
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Catalog == nil:
		return nil, fmt.Errorf("wizard: catalog is required")
	case opts.Assets == nil:
		return nil, fmt.Errorf("wizard: asset source is required")
	case opts.Gateway == nil:
		return nil, fmt.Errorf("wizard: gateway is required")
	case opts.Prompts == nil:
		return nil, fmt.Errorf("wizard: prompt config is required")
	case opts.History == nil || opts.Usage == nil:
		return nil, fmt.Errorf("wizard: history and usage stores are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = analytics.Nop{}
	}
	var events Publisher = nopPublisher{}
	if opts.Events != nil {
		events = opts.Events
	}
	scale := opts.FrameContentScale
	if scale <= 0 {
		scale = 1
	}
	backupTimeout := opts.BackupTimeout
	if backupTimeout <= 0 {
		backupTimeout = DefaultBackupTimeout
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	base, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		catalog:        opts.Catalog,
		layout:         design.LayoutFromCatalog(opts.Catalog),
		assets:         opts.Assets,
		gw:             opts.Gateway,
		prompts:        opts.Prompts,
		history:        opts.History,
		usage:          opts.Usage,
		backup:         opts.Backup,
		recorder:       recorder,
		events:         events,
		frameScale:     scale,
		backupTimeout:  backupTimeout,
		ttl:            ttl,
		statusEvery:    opts.StatusInterval,
		countdownEvery: opts.CountdownInterval,
		logger:         logger,
		now:            time.Now,
		base:           base,
		stop:           stop,
		sessions:       make(map[string]*session),
	}
	authSession := opts.Auth
	o.auth.Store(&authSession)
	return o, nil
}

// Close cancels every session and waits for background tasks.
func (o *Orchestrator) Close() {
	o.stop()
	o.mu.Lock()
	for id, s := range o.sessions {
		s.close()
		delete(o.sessions, id)
	}
	o.mu.Unlock()
	o.tasks.Wait()
}

// Wait blocks until the current background tasks have finished.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// AuthSession returns the credentials currently used for gateway calls.
func (o *Orchestrator) AuthSession() auth.Session {
	return *o.auth.Load()
}

func (o *Orchestrator) spawn(fn func()) {
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		fn()
	}()
}

// session is the mutable state behind a Snapshot. Every field is guarded by
// mu; epoch changes whenever the session identity is reset.
type session struct {
	mu sync.Mutex

	id      string
	flow    domain.Flow
	locale  string
	step    Step
	phase   Phase
	garment catalog.Garment
	surface *design.Surface
	doc     *design.Document
	raster  string
	photo   string
	result  *Result
	share   string
	failure *Failure
	status  int

	// tryOnGarment is the garment image of the latest try-on attempt.
	tryOnGarment string

	countdown     *capture.Countdown
	countdownLeft int

	epoch   uint64
	scope   context.Context
	cancel  context.CancelFunc
	updated time.Time
}

func (s *session) close() {
	s.countdown.Stop()
	s.cancel()
}

func (s *session) expect(steps ...Step) error {
	for _, st := range steps {
		if s.step == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in step %s", domain.ErrInvalidTransition, s.flow, s.step)
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		ID:           s.id,
		Flow:         s.flow,
		Locale:       s.locale,
		Step:         s.step,
		Phase:        s.phase,
		Garment:      s.garment.ID,
		DesignRaster: s.raster,
		TryOnGarment: s.tryOnGarment,
		Photo:        s.photo,
		ShareURL:     s.share,
		Countdown:    s.countdownLeft,
		Epoch:        s.epoch,
		UpdatedAt:    s.updated,
	}
	if s.surface != nil {
		snap.Elements = s.surface.Elements()
	}
	if s.doc != nil {
		doc := *s.doc
		doc.Objects = append([]design.Element(nil), s.doc.Objects...)
		snap.DesignDocument = &doc
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	if s.failure != nil {
		f := *s.failure
		snap.Failure = &f
	}
	if s.phase == PhaseLoading {
		snap.Status = statusMessage(s.flow, s.locale, s.status)
	}
	return snap
}

func (o *Orchestrator) firstStep(flow domain.Flow) Step {
	if flow == domain.FlowWardrobe {
		return StepPickGarment
	}
	return StepCapture
}

// Start opens a session in the first step of flow.
func (o *Orchestrator) Start(flow domain.Flow, locale string) (Snapshot, error) {
	switch flow {
	case domain.FlowWardrobe, domain.FlowGrooming, domain.FlowGlam:
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown flow %q", domain.ErrInvalidInput, flow)
	}
	s := &session{
		id:        uuid.NewString(),
		flow:      flow,
		locale:    i18n.Match(locale),
		step:      o.firstStep(flow),
		countdown: capture.NewCountdown(),
		epoch:     1,
		updated:   o.now(),
	}
	if o.countdownEvery > 0 {
		s.countdown.Interval = o.countdownEvery
	}
	if flow == domain.FlowWardrobe {
		s.garment = o.catalog.DefaultGarment()
	}
	s.scope, s.cancel = context.WithCancel(o.base)

	o.mu.Lock()
	o.sessions[s.id] = s
	o.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	o.logger.Info().Str("session_id", s.id).Str("flow", string(flow)).Msg("session started")
	o.publish(s, EventState)
	return s.snapshot(), nil
}

func (o *Orchestrator) lookup(id string) (*session, error) {
	o.mu.RLock()
	s, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %q", domain.ErrNotFound, id)
	}
	return s, nil
}

// Get returns a snapshot of the session.
func (o *Orchestrator) Get(id string) (Snapshot, error) {
	s, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Exit discards the session and cancels its background tasks.
func (o *Orchestrator) Exit(id string) error {
	o.mu.Lock()
	s, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: session %q", domain.ErrNotFound, id)
	}
	s.mu.Lock()
	s.epoch++
	s.close()
	s.updated = o.now()
	o.publish(s, EventClosed)
	s.mu.Unlock()
	o.events.CloseTopic(id)
	o.logger.Info().Str("session_id", id).Msg("session exited")
	return nil
}

// Sessions returns the number of open sessions.
func (o *Orchestrator) Sessions() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// Sweep exits sessions idle for longer than the session TTL and reports how
// many were removed. Loading sessions are kept.
func (o *Orchestrator) Sweep() int {
	cutoff := o.now().Add(-o.ttl)
	var stale []string
	o.mu.RLock()
	for id, s := range o.sessions {
		s.mu.Lock()
		if s.phase != PhaseLoading && s.updated.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.Unlock()
	}
	o.mu.RUnlock()
	removed := 0
	for _, id := range stale {
		if o.Exit(id) == nil {
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.Sweep(); n > 0 {
				o.logger.Info().Int("sessions", n).Msg("idle sessions removed")
			}
		}
	}
}

// mutate runs fn under the session lock and publishes the new state when fn
// succeeds.
func (o *Orchestrator) mutate(id string, fn func(s *session) error) (Snapshot, error) {
	s, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s); err != nil {
		return Snapshot{}, err
	}
	s.updated = o.now()
	o.publish(s, EventState)
	return s.snapshot(), nil
}

// publish must be called with s.mu held so events keep their order.
func (o *Orchestrator) publish(s *session, event string) {
	o.events.Publish(s.id, event, Event{Type: event, Session: s.snapshot().Lightweight()})
}
