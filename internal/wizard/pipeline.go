package wizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vtokiosk/internal/analytics"
	"vtokiosk/internal/auth"
	"vtokiosk/internal/capture"
	"vtokiosk/internal/design"
	"vtokiosk/internal/domain"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/imaging"
)

// outcome is what a pipeline hands back to the session.
type outcome struct {
	result   *Result
	failure  *Failure
	degraded bool
	// garment is the image sent to try-on. It differs from the design raster
	// when the design was recomposited onto an alternate base.
	garment string
}

// job carries everything a pipeline reads from the session at capture time.
type job struct {
	sessionID string
	flow      domain.Flow
	epoch     uint64
	photo     string
	garment   string
	doc       *design.Document
	raster    string
}

// Capture processes the still frame, moves the session to a loading result
// and starts the generation pipeline in the background.
func (o *Orchestrator) Capture(id, frame string, crop capture.Crop) (Snapshot, error) {
	s, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	err = s.expect(StepCapture)
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	photo, err := capture.Still(frame, crop)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var j job
	var scope context.Context
	snap, err := o.mutate(id, func(s *session) error {
		if err := s.expect(StepCapture); err != nil {
			return err
		}
		s.countdown.Stop()
		s.countdownLeft = 0
		s.photo = photo
		s.step = StepResult
		s.phase = PhaseLoading
		s.result = nil
		s.failure = nil
		s.share = ""
		s.status = 0
		s.tryOnGarment = ""
		j = job{
			sessionID: s.id,
			flow:      s.flow,
			epoch:     s.epoch,
			photo:     photo,
			garment:   s.garment.Image,
			doc:       s.doc,
			raster:    s.raster,
		}
		scope = s.scope
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	o.spawn(func() { o.generate(scope, s, j) })
	return snap, nil
}

func (o *Orchestrator) generate(scope context.Context, s *session, j job) {
	ctx, done := context.WithCancel(scope)
	defer done()
	ctx = auth.NewContext(ctx, o.AuthSession())

	o.spawn(func() { o.rotateStatus(ctx, s, j.epoch) })

	log := o.logger.With().Str("session_id", j.sessionID).Str("flow", string(j.flow)).Logger()
	started := o.now()
	var out outcome
	if j.flow == domain.FlowWardrobe {
		out = o.wardrobe(ctx, j)
	} else {
		out = o.consult(ctx, j)
	}
	if ctx.Err() != nil {
		log.Info().Msg("generation abandoned")
		return
	}
	latency := o.now().Sub(started)

	if out.failure == nil {
		if _, err := o.history.Push(ctx, out.result.Image); err != nil {
			log.Warn().Err(err).Msg("history write failed")
		}
		if !out.degraded {
			if _, err := o.usage.Increment(ctx); err != nil {
				log.Warn().Err(err).Msg("usage counter write failed")
			}
		}
	}

	s.mu.Lock()
	if s.epoch != j.epoch {
		s.mu.Unlock()
		return
	}
	s.tryOnGarment = out.garment
	if out.failure != nil {
		s.phase = PhaseFailure
		s.failure = out.failure
	} else {
		s.phase = PhaseSuccess
		s.result = out.result
	}
	s.updated = o.now()
	o.publish(s, EventState)
	s.mu.Unlock()

	o.record(j, out, latency)
	if out.failure != nil {
		log.Warn().Str("kind", string(out.failure.Kind)).Str("error", out.failure.Message).Dur("latency", latency).Msg("generation failed")
		return
	}
	log.Info().Bool("degraded", out.degraded).Dur("latency", latency).Msg("generation finished")
	if o.backup != nil {
		image := out.result.Image
		o.spawn(func() { o.backupResult(scope, s, j, image) })
	}
}

// wardrobe runs attire analysis, optional recomposition, try-on and the
// frame overlay. Every attempt starts from the finalized design raster; a
// recomposed garment never replaces it.
func (o *Orchestrator) wardrobe(ctx context.Context, j job) outcome {
	flags := o.gw.AnalyzeAttire(ctx, j.photo)

	garment := j.raster
	if !j.doc.Empty() {
		if alt := o.alternateBase(flags); alt != "" {
			raster, err := design.Render(o.layout, j.doc, alt, o.assets, o.catalog.Canvas.ExportMultiplier)
			if err != nil {
				o.logger.Warn().Err(err).Str("session_id", j.sessionID).Str("base", alt).Msg("recomposition failed; using original design")
			} else {
				garment = raster
			}
		}
	}
	if garment == "" {
		var err error
		garment, err = design.Render(o.layout, nil, j.garment, o.assets, o.catalog.Canvas.ExportMultiplier)
		if err != nil {
			return outcome{failure: classify(err)}
		}
	}

	img, err := o.gw.TryOn(ctx, j.photo, garment)
	if err != nil {
		return outcome{failure: classify(err), garment: garment}
	}
	return outcome{result: &Result{Image: o.applyFrame(j, img)}, garment: garment}
}

// alternateBase picks the base garment for recomposition. The long-sleeve
// base wins when both flags are set.
func (o *Orchestrator) alternateBase(flags gateway.AttireFlags) string {
	switch {
	case flags.IsMuslimah:
		return o.catalog.Alternates.LongSleeve
	case flags.IsSleeveless:
		return o.catalog.Alternates.Standard
	}
	return ""
}

// applyFrame overlays the catalog frame. A missing or broken frame leaves the
// try-on result as it is.
func (o *Orchestrator) applyFrame(j job, img string) string {
	ref := o.catalog.Frame.Image
	if ref == "" {
		return img
	}
	frame, err := o.assets.Image(ref)
	if err == nil {
		var framed string
		framed, err = imaging.FrameDataURI(img, frame, o.frameScale)
		if err == nil {
			return framed
		}
	}
	o.logger.Warn().Err(err).Str("session_id", j.sessionID).Msg("frame overlay failed; keeping unframed result")
	return img
}

func (o *Orchestrator) consult(ctx context.Context, j job) outcome {
	cfg := o.prompts.Resolve(ctx)
	req, err := cfg.Consult(j.flow)
	if err != nil {
		return outcome{failure: classify(err)}
	}
	res, err := o.gw.ConsultAndSynthesize(ctx, j.photo, req)
	if err != nil {
		return outcome{failure: classify(err)}
	}
	return outcome{
		result:   &Result{Image: res.Image, Note: res.Note, Degraded: res.Degraded},
		degraded: res.Degraded,
	}
}

// classify maps gateway errors to failure kinds. Messages pass through
// unchanged.
func classify(err error) *Failure {
	kind := FailureGeneration
	switch {
	case errors.Is(err, gateway.ErrUnauthenticated):
		kind = FailureAuth
	case errors.Is(err, gateway.ErrMissingConfig):
		kind = FailureConfig
	}
	return &Failure{Kind: kind, Message: err.Error(), Affordance: kind.Affordance()}
}

func (o *Orchestrator) rotateStatus(ctx context.Context, s *session, epoch uint64) {
	every := o.statusEvery
	if every <= 0 {
		every = statusInterval(s.flow)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		if s.epoch != epoch || s.phase != PhaseLoading {
			s.mu.Unlock()
			return
		}
		s.status++
		o.publish(s, EventStatus)
		s.mu.Unlock()
	}
}

var backupPrefixes = map[domain.Flow]string{
	domain.FlowWardrobe: "vto-design",
	domain.FlowGrooming: "barber-collage",
	domain.FlowGlam:     "glam-collage",
}

// backupResult uploads the result and stores the share URL if the session
// identity is unchanged.
func (o *Orchestrator) backupResult(scope context.Context, s *session, j job, image string) {
	ctx, cancel := context.WithTimeout(scope, o.backupTimeout)
	defer cancel()

	filename := fmt.Sprintf("%s-%d.png", backupPrefixes[j.flow], o.now().UnixMilli())
	up := o.backup.Upload(ctx, image, filename)
	if up == nil || up.URL == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != j.epoch || ctx.Err() != nil {
		return
	}
	s.share = up.URL
	s.updated = o.now()
	o.publish(s, EventShare)
}

func (o *Orchestrator) record(j job, out outcome, latency time.Duration) {
	ev := analytics.Event{
		Flow:    string(j.flow),
		Outcome: analytics.OutcomeSuccess,
		Latency: latency,
	}
	if id, err := uuid.Parse(j.sessionID); err == nil {
		ev.SessionID = id
	}
	switch {
	case out.failure != nil:
		ev.Outcome = analytics.OutcomeFailure
		ev.FailureKind = string(out.failure.Kind)
	case out.degraded:
		ev.Outcome = analytics.OutcomeDegraded
	}
	ctx, cancel := context.WithTimeout(o.base, 5*time.Second)
	defer cancel()
	if err := o.recorder.Record(ctx, ev); err != nil {
		o.logger.Warn().Err(err).Str("session_id", j.sessionID).Msg("generation event not recorded")
	}
}
