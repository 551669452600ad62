package wizard

import (
	"context"
	"errors"
	"fmt"

	"vtokiosk/internal/design"
	"vtokiosk/internal/domain"
)

// SelectGarment picks the base garment of a wardrobe session.
func (o *Orchestrator) SelectGarment(id, garmentID string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if err := s.expect(StepPickGarment); err != nil {
			return err
		}
		g, err := o.catalog.Garment(garmentID)
		if err != nil {
			return err
		}
		s.garment = g
		return nil
	})
}

// EnterDesign moves from garment selection to an empty design surface.
func (o *Orchestrator) EnterDesign(id string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if err := s.expect(StepPickGarment); err != nil {
			return err
		}
		if s.garment.ID == "" {
			return fmt.Errorf("%w: no garment selected", domain.ErrInvalidInput)
		}
		s.doc = nil
		s.raster = ""
		s.tryOnGarment = ""
		s.surface = design.NewSurface(o.layout, s.garment.Image, nil)
		s.step = StepDesign
		return nil
	})
}

// PlaceSticker adds a sticker at the canvas center.
func (o *Orchestrator) PlaceSticker(id, stickerID string) (design.Element, error) {
	var placed design.Element
	_, err := o.mutate(id, func(s *session) error {
		if err := s.expect(StepDesign); err != nil {
			return err
		}
		st, err := o.catalog.Sticker(stickerID)
		if err != nil {
			return err
		}
		img, err := o.assets.Image(st.Image)
		if err != nil {
			return err
		}
		placed, err = s.surface.Place(st, img.Bounds())
		return err
	})
	return placed, err
}

// MoveSticker moves a placed sticker, snapping to the canvas center lines.
func (o *Orchestrator) MoveSticker(id, elementID string, x, y float64) (design.Element, design.Guides, error) {
	var (
		moved  design.Element
		guides design.Guides
	)
	_, err := o.mutate(id, func(s *session) error {
		if err := s.expect(StepDesign); err != nil {
			return err
		}
		var err error
		moved, guides, err = s.surface.Move(elementID, x, y)
		return err
	})
	return moved, guides, err
}

func (o *Orchestrator) DeleteSticker(id, elementID string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if err := s.expect(StepDesign); err != nil {
			return err
		}
		return s.surface.Delete(elementID)
	})
}

func (o *Orchestrator) ClearDesign(id string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if err := s.expect(StepDesign); err != nil {
			return err
		}
		s.surface.Clear()
		return nil
	})
}

// FinalizeDesign saves the design document, renders the design raster at the
// export multiplier and moves to capture.
func (o *Orchestrator) FinalizeDesign(id string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if err := s.expect(StepDesign); err != nil {
			return err
		}
		doc := s.surface.Document()
		raster, err := design.Render(o.layout, doc, s.garment.Image, o.assets, o.catalog.Canvas.ExportMultiplier)
		if err != nil {
			return err
		}
		s.doc = doc
		s.raster = raster
		s.step = StepCapture
		return nil
	})
}

// Back steps back: design to garment selection (dropping the saved design),
// or capture to design reopening the saved document.
func (o *Orchestrator) Back(id string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		switch {
		case s.step == StepDesign:
			s.doc = nil
			s.raster = ""
			s.tryOnGarment = ""
			s.surface = nil
			s.step = StepPickGarment
		case s.step == StepCapture && s.flow == domain.FlowWardrobe:
			s.countdown.Stop()
			s.countdownLeft = 0
			s.surface = design.NewSurface(o.layout, s.garment.Image, s.doc)
			s.step = StepDesign
		default:
			return s.expect(StepDesign)
		}
		return nil
	})
}

// StartCountdown starts the shutter countdown. Subscribers receive a
// countdown event per tick and a shutter event when it runs out.
func (o *Orchestrator) StartCountdown(id string, seconds int) (Snapshot, error) {
	if seconds < 0 {
		return Snapshot{}, fmt.Errorf("%w: negative countdown", domain.ErrInvalidInput)
	}
	s, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	if err := s.expect(StepCapture); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if s.countdown.Running() {
		s.mu.Unlock()
		return Snapshot{}, domain.ErrBusy
	}
	scope, epoch := s.scope, s.epoch
	s.mu.Unlock()

	onTick := func(remaining int) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.step != StepCapture {
			return
		}
		s.countdownLeft = remaining
		s.updated = o.now()
		o.publish(s, EventCountdown)
	}
	onFire := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.step != StepCapture {
			return
		}
		s.countdownLeft = 0
		s.updated = o.now()
		o.publish(s, EventShutter)
	}
	if err := s.countdown.Start(scope, seconds, onTick, onFire); err != nil {
		return Snapshot{}, err
	}
	return o.Get(id)
}

// CancelCountdown stops a running countdown.
func (o *Orchestrator) CancelCountdown(id string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if err := s.expect(StepCapture); err != nil {
			return err
		}
		s.countdown.Stop()
		s.countdownLeft = 0
		return nil
	})
}

// Retry returns from a failed result to capture. The rest of the session is
// kept.
func (o *Orchestrator) Retry(id string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if s.step != StepResult || s.phase != PhaseFailure {
			return fmt.Errorf("%w: retry needs a failed result", domain.ErrInvalidTransition)
		}
		s.failure = nil
		s.phase = PhaseNone
		s.step = StepCapture
		return nil
	})
}

// NewSession resets a finished session to its first step under a new
// identity. Background tasks of the old identity are cancelled; history and
// usage are untouched.
func (o *Orchestrator) NewSession(id string) (Snapshot, error) {
	return o.mutate(id, func(s *session) error {
		if s.step != StepResult || s.phase == PhaseLoading {
			return fmt.Errorf("%w: new session needs a finished result", domain.ErrInvalidTransition)
		}
		s.close()
		s.scope, s.cancel = context.WithCancel(o.base)
		s.epoch++

		s.step = o.firstStep(s.flow)
		s.phase = PhaseNone
		if s.flow == domain.FlowWardrobe {
			s.garment = o.catalog.DefaultGarment()
		}
		s.surface = nil
		s.doc = nil
		s.raster = ""
		s.tryOnGarment = ""
		s.photo = ""
		s.result = nil
		s.failure = nil
		s.share = ""
		s.status = 0
		s.countdownLeft = 0
		return nil
	})
}

// Authorize refreshes the gateway credentials. On success the failure is
// cleared and the session returns to capture.
func (o *Orchestrator) Authorize(ctx context.Context, id string) (Snapshot, error) {
	s, err := o.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	allowed := s.step == StepResult && s.phase == PhaseFailure && s.failure != nil && s.failure.Kind == FailureAuth
	s.mu.Unlock()
	if !allowed {
		return Snapshot{}, fmt.Errorf("%w: nothing to authorize", domain.ErrInvalidTransition)
	}

	current := o.auth.Load()
	fresh, err := current.Refresh(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Str("session_id", id).Msg("authorization failed")
		return Snapshot{}, errors.Join(domain.ErrUnauthorized, err)
	}
	o.auth.CompareAndSwap(current, &fresh)
	o.logger.Info().Str("session_id", id).Time("expiry", fresh.Expiry()).Msg("authorization refreshed")

	return o.mutate(id, func(s *session) error {
		if s.step != StepResult || s.phase != PhaseFailure {
			return fmt.Errorf("%w: session moved on", domain.ErrInvalidTransition)
		}
		s.failure = nil
		s.phase = PhaseNone
		s.step = StepCapture
		return nil
	})
}
