package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"vtokiosk/internal/analytics"
	"vtokiosk/internal/auth"
	"vtokiosk/internal/capture"
	"vtokiosk/internal/design"
	"vtokiosk/internal/domain"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/imaging"
)

// designed drives a wardrobe session to capture with one sticker at (10,12).
func designed(t *testing.T, h *harness) Snapshot {
	t.Helper()
	snap, err := h.orch.Start(domain.FlowWardrobe, "en")
	require.NoError(t, err)
	require.Equal(t, StepPickGarment, snap.Step)

	_, err = h.orch.SelectGarment(snap.ID, "tee")
	require.NoError(t, err)
	_, err = h.orch.EnterDesign(snap.ID)
	require.NoError(t, err)
	el, err := h.orch.PlaceSticker(snap.ID, "star")
	require.NoError(t, err)
	_, _, err = h.orch.MoveSticker(snap.ID, el.ID, 10, 12)
	require.NoError(t, err)
	snap, err = h.orch.FinalizeDesign(snap.ID)
	require.NoError(t, err)
	require.Equal(t, StepCapture, snap.Step)
	return snap
}

func (h *harness) render(t *testing.T, doc *design.Document, base string) string {
	t.Helper()
	out, err := design.Render(design.LayoutFromCatalog(h.catalog), doc, base, h.assets, 2)
	require.NoError(t, err)
	return out
}

func TestWardrobeEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap := designed(t, h)

	require.NotNil(t, snap.DesignDocument)
	require.Len(t, snap.DesignDocument.Objects, 1)
	assert.Equal(t, 10.0, snap.DesignDocument.Objects[0].X)
	assert.Equal(t, 12.0, snap.DesignDocument.Objects[0].Y)
	expectedRaster := h.render(t, snap.DesignDocument, "shirts/tee.png")
	assert.Equal(t, expectedRaster, snap.DesignRaster)

	loading, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	assert.Equal(t, StepResult, loading.Step)
	assert.Equal(t, PhaseLoading, loading.Phase)
	assert.Equal(t, "Analyzing silhouette...", loading.Status)

	done := h.finished(t, snap.ID)
	require.Equal(t, PhaseSuccess, done.Phase)
	assert.Equal(t, expectedRaster, h.gw.lastGarment())

	framed, err := imaging.FrameDataURI(h.result, h.assets["frames/frame.png"], 1)
	require.NoError(t, err)
	require.NotNil(t, done.Result)
	assert.Equal(t, framed, done.Result.Image)

	entries, err := h.history.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, framed, entries[0].Image)
	count, err := h.usage.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, "https://drive.google.com/file/d/drive-1/view", done.ShareURL)
	require.Len(t, h.uploader.names, 1)
	assert.True(t, strings.HasPrefix(h.uploader.names[0], "vto-design-"))

	require.Len(t, h.recorder.events, 1)
	assert.Equal(t, analytics.OutcomeSuccess, h.recorder.events[0].Outcome)
	assert.Equal(t, "wardrobe", h.recorder.events[0].Flow)
}

func TestFramedResultSize(t *testing.T) {
	h := newHarness(t)
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	img, err := imaging.Decode(done.Result.Image)
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
}

func TestAttireFlagsSelectAlternateBase(t *testing.T) {
	cases := []struct {
		name  string
		flags gateway.AttireFlags
		base  string
	}{
		{"muslimah", gateway.AttireFlags{IsMuslimah: true}, "shirts/long.png"},
		{"sleeveless", gateway.AttireFlags{IsSleeveless: true}, "shirts/standard.png"},
		{"both", gateway.AttireFlags{IsMuslimah: true, IsSleeveless: true}, "shirts/long.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.gw.flags = tc.flags
			snap := designed(t, h)
			_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
			require.NoError(t, err)
			done := h.finished(t, snap.ID)

			require.Equal(t, PhaseSuccess, done.Phase)
			want := h.render(t, snap.DesignDocument, tc.base)
			assert.Equal(t, want, h.gw.lastGarment())
			assert.NotEqual(t, snap.DesignRaster, h.gw.lastGarment())
			assert.Equal(t, want, done.TryOnGarment)
			assert.Equal(t, snap.DesignRaster, done.DesignRaster)
		})
	}
}

func TestRetryAfterRecompositionUsesOriginalRaster(t *testing.T) {
	h := newHarness(t)
	h.gw.flags = gateway.AttireFlags{IsMuslimah: true}
	h.gw.tryOnErr = &gateway.APIError{Status: 500, Message: "backend unavailable"}
	snap := designed(t, h)

	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	failed := h.finished(t, snap.ID)
	require.Equal(t, PhaseFailure, failed.Phase)
	longSleeve := h.render(t, snap.DesignDocument, "shirts/long.png")
	assert.Equal(t, longSleeve, h.gw.lastGarment())
	assert.Equal(t, snap.DesignRaster, failed.DesignRaster)

	_, err = h.orch.Retry(snap.ID)
	require.NoError(t, err)
	h.gw.mu.Lock()
	h.gw.flags = gateway.AttireFlags{}
	h.gw.tryOnErr = nil
	h.gw.mu.Unlock()

	_, err = h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)
	require.Equal(t, PhaseSuccess, done.Phase)
	assert.Equal(t, snap.DesignRaster, h.gw.lastGarment())
	assert.Equal(t, snap.DesignRaster, done.TryOnGarment)
	assert.Equal(t, snap.DesignRaster, done.DesignRaster)
}

func TestAttireDefaultsKeepOriginalRaster(t *testing.T) {
	h := newHarness(t)
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	assert.Equal(t, PhaseSuccess, done.Phase)
	assert.Equal(t, 1, h.gw.attireCalls)
	assert.Equal(t, snap.DesignRaster, h.gw.lastGarment())
}

func TestFlagsWithoutStickersKeepRaster(t *testing.T) {
	h := newHarness(t)
	h.gw.flags = gateway.AttireFlags{IsMuslimah: true}
	snap, err := h.orch.Start(domain.FlowWardrobe, "")
	require.NoError(t, err)
	_, err = h.orch.EnterDesign(snap.ID)
	require.NoError(t, err)
	snap, err = h.orch.FinalizeDesign(snap.ID)
	require.NoError(t, err)
	assert.True(t, snap.DesignDocument.Empty())

	_, err = h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	h.finished(t, snap.ID)
	assert.Equal(t, snap.DesignRaster, h.gw.lastGarment())
}

func TestTryOnFailureIsVerbatim(t *testing.T) {
	h := newHarness(t)
	h.gw.tryOnErr = &gateway.APIError{Status: 429, Message: "Quota exceeded for aiplatform.googleapis.com"}
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	require.Equal(t, PhaseFailure, done.Phase)
	require.NotNil(t, done.Failure)
	assert.Equal(t, "Quota exceeded for aiplatform.googleapis.com", done.Failure.Message)
	assert.Equal(t, FailureGeneration, done.Failure.Kind)
	assert.Equal(t, AffordanceRetry, done.Failure.Affordance)
	assert.Nil(t, done.Result)
	assert.Empty(t, done.ShareURL)

	entries, _ := h.history.All(context.Background())
	assert.Empty(t, entries)
	count, _ := h.usage.Get(context.Background())
	assert.Zero(t, count)
	assert.Empty(t, h.uploader.names)
	assert.Equal(t, analytics.OutcomeFailure, h.recorder.events[0].Outcome)
	assert.Equal(t, "generation", h.recorder.events[0].FailureKind)

	retried, err := h.orch.Retry(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StepCapture, retried.Step)
	assert.Nil(t, retried.Failure)
	assert.Equal(t, done.Photo, retried.Photo)
	assert.Equal(t, snap.DesignRaster, retried.DesignRaster)
	assert.Equal(t, snap.DesignDocument, retried.DesignDocument)
}

func TestAuthFailureAndAuthorize(t *testing.T) {
	var calls int
	src := func(ctx context.Context) (oauth2.TokenSource, error) {
		calls++
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fresh-token", Expiry: time.Now().Add(time.Hour)}), nil
	}
	h := newHarness(t, func(o *Options) { o.Auth = auth.New(src) })
	h.gw.tryOnErr = fmt.Errorf("vto: %w", gateway.ErrUnauthenticated)

	snap := designed(t, h)
	_, err := h.orch.Authorize(context.Background(), snap.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)
	require.Equal(t, PhaseFailure, done.Phase)
	assert.Equal(t, FailureAuth, done.Failure.Kind)
	assert.Equal(t, AffordanceReauthorize, done.Failure.Affordance)

	authorized, err := h.orch.Authorize(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StepCapture, authorized.Step)
	assert.Nil(t, authorized.Failure)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "fresh-token", h.orch.AuthSession().AccessToken())
}

func TestAuthorizeFailureKeepsSession(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Auth = auth.Static("stale") })
	h.gw.tryOnErr = gateway.ErrUnauthenticated
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	h.finished(t, snap.ID)

	_, err = h.orch.Authorize(context.Background(), snap.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrNoRefresher)
	after, err := h.orch.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailure, after.Phase)
	assert.Equal(t, "stale", h.orch.AuthSession().AccessToken())
}

func TestConsultFlows(t *testing.T) {
	cases := []struct {
		flow      domain.Flow
		noteField string
		width     int
		prefix    string
	}{
		{domain.FlowGrooming, "barber_note", 1280, "barber-collage-"},
		{domain.FlowGlam, "mua_note", 1920, "glam-collage-"},
	}
	for _, tc := range cases {
		t.Run(string(tc.flow), func(t *testing.T) {
			h := newHarness(t)
			h.gw.consultRes = gateway.Consultation{Image: h.result, Note: "Textured crop"}
			snap, err := h.orch.Start(tc.flow, "ms-MY")
			require.NoError(t, err)
			require.Equal(t, StepCapture, snap.Step)
			assert.Equal(t, "ms", snap.Locale)

			loading, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
			require.NoError(t, err)
			assert.Equal(t, StatusMessages(tc.flow, "ms")[0], loading.Status)

			done := h.finished(t, snap.ID)
			require.Equal(t, PhaseSuccess, done.Phase)
			assert.Equal(t, h.result, done.Result.Image)
			assert.Equal(t, "Textured crop", done.Result.Note)
			assert.False(t, done.Result.Degraded)

			require.Len(t, h.gw.consults, 1)
			assert.Equal(t, tc.noteField, h.gw.consults[0].NoteField)
			assert.Equal(t, tc.width, h.gw.consults[0].Width)
			assert.Empty(t, h.gw.garments)

			entries, _ := h.history.All(context.Background())
			require.Len(t, entries, 1)
			assert.Equal(t, h.result, entries[0].Image)
			count, _ := h.usage.Get(context.Background())
			assert.Equal(t, 1, count)
			assert.True(t, strings.HasPrefix(h.uploader.names[0], tc.prefix))
		})
	}
}

func TestPromptOverrideResolvedPerOperation(t *testing.T) {
	h := newHarness(t)
	h.gw.consultRes = gateway.Consultation{Image: h.result}
	ctx := context.Background()
	override := `Return JSON with "edit_prompt" and "barber_note" only.`
	_, err := h.prompts.Set(ctx, override)
	require.NoError(t, err)

	groom, err := h.orch.Start(domain.FlowGrooming, "")
	require.NoError(t, err)
	_, err = h.orch.Capture(groom.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	h.finished(t, groom.ID)

	glam, err := h.orch.Start(domain.FlowGlam, "")
	require.NoError(t, err)
	_, err = h.orch.Capture(glam.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	h.finished(t, glam.ID)

	require.Len(t, h.gw.consults, 2)
	assert.Equal(t, override, h.gw.consults[0].Prompt)
	assert.NotEqual(t, override, h.gw.consults[1].Prompt)
}

func TestDegradedConsultationSkipsUsage(t *testing.T) {
	h := newHarness(t)
	h.gw.consultRes = gateway.Consultation{Note: "Consultation mode", Degraded: true}
	snap, err := h.orch.Start(domain.FlowGrooming, "")
	require.NoError(t, err)
	loading, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	require.Equal(t, PhaseSuccess, done.Phase)
	assert.True(t, done.Result.Degraded)
	assert.Equal(t, loading.Photo, done.Result.Image)
	entries, _ := h.history.All(context.Background())
	assert.Len(t, entries, 1)
	count, _ := h.usage.Get(context.Background())
	assert.Zero(t, count)
	assert.Equal(t, analytics.OutcomeDegraded, h.recorder.events[0].Outcome)
}

func TestMissingConfigIsFinal(t *testing.T) {
	h := newHarness(t)
	h.gw.consultErr = fmt.Errorf("%w: fal client", gateway.ErrMissingConfig)
	snap, err := h.orch.Start(domain.FlowGlam, "")
	require.NoError(t, err)
	_, err = h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	require.Equal(t, PhaseFailure, done.Phase)
	assert.Equal(t, FailureConfig, done.Failure.Kind)
	assert.Equal(t, AffordanceNone, done.Failure.Affordance)
}

func TestBackupFailureLeavesResult(t *testing.T) {
	h := newHarness(t)
	h.uploader.up = nil
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	assert.Equal(t, PhaseSuccess, done.Phase)
	assert.Empty(t, done.ShareURL)
	require.NotNil(t, done.Result)
	assert.Empty(t, h.events.ofType(EventShare))
}

func TestStaleBackupDoesNotTouchNewSession(t *testing.T) {
	h := newHarness(t)
	h.uploader.release = make(chan struct{})
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := h.orch.Get(snap.ID)
		return err == nil && s.Phase == PhaseSuccess
	}, 2*time.Second, 5*time.Millisecond)

	fresh, err := h.orch.NewSession(snap.ID)
	require.NoError(t, err)
	close(h.uploader.release)
	h.orch.Wait()

	after, err := h.orch.Get(snap.ID)
	require.NoError(t, err)
	assert.Empty(t, after.ShareURL)
	assert.Equal(t, fresh.Epoch, after.Epoch)
	assert.Equal(t, StepPickGarment, after.Step)
}

func TestNewSessionResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)
	require.Equal(t, PhaseSuccess, done.Phase)
	entriesBefore, _ := h.history.All(ctx)
	usageBefore, _ := h.usage.Get(ctx)

	_, err = h.orch.SelectGarment(snap.ID, "polo")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	reset, err := h.orch.NewSession(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPickGarment, reset.Step)
	assert.Equal(t, PhaseNone, reset.Phase)
	assert.Equal(t, "tee", reset.Garment)
	assert.Nil(t, reset.DesignDocument)
	assert.Empty(t, reset.DesignRaster)
	assert.Empty(t, reset.Photo)
	assert.Nil(t, reset.Result)
	assert.Nil(t, reset.Failure)
	assert.Empty(t, reset.ShareURL)
	assert.Greater(t, reset.Epoch, done.Epoch)

	entriesAfter, _ := h.history.All(ctx)
	usageAfter, _ := h.usage.Get(ctx)
	assert.Equal(t, entriesBefore, entriesAfter)
	assert.Equal(t, usageBefore, usageAfter)
}

func TestNewSessionWhileLoadingIsRejected(t *testing.T) {
	h := newHarness(t)
	h.gw.block = make(chan struct{})
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)

	_, err = h.orch.NewSession(snap.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.orch.Retry(snap.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	close(h.gw.block)
	done := h.finished(t, snap.ID)
	assert.Equal(t, PhaseSuccess, done.Phase)
}

func TestExitCancelsPipeline(t *testing.T) {
	h := newHarness(t)
	h.gw.block = make(chan struct{})
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)

	require.NoError(t, h.orch.Exit(snap.ID))
	h.orch.Wait()

	_, err = h.orch.Get(snap.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, h.orch.Exit(snap.ID), domain.ErrNotFound)
	entries, _ := h.history.All(context.Background())
	assert.Empty(t, entries)
	assert.Empty(t, h.recorder.events)
	assert.Equal(t, []string{snap.ID}, h.events.closed)
}

func TestDesignTransitions(t *testing.T) {
	h := newHarness(t)
	snap, err := h.orch.Start(domain.FlowWardrobe, "")
	require.NoError(t, err)
	id := snap.ID

	_, err = h.orch.PlaceSticker(id, "star")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.orch.SelectGarment(id, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.orch.EnterDesign(id)
	require.NoError(t, err)
	_, err = h.orch.PlaceSticker(id, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	el, err := h.orch.PlaceSticker(id, "star")
	require.NoError(t, err)
	assert.Equal(t, 25.0, el.X)
	assert.Equal(t, 30.0, el.Y)
	assert.Equal(t, 10.0, el.Width)

	moved, guides, err := h.orch.MoveSticker(id, el.ID, 26, 40)
	require.NoError(t, err)
	assert.True(t, guides.Vertical)
	assert.False(t, guides.Horizontal)
	assert.Equal(t, 25.0, moved.X)
	assert.Equal(t, 40.0, moved.Y)

	second, err := h.orch.PlaceSticker(id, "star")
	require.NoError(t, err)
	snap, err = h.orch.DeleteSticker(id, second.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Elements, 1)

	snap, err = h.orch.FinalizeDesign(id)
	require.NoError(t, err)
	require.Len(t, snap.DesignDocument.Objects, 1)

	back, err := h.orch.Back(id)
	require.NoError(t, err)
	assert.Equal(t, StepDesign, back.Step)
	assert.Equal(t, snap.DesignDocument.Objects, back.Elements)

	snap, err = h.orch.ClearDesign(id)
	require.NoError(t, err)
	assert.Empty(t, snap.Elements)

	back, err = h.orch.Back(id)
	require.NoError(t, err)
	assert.Equal(t, StepPickGarment, back.Step)
	assert.Nil(t, back.DesignDocument)
	assert.Empty(t, back.DesignRaster)

	_, err = h.orch.Back(id)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestEnterDesignClearsSavedDocument(t *testing.T) {
	h := newHarness(t)
	snap := designed(t, h)
	_, err := h.orch.Back(snap.ID)
	require.NoError(t, err)
	_, err = h.orch.Back(snap.ID)
	require.NoError(t, err)
	fresh, err := h.orch.EnterDesign(snap.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh.Elements)
	assert.Nil(t, fresh.DesignDocument)
}

func TestConsultFlowHasNoDesignSteps(t *testing.T) {
	h := newHarness(t)
	snap, err := h.orch.Start(domain.FlowGlam, "")
	require.NoError(t, err)
	_, err = h.orch.EnterDesign(snap.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.orch.Back(snap.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.orch.Start(domain.Flow("ar"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.orch.Capture(snap.ID, "not an image", capture.Crop{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCountdown(t *testing.T) {
	h := newHarness(t)
	snap, err := h.orch.Start(domain.FlowGrooming, "")
	require.NoError(t, err)

	_, err = h.orch.StartCountdown(snap.ID, 3)
	require.NoError(t, err)
	_, err = h.orch.StartCountdown(snap.ID, 3)
	assert.ErrorIs(t, err, domain.ErrBusy)

	require.Eventually(t, func() bool { return len(h.events.ofType(EventShutter)) == 1 }, 2*time.Second, 5*time.Millisecond)
	var ticks []int
	for _, ev := range h.events.ofType(EventCountdown) {
		ticks = append(ticks, ev.Session.Countdown)
	}
	assert.Equal(t, []int{3, 2, 1}, ticks)

	_, err = h.orch.StartCountdown(snap.ID, 0)
	require.NoError(t, err)
	assert.Len(t, h.events.ofType(EventShutter), 2)
}

func TestCancelCountdown(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CountdownInterval = 50 * time.Millisecond })
	snap, err := h.orch.Start(domain.FlowGrooming, "")
	require.NoError(t, err)
	_, err = h.orch.StartCountdown(snap.ID, 2)
	require.NoError(t, err)
	cancelled, err := h.orch.CancelCountdown(snap.ID)
	require.NoError(t, err)
	assert.Zero(t, cancelled.Countdown)

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, h.events.ofType(EventShutter))
}

func TestStatusRotation(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.StatusInterval = 5 * time.Millisecond })
	h.gw.block = make(chan struct{})
	snap, err := h.orch.Start(domain.FlowGlam, "en")
	require.NoError(t, err)
	_, err = h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.events.ofType(EventStatus)) >= 2 }, 2*time.Second, 5*time.Millisecond)
	statuses := h.events.ofType(EventStatus)
	messages := StatusMessages(domain.FlowGlam, "en")
	assert.Equal(t, messages[1], statuses[0].Session.Status)
	assert.Equal(t, messages[2], statuses[1].Session.Status)

	close(h.gw.block)
	done := h.finished(t, snap.ID)
	assert.Empty(t, done.Status)
}

func TestEventsAreLightweight(t *testing.T) {
	h := newHarness(t)
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	h.finished(t, snap.ID)

	states := h.events.ofType(EventState)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.True(t, last.Session.Light)
	assert.Empty(t, last.Session.Photo)
	assert.Empty(t, last.Session.DesignRaster)
	require.NotNil(t, last.Session.Result)
	assert.Empty(t, last.Session.Result.Image)
	assert.Equal(t, PhaseSuccess, last.Session.Phase)
	assert.Contains(t, h.events.types(), EventShare)
}

func TestFrameFailureKeepsResult(t *testing.T) {
	h := newHarness(t)
	delete(h.assets, "frames/frame.png")
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	require.Equal(t, PhaseSuccess, done.Phase)
	assert.Equal(t, h.result, done.Result.Image)
}

func TestRecompositionFailureFallsBack(t *testing.T) {
	h := newHarness(t)
	h.gw.flags = gateway.AttireFlags{IsSleeveless: true}
	delete(h.assets, "shirts/standard.png")
	snap := designed(t, h)
	_, err := h.orch.Capture(snap.ID, h.frame(t), capture.Crop{})
	require.NoError(t, err)
	done := h.finished(t, snap.ID)

	require.Equal(t, PhaseSuccess, done.Phase)
	assert.Equal(t, snap.DesignRaster, h.gw.lastGarment())
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.SessionTTL = time.Minute })
	idle, err := h.orch.Start(domain.FlowGlam, "")
	require.NoError(t, err)

	now := time.Now()
	h.orch.now = func() time.Time { return now.Add(2 * time.Minute) }
	active, err := h.orch.Start(domain.FlowGlam, "")
	require.NoError(t, err)

	assert.Equal(t, 1, h.orch.Sweep())
	_, err = h.orch.Get(idle.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = h.orch.Get(active.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, h.orch.Sessions())
}

func TestConcurrentSessionsShareHistory(t *testing.T) {
	h := newHarness(t)
	h.gw.consultRes = gateway.Consultation{Image: h.result}
	ids := make([]string, 7)
	for i := range ids {
		snap, err := h.orch.Start(domain.FlowGrooming, "")
		require.NoError(t, err)
		ids[i] = snap.ID
	}
	for _, id := range ids {
		_, err := h.orch.Capture(id, h.frame(t), capture.Crop{})
		require.NoError(t, err)
	}
	h.orch.Wait()

	entries, err := h.history.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	count, err := h.usage.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}
