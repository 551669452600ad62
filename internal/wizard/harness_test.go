package wizard

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vtokiosk/internal/analytics"
	"vtokiosk/internal/backup"
	"vtokiosk/internal/catalog"
	"vtokiosk/internal/domain"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/imaging"
	"vtokiosk/internal/promptcfg"
	"vtokiosk/internal/store"
)

const testCatalog = `
canvas:
  width: 50
  height: 60
  garment_width_cm: 4
  garment_px_per_cm: 10
  sticker_px_per_cm: 1
  sticker_default_width: 10
  snap_range: 2
  export_multiplier: 2
garments:
  - id: tee
    name: Tee
    image: shirts/tee.png
  - id: polo
    name: Polo
    image: shirts/polo.png
alternates:
  long_sleeve: shirts/long.png
  standard: shirts/standard.png
frame:
  image: frames/frame.png
stickers:
  - id: star
    image: stickers/star.png
    width_cm: 10
    height_cm: 10
`

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// frameImage is opaque on a 2px border and transparent inside.
func frameImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < 2 || y < 2 || x >= w-2 || y >= h-2 {
				img.Set(x, y, color.RGBA{A: 255})
			}
		}
	}
	return img
}

func pngURI(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return imaging.FormatDataURI("image/png", buf.Bytes())
}

type mapSource map[string]image.Image

func (m mapSource) Image(ref string) (image.Image, error) {
	img, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("%w: asset %q", domain.ErrNotFound, ref)
	}
	return img, nil
}

func testAssets() mapSource {
	return mapSource{
		"shirts/tee.png":      solid(40, 50, color.RGBA{R: 255, A: 255}),
		"shirts/polo.png":     solid(40, 50, color.RGBA{R: 128, A: 255}),
		"shirts/long.png":     solid(40, 50, color.RGBA{G: 255, A: 255}),
		"shirts/standard.png": solid(40, 50, color.RGBA{B: 255, A: 255}),
		"stickers/star.png":   solid(10, 10, color.RGBA{R: 255, G: 255, A: 255}),
		"frames/frame.png":    frameImage(30, 40),
	}
}

type fakeGateway struct {
	mu          sync.Mutex
	flags       gateway.AttireFlags
	tryOnResult string
	tryOnErr    error
	consultRes  gateway.Consultation
	consultErr  error
	// block, when set, holds every generation call until it is closed or the
	// call's context ends.
	block chan struct{}

	attireCalls int
	garments    []string
	consults    []gateway.ConsultRequest
}

func (g *fakeGateway) wait(ctx context.Context) error {
	if g.block == nil {
		return nil
	}
	select {
	case <-g.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) AnalyzeAttire(ctx context.Context, photo string) gateway.AttireFlags {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attireCalls++
	return g.flags
}

func (g *fakeGateway) TryOn(ctx context.Context, person, garment string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.garments = append(g.garments, garment)
	return g.tryOnResult, g.tryOnErr
}

func (g *fakeGateway) ConsultAndSynthesize(ctx context.Context, photo string, cr gateway.ConsultRequest) (gateway.Consultation, error) {
	if err := g.wait(ctx); err != nil {
		return gateway.Consultation{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consults = append(g.consults, cr)
	if g.consultErr != nil {
		return gateway.Consultation{}, g.consultErr
	}
	res := g.consultRes
	if res.Degraded {
		res.Image = photo
	}
	return res, nil
}

func (g *fakeGateway) lastGarment() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.garments) == 0 {
		return ""
	}
	return g.garments[len(g.garments)-1]
}

type fakeUploader struct {
	mu      sync.Mutex
	up      *backup.Upload
	release chan struct{}
	names   []string
}

func (f *fakeUploader) Upload(ctx context.Context, dataURI, filename string) *backup.Upload {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, filename)
	return f.up
}

func (f *fakeUploader) Links(id string) backup.Links { return backup.DriveLinks(id) }

type eventLog struct {
	mu     sync.Mutex
	events []Event
	closed []string
}

func (l *eventLog) Publish(topic, event string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, v.(Event))
}

func (l *eventLog) CloseTopic(topic string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, topic)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func (l *eventLog) ofType(typ string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type memRecorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *memRecorder) Record(ctx context.Context, ev analytics.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecorder) Summarize(context.Context, time.Time) ([]analytics.Summary, error) {
	return nil, nil
}

type harness struct {
	orch     *Orchestrator
	gw       *fakeGateway
	assets   mapSource
	catalog  *catalog.Catalog
	kv       store.KV
	history  *store.History
	usage    *store.Usage
	prompts  *promptcfg.Manager
	events   *eventLog
	recorder *memRecorder
	uploader *fakeUploader
	result   string
}

func newHarness(t *testing.T, tweak ...func(*Options)) *harness {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	h := &harness{
		gw:       &fakeGateway{},
		assets:   testAssets(),
		catalog:  cat,
		kv:       store.NewMemory(),
		events:   &eventLog{},
		recorder: &memRecorder{},
		uploader: &fakeUploader{up: &backup.Upload{ID: "drive-1", URL: "https://drive.google.com/file/d/drive-1/view"}},
	}
	h.result = pngURI(t, solid(20, 30, color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	h.gw.tryOnResult = h.result
	h.history = store.NewHistory(h.kv, nil)
	h.usage = store.NewUsage(h.kv)
	h.prompts, err = promptcfg.NewManager(h.kv, "", nil)
	require.NoError(t, err)

	opts := Options{
		Catalog:           cat,
		Assets:            h.assets,
		Gateway:           h.gw,
		Prompts:           h.prompts,
		History:           h.history,
		Usage:             h.usage,
		Backup:            h.uploader,
		Recorder:          h.recorder,
		Events:            h.events,
		FrameContentScale: 1,
		StatusInterval:    time.Hour,
		CountdownInterval: 5 * time.Millisecond,
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	h.orch, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) frame(t *testing.T) string {
	return pngURI(t, solid(64, 48, color.RGBA{R: 90, G: 90, B: 90, A: 255}))
}

// finished waits for the pipelines and returns the settled snapshot.
func (h *harness) finished(t *testing.T, id string) Snapshot {
	t.Helper()
	h.orch.Wait()
	snap, err := h.orch.Get(id)
	require.NoError(t, err)
	require.NotEqual(t, PhaseLoading, snap.Phase)
	return snap
}
