package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"errors"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/samcharles93/glimpse/internal/logger"
	"github.com/samcharles93/glimpse/internal/metrics"
	"github.com/samcharles93/glimpse/internal/model/linear"
	"github.com/samcharles93/glimpse/internal/tensor"
)

func gray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func newTestEngine(t *testing.T, m *scriptedModel, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = logger.Discard()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(m, byteTokenizer{}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestAsk(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{script: ids(" gray ")}
	e := newTestEngine(t, m, nil)
	var frags []string
	res, err := e.Ask(context.Background(), gray(800, 600), "Describe this image.", func(s string) { frags = append(frags, s) })
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "gray" {
		t.Fatalf("answer = %q", res.Answer)
	}
	if strings.TrimSpace(strings.Join(frags, "")) != res.Answer {
		t.Fatalf("fragments %q do not match answer", frags)
	}
	if m.encoded != 1 {
		t.Fatalf("vision encoder called %d times", m.encoded)
	}
}

func TestAskRejectsInvalidInputBeforeCompute(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{script: ids("x")}
	e := newTestEngine(t, m, nil)
	ctx := context.Background()

	if _, err := e.Ask(ctx, nil, "q", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil image: %v", err)
	}
	if _, err := e.Ask(ctx, gray(4, 4), "   ", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank question: %v", err)
	}
	_, err := e.AskRaw(ctx, 10, 10, 4, make([]byte, 399), "q", nil)
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, tensor.ErrShape) {
		t.Fatalf("short buffer: %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StagePreprocess {
		t.Fatalf("stage = %#v", se)
	}
	if _, err := e.Ask(ctx, image.NewGray(image.Rect(0, 0, 0, 0)), "q", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty image: %v", err)
	}
	if m.encoded != 0 || m.calls != 0 {
		t.Fatalf("model touched: encoded=%d calls=%d", m.encoded, m.calls)
	}
}

func TestAskRaw(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &scriptedModel{script: ids("ok")}, nil)
	buf := make([]byte, 20*10*4)
	res, err := e.AskRaw(context.Background(), 20, 10, 4, buf, "q", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "ok" {
		t.Fatalf("answer = %q", res.Answer)
	}
}

func TestAskSequentialCallsAreIndependent(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{repeat: 'y'}
	e := newTestEngine(t, m, func(c *Config) { c.MaxNewTokens = 3 })
	img := gray(64, 64)
	if _, err := e.Ask(context.Background(), img, "first?", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Ask(context.Background(), img, "second?", nil); err != nil {
		t.Fatal(err)
	}
	if len(m.primed) != 2 {
		t.Fatalf("primed %d times", len(m.primed))
	}
	want := append([]int{fakeEOS}, ids(FormatPrompt("second?"))...)
	if !slices.Equal(m.primed[1], want) {
		t.Fatalf("second priming input leaked state: %v", m.primed[1])
	}
	last := m.decoded[len(m.decoded)-1]
	if wantLast := append(ids(FormatPrompt("second?")), 'y', 'y'); !slices.Equal(last, wantLast) {
		t.Fatalf("second call decode ids = %v", last)
	}
}

func TestAskRejectsConcurrentCall(t *testing.T) {
	t.Parallel()
	reg := metrics.New()
	m := &scriptedModel{script: ids("a"), entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(t, m, func(c *Config) {
		c.RejectConcurrent = true
		c.Metrics = reg
	})

	errc := make(chan error, 1)
	go func() {
		_, err := e.Ask(context.Background(), gray(8, 8), "q", nil)
		errc <- err
	}()
	<-m.entered
	if _, err := e.Ask(context.Background(), gray(8, 8), "q", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(m.release)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if want := `glimpse_generations_total{status="busy"} 1`; !strings.Contains(scrape(reg), want) {
		t.Fatalf("metrics missing %q", want)
	}
}

func TestAskQueuesConcurrentCall(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{script: ids("a"), entered: make(chan struct{}, 2), release: make(chan struct{})}
	e := newTestEngine(t, m, nil)

	errc := make(chan error, 2)
	ask := func() {
		_, err := e.Ask(context.Background(), gray(8, 8), "q", nil)
		errc <- err
	}
	go ask()
	<-m.entered
	go ask()

	select {
	case <-m.entered:
		t.Fatal("second call entered the model while the first held it")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Ask(ctx, gray(8, 8), "q", nil); !errors.Is(err, ErrBusy) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled wait, got %v", err)
	}

	close(m.release)
	for range 2 {
		if err := <-errc; err != nil {
			t.Fatal(err)
		}
	}
	if len(m.primed) != 2 {
		t.Fatalf("primed %d times", len(m.primed))
	}
}

func TestClose(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{}
	e := newTestEngine(t, m, nil)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if m.closed != 1 {
		t.Fatalf("model closed %d times", m.closed)
	}
	if _, err := e.Ask(context.Background(), gray(8, 8), "q", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAskRecordsMetrics(t *testing.T) {
	t.Parallel()
	reg := metrics.New()
	e := newTestEngine(t, &scriptedModel{script: ids("abc")}, func(c *Config) { c.Metrics = reg })
	if _, err := e.Ask(context.Background(), gray(8, 8), "q", nil); err != nil {
		t.Fatal(err)
	}
	body := scrape(reg)
	for _, want := range []string{
		"glimpse_generated_tokens_total 3",
		`glimpse_generation_stops_total{reason="eos"} 1`,
		`glimpse_generations_total{status="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func scrape(m *metrics.Metrics) string {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func scaffoldDir(t *testing.T, opts linear.ScaffoldOptions) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := linear.Scaffold(dir, opts); err != nil {
		t.Fatal(err)
	}
	return dir
}

func loadScaffold(t *testing.T, dir string) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ModelDir = dir
	cfg.Logger = logger.Discard()
	e, err := Load(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestLoadAndAskGrayScreenshot(t *testing.T) {
	t.Parallel()
	e := loadScaffold(t, scaffoldDir(t, linear.ScaffoldOptions{Seed: 7}))
	info := e.Info()
	if info.Backend != linear.Name || info.Special.EOS != 256 || info.Special.Fallback {
		t.Fatalf("info = %+v", info)
	}

	var first string
	for i := range 2 {
		var sb strings.Builder
		res, err := e.Ask(context.Background(), gray(800, 600), "Describe this image.", func(s string) { sb.WriteString(s) })
		if err != nil {
			t.Fatal(err)
		}
		if res.Stats.TokensGenerated > DefaultMaxNewTokens {
			t.Fatalf("generated %d tokens", res.Stats.TokensGenerated)
		}
		if strings.TrimSpace(sb.String()) != res.Answer {
			t.Fatalf("streamed %q, answer %q", sb.String(), res.Answer)
		}
		if i == 0 {
			first = res.Answer
		} else if res.Answer != first {
			t.Fatalf("answers differ: %q vs %q", first, res.Answer)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Logger = logger.Discard()

	cfg.ModelDir = t.TempDir()
	if _, err := Load(context.Background(), cfg); !errors.Is(err, ErrInit) {
		t.Fatalf("empty dir: %v", err)
	}

	cfg.ModelDir = scaffoldDir(t, linear.ScaffoldOptions{ImageSize: 28})
	if _, err := Load(context.Background(), cfg); !errors.Is(err, ErrInit) {
		t.Fatalf("wrong image size: %v", err)
	}

	dir := scaffoldDir(t, linear.ScaffoldOptions{})
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.ModelDir = dir
	if _, err := Load(context.Background(), cfg); !errors.Is(err, ErrInit) {
		t.Fatalf("malformed config: %v", err)
	}

	cfg.ModelDir = scaffoldDir(t, linear.ScaffoldOptions{})
	cfg.EOSToken = "<|missing|>"
	cfg.FallbackEOSID = -1
	if _, err := Load(context.Background(), cfg); !errors.Is(err, ErrInit) {
		t.Fatalf("missing eos without fallback: %v", err)
	}

	cfg = DefaultConfig()
	cfg.Logger = logger.Discard()
	cfg.ModelDir = scaffoldDir(t, linear.ScaffoldOptions{})
	cfg.Device = "cuda"
	if _, err := Load(context.Background(), cfg); !errors.Is(err, ErrInit) {
		t.Fatalf("cuda device: %v", err)
	}

	cfg.Device = ""
	cfg.Backend = "nope"
	if _, err := Load(context.Background(), cfg); !errors.Is(err, ErrInit) {
		t.Fatalf("unknown backend: %v", err)
	}
}
