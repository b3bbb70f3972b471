package firmware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type spyFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     []string
}

func newSpyFetcher() *spyFetcher {
	return &spyFetcher{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
	}
}

func (f *spyFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if body, ok := f.responses[url]; ok {
		return body, nil
	}
	return nil, errors.New("no response configured for " + url)
}

func (f *spyFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *spyFetcher) fetched(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == url {
			return true
		}
	}
	return false
}

func (f *spyFetcher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *spyFetcher) setManifest(t *testing.T, url string, images []Image) {
	t.Helper()
	body, err := json.Marshal(images)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	f.mu.Lock()
	f.responses[url] = body
	f.mu.Unlock()
}

func testImage(manufacturer, imageType int, version uint32) Image {
	return Image{
		ManufacturerCode: manufacturer,
		ImageType:        imageType,
		FileVersion:      version,
		URL:              "https://example.com/fw.ota",
	}
}

func TestFindImage_SourcePriority(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{testImage(9999, 1, 5)})
	fetcher.setManifest(t, "https://two/index.json", []Image{testImage(4098, 100, 12)})
	fetcher.setManifest(t, "https://three/index.json", []Image{testImage(4098, 100, 20)})

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{
			{Name: "one", URL: "https://one/index.json"},
			{Name: "two", URL: "https://two/index.json"},
			{Name: "three", URL: "https://three/index.json"},
		},
		Fetcher: fetcher,
	})

	img, ok := repo.FindImage(context.Background(), 4098, 100, 10)
	if !ok {
		t.Fatal("FindImage() found nothing, want match from second source")
	}
	if img.FileVersion != 12 {
		t.Errorf("FileVersion = %d, want 12 (second source wins)", img.FileVersion)
	}
	if fetcher.fetched("https://three/index.json") {
		t.Error("third source was fetched after the second matched")
	}
}

func TestFindImage_ImageCacheSkipsNetwork(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{testImage(4098, 100, 12)})

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{{Name: "one", URL: "https://one/index.json"}},
		Fetcher: fetcher,
	})

	ctx := context.Background()
	if _, ok := repo.FindImage(ctx, 4098, 100, 10); !ok {
		t.Fatal("initial FindImage() found nothing")
	}

	fetcher.reset()
	img, ok := repo.FindImage(ctx, 4098, 100, 10)
	if !ok || img.FileVersion != 12 {
		t.Fatalf("cached FindImage() = %v, %v", img, ok)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("cached lookup made %d network calls, want 0", fetcher.callCount())
	}
}

func TestFindImage_SourceFailuresSwallowed(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.errs["https://one/index.json"] = errors.New("connection refused")
	fetcher.responses["https://two/index.json"] = []byte("<html>not json</html>")
	fetcher.setManifest(t, "https://three/index.json", []Image{testImage(4098, 100, 12)})

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{
			{Name: "one", URL: "https://one/index.json"},
			{Name: "two", URL: "https://two/index.json"},
			{Name: "three", URL: "https://three/index.json"},
		},
		Fetcher: fetcher,
	})

	img, ok := repo.FindImage(context.Background(), 4098, 100, 10)
	if !ok {
		t.Fatal("FindImage() found nothing, want match from last healthy source")
	}
	if img.FileVersion != 12 {
		t.Errorf("FileVersion = %d, want 12", img.FileVersion)
	}
}

func TestFindImage_NoUpdateAvailable(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{
		testImage(4098, 100, 8),
		testImage(4098, 100, 10),
	})

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{{Name: "one", URL: "https://one/index.json"}},
		Fetcher: fetcher,
	})

	if img, ok := repo.FindImage(context.Background(), 4098, 100, 10); ok {
		t.Errorf("FindImage() = %+v, want no match (device already on 10)", img)
	}
}

func TestFindImage_PicksHighestVersion(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{
		testImage(4098, 100, 11),
		testImage(4098, 100, 14),
		testImage(4098, 100, 12),
	})

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{{Name: "one", URL: "https://one/index.json"}},
		Fetcher: fetcher,
	})

	img, ok := repo.FindImage(context.Background(), 4098, 100, 10)
	if !ok || img.FileVersion != 14 {
		t.Errorf("FindImage() = %v, %v, want version 14", img, ok)
	}
}

func TestFindImage_RestrictionFields(t *testing.T) {
	restricted := testImage(4098, 100, 20)
	restricted.MinFileVersion = 15

	forced := testImage(4097, 50, 3)
	forced.Force = true

	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{restricted, forced})

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{{Name: "one", URL: "https://one/index.json"}},
		Fetcher: fetcher,
	})

	ctx := context.Background()
	if img, ok := repo.FindImage(ctx, 4098, 100, 10); ok {
		t.Errorf("FindImage() = %+v, want no match (below minFileVersion)", img)
	}
	if _, ok := repo.FindImage(ctx, 4098, 100, 16); !ok {
		t.Error("FindImage() found nothing for a version above minFileVersion")
	}

	// A forced image applies even when the device runs a newer version.
	img, ok := repo.FindImage(ctx, 4097, 50, 5)
	if !ok || img.FileVersion != 3 {
		t.Errorf("forced FindImage() = %v, %v, want version 3", img, ok)
	}
}

func TestFindImage_ManifestTTLExpiry(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{testImage(4098, 100, 12)})

	repo := NewRepository(RepositoryOptions{
		Sources:     []Source{{Name: "one", URL: "https://one/index.json"}},
		Fetcher:     fetcher,
		ManifestTTL: time.Hour,
		ImageTTL:    time.Hour,
	})

	current := time.Now()
	repo.now = func() time.Time { return current }

	ctx := context.Background()
	repo.FindImage(ctx, 4098, 100, 10)
	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("initial lookup made %d calls, want 1", got)
	}

	current = current.Add(2 * time.Hour)
	repo.FindImage(ctx, 4098, 100, 10)
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("post-expiry lookup total calls = %d, want 2 (manifest refetched)", got)
	}
}

func TestDownloadImage(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.responses["https://example.com/fw.ota"] = []byte{0x1e, 0xf1, 0xee, 0x0b}

	repo := NewRepository(RepositoryOptions{Fetcher: fetcher})

	img := testImage(4098, 100, 12)
	data, err := repo.DownloadImage(context.Background(), &img)
	if err != nil {
		t.Fatalf("DownloadImage() error = %v", err)
	}
	if len(data) != 4 {
		t.Errorf("payload length = %d, want 4", len(data))
	}
}

func TestDownloadImage_FailureIsFatal(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.errs["https://example.com/fw.ota"] = errors.New("status 404")

	repo := NewRepository(RepositoryOptions{Fetcher: fetcher})

	img := testImage(4098, 100, 12)
	_, err := repo.DownloadImage(context.Background(), &img)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("DownloadImage() error = %v, want ErrDownloadFailed", err)
	}
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetcher called %d times, want 1 (no retries)", got)
	}
}

func TestSupportedManufacturers(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{
		testImage(4098, 100, 12),
		testImage(4098, 101, 3),
		testImage(4117, 1, 7),
	})
	fetcher.errs["https://two/index.json"] = errors.New("connection refused")

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{
			{Name: "one", URL: "https://one/index.json"},
			{Name: "two", URL: "https://two/index.json"},
		},
		Fetcher: fetcher,
	})

	codes := repo.SupportedManufacturers(context.Background())
	want := []int{4098, 4117}
	if len(codes) != len(want) {
		t.Fatalf("SupportedManufacturers() = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes[%d] = %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestClearCacheAndStats(t *testing.T) {
	fetcher := newSpyFetcher()
	fetcher.setManifest(t, "https://one/index.json", []Image{testImage(4098, 100, 12)})

	repo := NewRepository(RepositoryOptions{
		Sources: []Source{{Name: "one", URL: "https://one/index.json"}},
		Fetcher: fetcher,
	})

	ctx := context.Background()
	repo.FindImage(ctx, 4098, 100, 10)

	stats := repo.Stats()
	if stats.CachedImages != 1 {
		t.Errorf("CachedImages = %d, want 1", stats.CachedImages)
	}
	if len(stats.Sources) != 1 || !stats.Sources[0].Cached || stats.Sources[0].Images != 1 {
		t.Errorf("Sources = %+v", stats.Sources)
	}

	repo.ClearCache()

	stats = repo.Stats()
	if stats.CachedImages != 0 || stats.Sources[0].Cached {
		t.Errorf("post-clear stats = %+v", stats)
	}

	fetcher.reset()
	repo.FindImage(ctx, 4098, 100, 10)
	if fetcher.callCount() != 1 {
		t.Errorf("post-clear lookup made %d calls, want 1 (cache emptied)", fetcher.callCount())
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`[{"fileVersion":12}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(body) == 0 {
		t.Error("Fetch() returned empty body")
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("Fetch() of a 404 returned nil error")
	}
}
