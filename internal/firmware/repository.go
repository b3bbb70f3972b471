package firmware

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger is the minimal logging interface the repository needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

const (
	// DefaultManifestTTL bounds how long a fetched manifest index is
	// served from cache before a source is consulted again.
	DefaultManifestTTL = 24 * time.Hour

	// DefaultImageTTL bounds how long a resolved image match is reused
	// without touching any source.
	DefaultImageTTL = 24 * time.Hour
)

type manifestEntry struct {
	images    []Image
	fetchedAt time.Time
}

type imageEntry struct {
	image     Image
	fetchedAt time.Time
}

// Repository resolves firmware images against an ordered list of remote
// manifest sources.
//
// Lookup order is fixed: the image cache first, then each source in
// configuration order until one yields a match. A failing source
// (network or parse) is logged and skipped; it never aborts the search.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Repository struct {
	mu sync.RWMutex

	sources     []Source
	fetcher     Fetcher
	manifestTTL time.Duration
	imageTTL    time.Duration
	logger      Logger

	// manifests caches parsed source indexes, keyed by source name.
	manifests map[string]manifestEntry

	// images caches resolved matches, keyed by "manufacturer-imageType".
	images map[string]imageEntry

	// now is replaceable for tests.
	now func() time.Time
}

// RepositoryOptions configures a Repository.
type RepositoryOptions struct {
	// Sources are consulted in order; the first match wins.
	Sources []Source

	// Fetcher retrieves manifests and image payloads. Required.
	Fetcher Fetcher

	// ManifestTTL and ImageTTL override the 24h cache defaults.
	ManifestTTL time.Duration
	ImageTTL    time.Duration

	// Logger for source failures and cache activity. Optional.
	Logger Logger
}

// NewRepository creates a Repository.
func NewRepository(opts RepositoryOptions) *Repository {
	if opts.ManifestTTL <= 0 {
		opts.ManifestTTL = DefaultManifestTTL
	}
	if opts.ImageTTL <= 0 {
		opts.ImageTTL = DefaultImageTTL
	}

	return &Repository{
		sources:     opts.Sources,
		fetcher:     opts.Fetcher,
		manifestTTL: opts.ManifestTTL,
		imageTTL:    opts.ImageTTL,
		logger:      opts.Logger,
		manifests:   make(map[string]manifestEntry),
		images:      make(map[string]imageEntry),
		now:         time.Now,
	}
}

// FindImage resolves the best firmware image for a device.
//
// The image cache is checked before any network activity. On a miss the
// sources are walked in order; within one source the highest eligible
// FileVersion wins, and the first source with any eligible image ends
// the walk. Later sources are never inspected after a match.
//
// Parameters:
//   - ctx: Cancels in-flight manifest fetches
//   - manufacturerCode: Zigbee OTA manufacturer code
//   - imageType: Zigbee OTA image type
//   - currentVersion: File version currently running on the device
//
// Returns:
//   - *Image: The resolved image, nil when no source has one
//   - bool: Whether an image was found
func (r *Repository) FindImage(ctx context.Context, manufacturerCode, imageType int, currentVersion uint32) (*Image, bool) {
	key := imageKey(manufacturerCode, imageType)

	r.mu.RLock()
	if entry, ok := r.images[key]; ok && r.now().Sub(entry.fetchedAt) < r.imageTTL {
		img := entry.image
		r.mu.RUnlock()
		if eligible(&img, currentVersion) {
			r.logDebug("image cache hit",
				"manufacturer", manufacturerCode,
				"image_type", imageType,
				"file_version", img.FileVersion)
			return &img, true
		}
		return nil, false
	}
	r.mu.RUnlock()

	for _, src := range r.sources {
		images, err := r.manifest(ctx, src)
		if err != nil {
			r.logWarn("firmware source unavailable",
				"source", src.Name,
				"error", err)
			continue
		}

		best := selectImage(images, manufacturerCode, imageType, currentVersion)
		if best == nil {
			continue
		}

		r.mu.Lock()
		r.images[key] = imageEntry{image: *best, fetchedAt: r.now()}
		r.mu.Unlock()

		r.logDebug("firmware image resolved",
			"source", src.Name,
			"manufacturer", manufacturerCode,
			"image_type", imageType,
			"file_version", best.FileVersion)
		return best, true
	}

	return nil, false
}

// LatestImage returns the newest image any source offers for a hardware
// identity, ignoring the device's running version. Source priority still
// applies: the first source carrying the identity at all answers.
func (r *Repository) LatestImage(ctx context.Context, manufacturerCode, imageType int) (*Image, bool) {
	for _, src := range r.sources {
		images, err := r.manifest(ctx, src)
		if err != nil {
			r.logWarn("firmware source unavailable",
				"source", src.Name,
				"error", err)
			continue
		}

		var best *Image
		for i := range images {
			img := &images[i]
			if img.ManufacturerCode != manufacturerCode || img.ImageType != imageType {
				continue
			}
			if best == nil || img.FileVersion > best.FileVersion {
				best = img
			}
		}
		if best != nil {
			out := *best
			return &out, true
		}
	}
	return nil, false
}

// DownloadImage retrieves the binary payload of a resolved image. Any
// failure is fatal to the caller's update attempt; there are no retries.
func (r *Repository) DownloadImage(ctx context.Context, img *Image) ([]byte, error) {
	data, err := r.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	if img.Size > 0 && int64(len(data)) != img.Size {
		r.logWarn("image size mismatch",
			"url", img.URL,
			"expected", img.Size,
			"actual", len(data))
	}
	return data, nil
}

// SupportedManufacturers returns the sorted union of manufacturer codes
// advertised across all sources. Failing sources are skipped.
func (r *Repository) SupportedManufacturers(ctx context.Context) []int {
	seen := make(map[int]struct{})
	for _, src := range r.sources {
		images, err := r.manifest(ctx, src)
		if err != nil {
			r.logWarn("firmware source unavailable",
				"source", src.Name,
				"error", err)
			continue
		}
		for i := range images {
			seen[images[i].ManufacturerCode] = struct{}{}
		}
	}

	codes := make([]int, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// ClearCache drops all cached manifests and resolved images. The next
// lookup hits the network again.
func (r *Repository) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifests = make(map[string]manifestEntry)
	r.images = make(map[string]imageEntry)
}

// Stats returns a snapshot of the cache state.
func (r *Repository) Stats() CacheStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	stats := CacheStats{
		CachedImages: len(r.images),
		Sources:      make([]SourceStats, 0, len(r.sources)),
	}
	for _, src := range r.sources {
		ss := SourceStats{Name: src.Name}
		if entry, ok := r.manifests[src.Name]; ok {
			ss.Cached = true
			ss.Age = now.Sub(entry.fetchedAt)
			ss.Images = len(entry.images)
		}
		stats.Sources = append(stats.Sources, ss)
	}
	return stats
}

// manifest returns the parsed index of one source, from cache when fresh.
func (r *Repository) manifest(ctx context.Context, src Source) ([]Image, error) {
	r.mu.RLock()
	if entry, ok := r.manifests[src.Name]; ok && r.now().Sub(entry.fetchedAt) < r.manifestTTL {
		images := entry.images
		r.mu.RUnlock()
		return images, nil
	}
	r.mu.RUnlock()

	body, err := r.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	var images []Image
	if err := json.Unmarshal(body, &images); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	r.mu.Lock()
	r.manifests[src.Name] = manifestEntry{images: images, fetchedAt: r.now()}
	r.mu.Unlock()

	return images, nil
}

// selectImage picks the highest eligible FileVersion from one manifest,
// or nil when nothing is eligible.
func selectImage(images []Image, manufacturerCode, imageType int, currentVersion uint32) *Image {
	var best *Image
	for i := range images {
		img := &images[i]
		if img.ManufacturerCode != manufacturerCode || img.ImageType != imageType {
			continue
		}
		if !eligible(img, currentVersion) {
			continue
		}
		if best == nil || img.FileVersion > best.FileVersion {
			best = img
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// eligible reports whether an image applies to a device running
// currentVersion, honouring the optional restriction fields.
func eligible(img *Image, currentVersion uint32) bool {
	if img.MinFileVersion > 0 && currentVersion < img.MinFileVersion {
		return false
	}
	if img.MaxFileVersion > 0 && currentVersion > img.MaxFileVersion {
		return false
	}
	if img.Force {
		return true
	}
	return img.FileVersion > currentVersion
}

func imageKey(manufacturerCode, imageType int) string {
	return fmt.Sprintf("%d-%d", manufacturerCode, imageType)
}

func (r *Repository) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Repository) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
