package firmware

import "time"

// Image describes one firmware image offered by a remote manifest.
// Identity is (ManufacturerCode, ImageType); immutable once parsed.
type Image struct {
	ManufacturerCode int    `json:"manufacturerCode"`
	ImageType        int    `json:"imageType"`
	FileVersion      uint32 `json:"fileVersion"`
	Size             int64  `json:"fileSize"`
	URL              string `json:"url"`
	Changelog        string `json:"changelog,omitempty"`
	SHA512           string `json:"sha512,omitempty"`

	// Optional restriction fields some manifest sources carry.
	// A zero MinFileVersion/MaxFileVersion means unrestricted.
	MinFileVersion uint32 `json:"minFileVersion,omitempty"`
	MaxFileVersion uint32 `json:"maxFileVersion,omitempty"`
	ModelID        string `json:"modelId,omitempty"`

	// Force marks images the source wants applied regardless of version
	// ordering (e.g. a downgrade fixing a bricked release).
	Force bool `json:"force,omitempty"`
}

// Source is one remote manifest source. Sources are consulted in the
// order they are configured; the first source yielding a match wins.
type Source struct {
	Name string
	URL  string
}

// SourceStats describes the manifest cache state of one source.
type SourceStats struct {
	Name   string        `json:"name"`
	Cached bool          `json:"cached"`
	Age    time.Duration `json:"age"`
	Images int           `json:"images"`
}

// CacheStats is a snapshot of the repository's cache state.
type CacheStats struct {
	CachedImages int           `json:"cached_images"`
	Sources      []SourceStats `json:"sources"`
}
