package renamer

import (
	"path"
	"strings"
)

// MediaType selects which library a scan walks.
type MediaType string

// Scan media types accepted by POST /api/scan.
const (
	MediaMovies  MediaType = "movies"
	MediaTVShows MediaType = "tv_shows"
)

// Valid reports whether t is a media type the backend understands.
func (t MediaType) Valid() bool {
	return t == MediaMovies || t == MediaTVShows
}

// MetadataStatus is the outcome of the backend's metadata lookup for one file.
type MetadataStatus string

// Known metadata statuses.
const (
	MetadataFound          MetadataStatus = "found"
	MetadataNotFound       MetadataStatus = "not_found"
	MetadataPartial        MetadataStatus = "partial"
	MetadataError          MetadataStatus = "error"
	MetadataAPIUnavailable MetadataStatus = "api_unavailable"
	MetadataUnknown        MetadataStatus = "unknown"
)

// Label returns the display text for the status.
func (s MetadataStatus) Label() string {
	switch s {
	case MetadataFound:
		return "Found"
	case MetadataNotFound:
		return "Not Found"
	case MetadataPartial:
		return "Partial"
	case MetadataError:
		return "Error"
	case MetadataAPIUnavailable:
		return "API Unavailable"
	default:
		return "Unknown"
	}
}

// IsIssue reports whether the status should be listed as a metadata issue.
func (s MetadataStatus) IsIssue() bool {
	switch s {
	case MetadataNotFound, MetadataError, MetadataAPIUnavailable, MetadataPartial:
		return true
	}
	return false
}

// envelope carries the fields every backend response shares.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ScanStatus is the server-owned progress of the current scan.
type ScanStatus struct {
	IsScanning bool   `json:"is_scanning"`
	Progress   int    `json:"progress"`
	Message    string `json:"message"`
}

func (s *ScanStatus) normalize() {
	if s.Progress < 0 {
		s.Progress = 0
	}
	if s.Progress > 100 {
		s.Progress = 100
	}
}

// StatusResponse is the response from GET /api/scan/status.
type StatusResponse struct {
	Status          ScanStatus `json:"status"`
	FilesCount      int        `json:"files_count"`
	OperationsCount int        `json:"operations_count"`
}

// ScanRequest is the request body for POST /api/scan.
type ScanRequest struct {
	MediaType      MediaType `json:"media_type"`
	ScanPath       string    `json:"scan_path,omitempty"`
	ScanAllFolders bool      `json:"scan_all_folders,omitempty"`
}

// Validate checks the request before it is sent.
func (r ScanRequest) Validate() error {
	if !r.MediaType.Valid() {
		return &ValidationError{Field: "media_type", Reason: "must be movies or tv_shows"}
	}
	if strings.TrimSpace(r.ScanPath) == "" && !r.ScanAllFolders {
		return &ValidationError{Field: "scan_path", Reason: "is required unless scanning all folders"}
	}
	return nil
}

// Result is one planned rename produced by a scan. Its position in the
// result list is its only identifier.
type Result struct {
	ID             *int           `json:"id,omitempty"`
	SourcePath     string         `json:"source_path"`
	TargetPath     string         `json:"target_path"`
	Filename       string         `json:"filename"`
	NewFilename    string         `json:"new_filename,omitempty"`
	MediaType      string         `json:"media_type,omitempty"`
	MetadataStatus MetadataStatus `json:"metadata_status,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Title          string         `json:"title,omitempty"`
	Year           any            `json:"year,omitempty"`
	Season         any            `json:"season,omitempty"`
	Episode        any            `json:"episode,omitempty"`
	Status         string         `json:"status,omitempty"`
}

func (r *Result) normalize() {
	if r.MetadataStatus == "" {
		r.MetadataStatus = MetadataUnknown
	}
	if r.Filename == "" && r.SourcePath != "" {
		r.Filename = path.Base(r.SourcePath)
	}
}

// TargetName is the file name the rename would produce, or "No changes".
func (r Result) TargetName() string {
	if r.TargetPath == "" {
		return "No changes"
	}
	return path.Base(r.TargetPath)
}

// MediaLabel returns the display label for the record's media type.
func (r Result) MediaLabel() string {
	switch r.MediaType {
	case "movie":
		return "Movie"
	case "tv":
		return "TV Show"
	default:
		return "Unknown"
	}
}

// DisplayName returns the filename, falling back to "Unknown".
func (r Result) DisplayName() string {
	if r.Filename == "" {
		return "Unknown"
	}
	return r.Filename
}

type resultsResponse struct {
	Results []Result `json:"results"`
}

// ApplyRequest is the request body for POST /api/rename.
type ApplyRequest struct {
	DryRun     bool  `json:"dry_run"`
	Operations []int `json:"operations"`
}

// Validate checks the request before it is sent. The backend treats an
// empty operation list as "apply everything", so it is rejected here.
func (r ApplyRequest) Validate() error {
	if len(r.Operations) == 0 {
		return &ValidationError{Field: "operations", Reason: "at least one operation index is required"}
	}
	for _, i := range r.Operations {
		if i < 0 {
			return &ValidationError{Field: "operations", Reason: "indices must not be negative"}
		}
	}
	return nil
}

// OperationResult is the outcome of one rename.
type OperationResult struct {
	SourcePath string `json:"source_path"`
	TargetPath string `json:"target_path"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

// Summary counts the outcomes of an apply request.
type Summary struct {
	Total      int  `json:"total"`
	Successful int  `json:"successful"`
	Failed     int  `json:"failed"`
	DryRun     bool `json:"dry_run"`
}

// ApplyResponse is the response from POST /api/rename.
type ApplyResponse struct {
	Results []OperationResult `json:"results"`
	Summary Summary           `json:"summary"`
}

// Settings is the configuration view returned by GET /api/config. API keys
// are reported only as present or absent.
type Settings struct {
	TMDBAPIKeySet       bool   `json:"tmdb_api_key"`
	TVDBAPIKeySet       bool   `json:"tvdb_api_key"`
	BaseMediaPath       string `json:"base_media_path"`
	MoviesPath          string `json:"movies_path"`
	TVShowsPath         string `json:"tv_shows_path"`
	DryRunMode          bool   `json:"dry_run_mode"`
	CreateMovieFolders  bool   `json:"create_movie_folders"`
	IncludeEpisodeTitle bool   `json:"include_episode_title"`
	IncludeSeriesID     bool   `json:"include_series_id"`
	PreferredIDSource   string `json:"preferred_id_source"`
	PreferredLanguage   string `json:"preferred_language"`
}

// PathFor returns the configured library path for a media type.
func (s Settings) PathFor(t MediaType) string {
	if t == MediaTVShows {
		return s.TVShowsPath
	}
	return s.MoviesPath
}

type settingsResponse struct {
	Config Settings `json:"config"`
}

// SettingKinds lists the keys POST /api/config accepts and whether each
// holds a boolean.
var SettingKinds = map[string]bool{
	"tmdb_api_key":          false,
	"tvdb_api_key":          false,
	"base_media_path":       false,
	"movies_subfolder":      false,
	"tv_shows_subfolder":    false,
	"dry_run_mode":          true,
	"create_movie_folders":  true,
	"include_episode_title": true,
	"include_series_id":     true,
	"preferred_id_source":   false,
	"preferred_language":    false,
}

// Entry is a directory or file returned by POST /api/browse.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// Listing is the response from POST /api/browse.
type Listing struct {
	Path        string  `json:"path"`
	Parent      *string `json:"parent"`
	Directories []Entry `json:"directories"`
	Files       []Entry `json:"files"`
}

// MediaFolder is a library folder found by folder discovery.
type MediaFolder struct {
	Name              string  `json:"name"`
	Path              string  `json:"path"`
	DetectedType      string  `json:"detected_type"`
	ConfidenceScore   float64 `json:"confidence_score"`
	MediaFileCount    int     `json:"media_file_count"`
	SubdirectoryCount int     `json:"subdirectory_count"`
}

// ConfidencePercent returns the confidence score rounded to a percentage.
func (f MediaFolder) ConfidencePercent() int {
	return int(f.ConfidenceScore*100 + 0.5)
}

// TypeLabel returns the detected type, or "Unknown".
func (f MediaFolder) TypeLabel() string {
	if f.DetectedType == "" {
		return "Unknown"
	}
	return f.DetectedType
}

type foldersResponse struct {
	Folders []MediaFolder `json:"folders"`
}

// Health is the response from GET /api/health.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}
