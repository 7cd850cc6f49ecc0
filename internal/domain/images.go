package domain

// ErrorClass buckets image failures for diagnostics.
type ErrorClass string

const (
	ErrorClassMIME        ErrorClass = "mime"
	ErrorClassInvalidHost ErrorClass = "invalid_host"
	ErrorClassHTTP        ErrorClass = "http"
	ErrorClassSSL         ErrorClass = "ssl"
	ErrorClassTimeout     ErrorClass = "timeout"
	ErrorClassDNS         ErrorClass = "dns"
	ErrorClassSideload    ErrorClass = "sideload"
	ErrorClassUnknown     ErrorClass = "unknown"
)

// Image stages recorded in diagnostics.
const (
	ImageStageFeatured = "featured"
	ImageStageOG       = "og"
	ImageStageInline   = "inline"
)

// SourceFingerprint describes a remote URL without revealing it.
type SourceFingerprint struct {
	Scheme       string `json:"scheme"`
	HostRedacted string `json:"host_redacted"`
	IsHTTPS      bool   `json:"is_https"`
	Ext          string `json:"ext"`
}

// ImageFailure is one classified image error.
type ImageFailure struct {
	Stage       string            `json:"stage"`
	Index       *int              `json:"index,omitempty"`
	Code        string            `json:"code,omitempty"`
	Message     string            `json:"message"`
	ErrorClass  ErrorClass        `json:"error_class"`
	Fingerprint SourceFingerprint `json:"source_fingerprint"`
}

// ImportedImage is an inline image that was stored successfully.
type ImportedImage struct {
	AttachmentID  int64  `json:"attachment_id"`
	URL           string `json:"url"`
	Alt           string `json:"alt"`
	Caption       string `json:"caption,omitempty"`
	PlacementHint string `json:"placement_hint"`
}

// ImageDiagnostics records image outcomes for one job.
type ImageDiagnostics struct {
	FeaturedSet          bool            `json:"featured_set"`
	FeaturedAttachmentID int64           `json:"featured_attachment_id,omitempty"`
	OGSet                bool            `json:"og_set"`
	InlineImported       int             `json:"inline_imported"`
	Inline               []ImportedImage `json:"inline,omitempty"`
	Errors               []ImageFailure  `json:"errors"`
}

// HasStageError reports whether any failure was recorded for stage.
func (d *ImageDiagnostics) HasStageError(stage string) bool {
	if d == nil {
		return false
	}
	for _, e := range d.Errors {
		if e.Stage == stage {
			return true
		}
	}
	return false
}
