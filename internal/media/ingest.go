// Package media turns untrusted remote image URLs into stored attachments, or
// into classified failures that are safe to log.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
	"contentengine/internal/infra"
	"contentengine/internal/metrics"
)

const (
	fetchAttempts       = 3
	defaultMaxBytes     = 15 << 20
	defaultFetchTimeout = 30 * time.Second
	maxFetchRedirects   = 3
)

// UserAgent identifies the engine on every outbound image request.
const UserAgent = "ContentEngine/1.0"

// Post meta keys written by the ingestor.
const (
	MetaThumbnailID     = "_thumbnail_id"
	MetaOGImageID       = "_ce_og_image_id"
	MetaOGImageURL      = "_ce_og_image_url"
	MetaYoastOGImage    = "_yoast_wpseo_opengraph-image"
	MetaYoastOGImageID  = "_yoast_wpseo_opengraph-image-id"
	MetaRankMathOGImage = "rank_math_facebook_image"
	MetaRankMathOGImgID = "rank_math_facebook_image_id"
)

const (
	attachmentSizeFull = "full"
	maxFilenameLength  = 120
)

// PostMeta is the slice of the post store the ingestor writes to.
type PostMeta interface {
	SetMeta(ctx context.Context, id int64, key, value string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures an Ingestor.
type Options struct {
	Policy     Policy
	Media      domain.MediaRepository
	Posts      PostMeta
	SEOPlugins []string
	HTTPClient *http.Client
	Logger     *infra.Logger
	Metrics    *metrics.Registry
	Sleep      SleepFunc
	MaxBytes   int64
}

// Ingestor fetches, verifies and stores remote images.
type Ingestor struct {
	policy   Policy
	media    domain.MediaRepository
	posts    PostMeta
	plugins  []string
	client   *http.Client
	logger   *infra.Logger
	metrics  *metrics.Registry
	sleep    SleepFunc
	maxBytes int64
}

// NewIngestor validates opts and returns an Ingestor.
func NewIngestor(opts Options) (*Ingestor, error) {
	if opts.Media == nil {
		return nil, errors.New("media: media repository is required")
	}
	if opts.Posts == nil {
		return nil, errors.New("media: post meta store is required")
	}
	var client http.Client
	if opts.HTTPClient != nil {
		client = *opts.HTTPClient
	}
	if client.Timeout == 0 {
		client.Timeout = defaultFetchTimeout
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	in := &Ingestor{
		policy:   opts.Policy,
		media:    opts.Media,
		posts:    opts.Posts,
		plugins:  opts.SEOPlugins,
		client:   &client,
		logger:   infra.LoggerOrDiscard(opts.Logger),
		metrics:  opts.Metrics,
		sleep:    sleep,
		maxBytes: maxBytes,
	}
	client.CheckRedirect = in.checkRedirect
	return in, nil
}

// checkRedirect holds every hop to the same URL rules as the first request.
func (in *Ingestor) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > maxFetchRedirects {
		return newError(CodeDownloadFailed, fmt.Sprintf("Image download failed: more than %d redirects", maxFetchRedirects), via[0].URL.String(), nil)
	}
	if _, err := in.policy.Validate(req.URL.String()); err != nil {
		return err
	}
	return nil
}

// Policy returns the URL rules the ingestor enforces.
func (in *Ingestor) Policy() Policy { return in.policy }

// Import validates rawURL, downloads it with up to three attempts, verifies
// the content type and stores it attached to postID (0 for none). Failures
// are always *Error.
func (in *Ingestor) Import(ctx context.Context, rawURL, alt string, postID int64) (int64, error) {
	u, verr := in.policy.Validate(rawURL)
	if verr != nil {
		in.metrics.Increment(metrics.ImageFailed)
		return 0, verr
	}
	rawURL = u.String()

	var lastErr *Error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		id, err := in.tryImport(ctx, u, alt, postID)
		if err == nil {
			in.metrics.Increment(metrics.ImageImported)
			return id, nil
		}
		lastErr = err
		if rejectedByPolicy(err) {
			in.logger.Warn().
				Str("code", err.Code).
				Str("host", err.Fingerprint.HostRedacted).
				Msg("media: redirect target rejected")
			break
		}
		in.logger.Warn().
			Str("code", err.Code).
			Str("error_class", string(err.Class)).
			Str("host", err.Fingerprint.HostRedacted).
			Int("attempt", attempt).
			Msg("media: import attempt failed")
		if attempt < fetchAttempts {
			if serr := in.sleep(ctx, time.Duration(attempt)*time.Second); serr != nil {
				lastErr = AsError(serr, rawURL)
				break
			}
		}
	}
	in.metrics.Increment(metrics.ImageFailed)
	return 0, lastErr
}

func (in *Ingestor) tryImport(ctx context.Context, u *url.URL, alt string, postID int64) (int64, *Error) {
	rawURL := u.String()
	data, err := in.download(ctx, rawURL)
	if err != nil {
		return 0, err
	}

	mime := strings.SplitN(mimetype.Detect(data).String(), ";", 2)[0]
	if !in.policy.MIMEAllowed(mime) {
		return 0, newError(CodeInvalidMIME, "Invalid image type. Allowed: JPEG, PNG, WebP, GIF.", rawURL, nil)
	}

	file := domain.MediaFile{Name: fileName(u, mime), MIME: mime, Data: data}
	id, serr := in.media.StoreBytes(ctx, file, postID)
	if serr != nil {
		return 0, newError(CodeSideloadFailed, "Media sideload failed: "+redactMessage(serr.Error(), rawURL), rawURL, serr)
	}
	if alt = strings.TrimSpace(alt); alt != "" {
		if aerr := in.media.SetAltText(ctx, id, htmlTextLine(alt)); aerr != nil {
			in.logger.Warn().Err(aerr).Int64("attachment_id", id).Msg("media: set alt text failed")
		}
	}
	return id, nil
}

func (in *Ingestor) download(ctx context.Context, rawURL string) ([]byte, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(CodeInvalidURL, "Invalid image URL.", rawURL, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := in.client.Do(req)
	if err != nil {
		var me *Error
		if errors.As(err, &me) {
			return nil, me
		}
		return nil, downloadError(err, rawURL)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError(CodeDownloadFailed, "Image download failed: unexpected HTTP status "+strconv.Itoa(resp.StatusCode), rawURL, nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, in.maxBytes+1))
	if err != nil {
		return nil, downloadError(err, rawURL)
	}
	if int64(len(data)) > in.maxBytes {
		return nil, newError(CodeDownloadFailed, fmt.Sprintf("Image download failed: body exceeds %d bytes", in.maxBytes), rawURL, nil)
	}
	if len(data) == 0 {
		return nil, newError(CodeDownloadFailed, "Image download failed: empty body", rawURL, nil)
	}
	return data, nil
}

func rejectedByPolicy(err *Error) bool {
	switch err.Code {
	case CodeInvalidURL, CodeInvalidScheme, CodeNotHTTPS, CodeHostNotAllowed, CodeInvalidExtension:
		return true
	}
	return false
}

func downloadError(err error, rawURL string) *Error {
	detail := err
	var ue *url.Error
	if errors.As(err, &ue) {
		detail = ue.Err
	}
	return newError(CodeDownloadFailed, "Image download failed: "+redactMessage(detail.Error(), rawURL), rawURL, err)
}

// SetFeaturedImage imports rawURL and makes it the post thumbnail.
func (in *Ingestor) SetFeaturedImage(ctx context.Context, postID int64, rawURL, alt string) (int64, error) {
	id, err := in.Import(ctx, rawURL, alt, postID)
	if err != nil {
		return 0, err
	}
	if err := in.posts.SetMeta(ctx, postID, MetaThumbnailID, strconv.FormatInt(id, 10)); err != nil {
		return 0, newError(CodeSideloadFailed, "Could not set featured image.", rawURL, err)
	}
	return id, nil
}

// SetOGImage imports rawURL and records it as the social sharing image.
func (in *Ingestor) SetOGImage(ctx context.Context, postID int64, rawURL, alt string) (int64, error) {
	id, err := in.Import(ctx, rawURL, alt, postID)
	if err != nil {
		return 0, err
	}
	if err := in.LinkOGImage(ctx, postID, id, rawURL); err != nil {
		return 0, newError(CodeSideloadFailed, "Could not store OG image metadata.", rawURL, err)
	}
	return id, nil
}

// LinkOGImage writes OG image metadata for an already stored attachment:
// native keys always, plugin keys for each configured SEO plugin.
func (in *Ingestor) LinkOGImage(ctx context.Context, postID, attachmentID int64, fallbackURL string) error {
	imageURL, err := in.media.URL(ctx, attachmentID, attachmentSizeFull)
	if err != nil || imageURL == "" {
		imageURL = fallbackURL
	}
	id := strconv.FormatInt(attachmentID, 10)
	meta := [][2]string{
		{MetaOGImageID, id},
		{MetaOGImageURL, imageURL},
	}
	for _, p := range in.plugins {
		switch p {
		case config.PluginYoast:
			meta = append(meta, [2]string{MetaYoastOGImage, imageURL}, [2]string{MetaYoastOGImageID, id})
		case config.PluginRankMath:
			meta = append(meta, [2]string{MetaRankMathOGImage, imageURL}, [2]string{MetaRankMathOGImgID, id})
		}
	}
	for _, kv := range meta {
		if err := in.posts.SetMeta(ctx, postID, kv[0], kv[1]); err != nil {
			return fmt.Errorf("set %s: %w", kv[0], err)
		}
	}
	return nil
}

// InlineResult is the outcome of a bulk inline import.
type InlineResult struct {
	Items  []domain.ImportedImage
	Errors []domain.ImageFailure
}

// ImportInlineImages imports each image independently; one failure never
// stops the rest of the batch.
func (in *Ingestor) ImportInlineImages(ctx context.Context, postID int64, images []domain.InlineImage) InlineResult {
	var res InlineResult
	for i, img := range images {
		index := i
		rawURL := strings.TrimSpace(img.URL)
		if rawURL == "" {
			res.Errors = append(res.Errors, domain.ImageFailure{
				Stage:       domain.ImageStageInline,
				Index:       &index,
				Code:        CodeInvalidURL,
				Message:     "Missing image URL.",
				ErrorClass:  domain.ErrorClassUnknown,
				Fingerprint: Fingerprint(""),
			})
			continue
		}
		alt := htmlTextLine(img.Alt)
		caption := htmlTextLine(img.Caption)
		hint := domain.NormalizePlacement(img.PlacementHint)

		id, err := in.Import(ctx, rawURL, alt, postID)
		if err != nil {
			failure := AsError(err, rawURL).Failure(domain.ImageStageInline)
			failure.Index = &index
			res.Errors = append(res.Errors, failure)
			continue
		}
		itemURL, uerr := in.media.URL(ctx, id, attachmentSizeFull)
		if uerr != nil || itemURL == "" {
			itemURL = rawURL
		}
		res.Items = append(res.Items, domain.ImportedImage{
			AttachmentID:  id,
			URL:           itemURL,
			Alt:           alt,
			Caption:       caption,
			PlacementHint: hint,
		})
	}
	return res
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileName(u *url.URL, mime string) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || !strings.Contains(base, ".") {
		base = "image-" + uuid.NewString()[:8] + "." + ExtensionForMIME(mime)
	}
	base = strings.Trim(unsafeFileChars.ReplaceAllString(base, "-"), "-.")
	if base == "" {
		base = "image." + ExtensionForMIME(mime)
	}
	if len(base) > maxFilenameLength {
		base = base[len(base)-maxFilenameLength:]
	}
	return base
}

func htmlTextLine(s string) string {
	return htmltext.CollapseSpace(htmltext.StripTags(s))
}
