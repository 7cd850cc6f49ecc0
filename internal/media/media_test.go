package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/metrics"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func imageResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"image/png"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

type fakeMedia struct {
	mu       sync.Mutex
	next     int64
	files    []domain.MediaFile
	attached []int64
	alts     map[int64]string
	storeErr error
}

func (f *fakeMedia) StoreBytes(ctx context.Context, file domain.MediaFile, attachTo int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return 0, f.storeErr
	}
	f.next++
	f.files = append(f.files, file)
	f.attached = append(f.attached, attachTo)
	return 100 + f.next, nil
}

func (f *fakeMedia) SetAltText(ctx context.Context, id int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alts == nil {
		f.alts = map[int64]string{}
	}
	f.alts[id] = text
	return nil
}

func (f *fakeMedia) URL(ctx context.Context, id int64, size string) (string, error) {
	return fmt.Sprintf("https://site.test/media/%d.png", id), nil
}

type fakeMeta struct {
	mu   sync.Mutex
	meta map[string]string
}

func (f *fakeMeta) SetMeta(ctx context.Context, id int64, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meta == nil {
		f.meta = map[string]string{}
	}
	f.meta[fmt.Sprintf("%d:%s", id, key)] = value
	return nil
}

type recordedSleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d = append(r.d, d)
	return nil
}

func newTestIngestor(t *testing.T, rt roundTripFunc, mediaRepo *fakeMedia, meta *fakeMeta, sleeps *recordedSleeps) *Ingestor {
	t.Helper()
	in, err := NewIngestor(Options{
		Policy:     PolicyFromSettings(config.Default().Images),
		Media:      mediaRepo,
		Posts:      meta,
		SEOPlugins: []string{config.PluginYoast},
		HTTPClient: &http.Client{Transport: rt},
		Metrics:    metrics.New(""),
		Sleep:      sleeps.sleep,
	})
	if err != nil {
		t.Fatalf("NewIngestor returned error: %v", err)
	}
	return in
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()
	enforced := PolicyFromSettings(config.Default().Images)
	open := Policy{}
	cases := []struct {
		name   string
		policy Policy
		url    string
		code   string
		class  domain.ErrorClass
	}{
		{name: "empty", policy: enforced, url: "  ", code: CodeInvalidURL, class: domain.ErrorClassHTTP},
		{name: "ftp", policy: enforced, url: "ftp://images.unsplash.com/a.jpg", code: CodeInvalidScheme, class: domain.ErrorClassHTTP},
		{name: "plain_http", policy: enforced, url: "http://images.unsplash.com/a.jpg", code: CodeNotHTTPS, class: domain.ErrorClassInvalidHost},
		{name: "unknown_host", policy: enforced, url: "https://evil.example.com/a.jpg", code: CodeHostNotAllowed, class: domain.ErrorClassInvalidHost},
		{name: "no_extension", policy: enforced, url: "https://images.unsplash.com/photo-123?w=800", code: CodeInvalidExtension, class: domain.ErrorClassInvalidHost},
		{name: "gif_rejected_by_extension", policy: enforced, url: "https://cdn.pixabay.com/a.gif", code: CodeInvalidExtension, class: domain.ErrorClassInvalidHost},
		{name: "allowed", policy: enforced, url: "https://upload.wikimedia.org/x/Y.JPEG"},
		{name: "open_policy_http", policy: open, url: "http://anything.example.org/pic"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tc.policy.Validate(tc.url)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("Validate(%q) = %v, want nil", tc.url, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%q) = nil, want %s", tc.url, tc.code)
			}
			if err.Code != tc.code {
				t.Fatalf("Code = %q, want %q", err.Code, tc.code)
			}
			if err.Class != tc.class {
				t.Fatalf("Class = %q, want %q", err.Class, tc.class)
			}
		})
	}
}

func TestPolicyMIME(t *testing.T) {
	p := Policy{}
	if !p.MIMEAllowed("image/webp") {
		t.Fatal("expected webp allowed")
	}
	if p.MIMEAllowed("image/svg+xml") {
		t.Fatal("expected svg rejected by default")
	}
	p.AllowSVG = true
	if !p.MIMEAllowed("image/svg+xml") {
		t.Fatal("expected svg allowed when enabled")
	}
	if p.MIMEAllowed("text/html") {
		t.Fatal("expected text/html rejected")
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("https://images.unsplash.com/photo/abc.JPG?token=secret")
	want := domain.SourceFingerprint{Scheme: "https", HostRedacted: "***.unsplash.com", IsHTTPS: true, Ext: "jpg"}
	if fp != want {
		t.Fatalf("Fingerprint = %#v, want %#v", fp, want)
	}
	if fp := Fingerprint("ftp://localhost/file.bin"); fp.Scheme != "other" || fp.HostRedacted != "localhost" || fp.Ext != "" {
		t.Fatalf("Fingerprint(ftp) = %#v", fp)
	}
	if fp := Fingerprint(""); fp.Scheme != "other" || fp.IsHTTPS {
		t.Fatalf("Fingerprint(empty) = %#v", fp)
	}
}

func TestRedactMessageRemovesURL(t *testing.T) {
	raw := "https://images.unsplash.com/p.jpg?sig=abc123"
	got := redactMessage("failed to fetch "+raw+" (sig=abc123)", raw)
	if strings.Contains(got, "p.jpg") || strings.Contains(got, "abc123") {
		t.Fatalf("message leaks URL parts: %q", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		code    string
		message string
		cause   error
		want    domain.ErrorClass
	}{
		{name: "mime_code", code: CodeInvalidMIME, want: domain.ErrorClassMIME},
		{name: "sideload_code", code: CodeSideloadFailed, want: domain.ErrorClassSideload},
		{name: "dns_cause", code: CodeDownloadFailed, cause: &net.DNSError{Err: "no such host", Name: "x.test"}, want: domain.ErrorClassDNS},
		{name: "deadline_cause", code: CodeDownloadFailed, cause: fmt.Errorf("get: %w", context.DeadlineExceeded), want: domain.ErrorClassTimeout},
		{name: "ssl_message", code: CodeDownloadFailed, message: "cURL error 60: SSL certificate problem", want: domain.ErrorClassSSL},
		{name: "timeout_message", code: CodeDownloadFailed, message: "Operation timed out after 30001 milliseconds", want: domain.ErrorClassTimeout},
		{name: "dns_message", code: CodeDownloadFailed, message: "Could not resolve host: nope", want: domain.ErrorClassDNS},
		{name: "http_message", code: CodeDownloadFailed, message: "unexpected HTTP status 404", want: domain.ErrorClassHTTP},
		{name: "unknown", code: CodeDownloadFailed, message: "something odd", want: domain.ErrorClassUnknown},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.code, tc.message, tc.cause); got != tc.want {
				t.Fatalf("Classify = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestImportStoresImage(t *testing.T) {
	repo := &fakeMedia{}
	sleeps := &recordedSleeps{}
	var ua string
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		ua = r.Header.Get("User-Agent")
		return imageResponse(http.StatusOK, pngBytes), nil
	}, repo, &fakeMeta{}, sleeps)

	id, err := in.Import(context.Background(), "https://images.unsplash.com/photos/sunrise.png", "  Sunrise <b>over</b> hills ", 9)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if id != 101 {
		t.Fatalf("id = %d, want 101", id)
	}
	if ua != UserAgent {
		t.Fatalf("User-Agent = %q, want %q", ua, UserAgent)
	}
	if len(repo.files) != 1 || repo.files[0].MIME != "image/png" || repo.files[0].Name != "sunrise.png" {
		t.Fatalf("stored files = %#v", repo.files)
	}
	if repo.attached[0] != 9 {
		t.Fatalf("attached to %d, want 9", repo.attached[0])
	}
	if repo.alts[101] != "Sunrise over hills" {
		t.Fatalf("alt = %q", repo.alts[101])
	}
	if len(sleeps.d) != 0 {
		t.Fatalf("sleeps = %v, want none", sleeps.d)
	}
	if got := in.metrics.Count(metrics.ImageImported); got != 1 {
		t.Fatalf("imported counter = %d, want 1", got)
	}
}

func TestImportRetriesThreeTimes(t *testing.T) {
	repo := &fakeMedia{}
	sleeps := &recordedSleeps{}
	calls := 0
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return imageResponse(http.StatusInternalServerError, nil), nil
	}, repo, &fakeMeta{}, sleeps)

	_, err := in.Import(context.Background(), "https://cdn.pixabay.com/a.jpg", "", 0)
	var me *Error
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(sleeps.d) != 2 || sleeps.d[0] != time.Second || sleeps.d[1] != 2*time.Second {
		t.Fatalf("sleeps = %v, want [1s 2s]", sleeps.d)
	}
	if me.Code != CodeDownloadFailed || me.Class != domain.ErrorClassHTTP {
		t.Fatalf("error = %s/%s", me.Code, me.Class)
	}
	if me.Fingerprint.HostRedacted != "***.pixabay.com" {
		t.Fatalf("HostRedacted = %q", me.Fingerprint.HostRedacted)
	}
	if got := in.metrics.Count(metrics.ImageFailed); got != 1 {
		t.Fatalf("failed counter = %d, want 1", got)
	}
}

func TestImportRejectsNonImageContent(t *testing.T) {
	calls := 0
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"image/png"}},
			Body:       io.NopCloser(strings.NewReader("<!DOCTYPE html><html><body>nope</body></html>")),
		}, nil
	}, &fakeMedia{}, &fakeMeta{}, &recordedSleeps{})

	_, err := in.Import(context.Background(), "https://cdn.pixabay.com/a.png", "", 0)
	me := AsError(err, "")
	if me.Code != CodeInvalidMIME || me.Class != domain.ErrorClassMIME {
		t.Fatalf("error = %s/%s, want invalid_mime/mime", me.Code, me.Class)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestImportValidationFailsWithoutNetwork(t *testing.T) {
	sleeps := &recordedSleeps{}
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("unexpected network call")
		return nil, nil
	}, &fakeMedia{}, &fakeMeta{}, sleeps)

	_, err := in.Import(context.Background(), "https://evil.example.com/a.jpg", "", 0)
	if me := AsError(err, ""); me.Code != CodeHostNotAllowed {
		t.Fatalf("Code = %q, want %q", me.Code, CodeHostNotAllowed)
	}
	if len(sleeps.d) != 0 {
		t.Fatalf("sleeps = %v, want none", sleeps.d)
	}
}

func redirectResponse(location string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusFound,
		Header:     http.Header{"Location": []string{location}},
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestImportRedirectMustPassPolicy(t *testing.T) {
	cases := []struct {
		name     string
		location string
		code     string
	}{
		{name: "plain http internal host", location: "http://169.254.169.254/internal/secret.gif", code: CodeNotHTTPS},
		{name: "https host off the list", location: "https://evil.example.com/a.png", code: CodeHostNotAllowed},
		{name: "allowed host without image extension", location: "https://cdn.pixabay.com/download", code: CodeInvalidExtension},
		{name: "non http scheme", location: "ftp://cdn.pixabay.com/a.png", code: CodeInvalidScheme},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeMedia{}
			sleeps := &recordedSleeps{}
			var requested []string
			in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
				requested = append(requested, r.URL.String())
				if r.URL.Host == "images.unsplash.com" {
					return redirectResponse(tc.location), nil
				}
				return imageResponse(http.StatusOK, pngBytes), nil
			}, repo, &fakeMeta{}, sleeps)

			_, err := in.Import(context.Background(), "https://images.unsplash.com/photo.png", "", 0)
			var me *Error
			if !errors.As(err, &me) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if me.Code != tc.code {
				t.Fatalf("Code = %q, want %q", me.Code, tc.code)
			}
			if len(requested) != 1 {
				t.Fatalf("requested = %v, want only the original URL", requested)
			}
			if len(repo.files) != 0 || len(sleeps.d) != 0 {
				t.Fatalf("files = %d sleeps = %v, want nothing stored and no retry", len(repo.files), sleeps.d)
			}
			if strings.Contains(me.Message, "169.254") || strings.Contains(me.Message, "evil") {
				t.Fatalf("message leaks the redirect target: %q", me.Message)
			}
		})
	}
}

func TestImportFollowsAllowedRedirect(t *testing.T) {
	repo := &fakeMedia{}
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "images.unsplash.com" {
			return redirectResponse("https://cdn.pixabay.com/photo.png"), nil
		}
		return imageResponse(http.StatusOK, pngBytes), nil
	})}
	in, err := NewIngestor(Options{
		Policy:     PolicyFromSettings(config.Default().Images),
		Media:      repo,
		Posts:      &fakeMeta{},
		HTTPClient: client,
		Sleep:      (&recordedSleeps{}).sleep,
	})
	if err != nil {
		t.Fatalf("NewIngestor: %v", err)
	}

	if _, err := in.Import(context.Background(), "https://images.unsplash.com/photo.png", "", 0); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(repo.files) != 1 {
		t.Fatalf("files = %d, want 1", len(repo.files))
	}
	if client.CheckRedirect != nil {
		t.Fatal("caller client was modified")
	}
}

func TestImportStopsEndlessRedirects(t *testing.T) {
	repo := &fakeMedia{}
	hops := 0
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		hops++
		return redirectResponse(fmt.Sprintf("https://cdn.pixabay.com/hop%d.png", hops)), nil
	}, repo, &fakeMeta{}, &recordedSleeps{})

	_, err := in.Import(context.Background(), "https://cdn.pixabay.com/hop0.png", "", 0)
	if me := AsError(err, ""); me.Code != CodeDownloadFailed {
		t.Fatalf("Code = %q, want %q", me.Code, CodeDownloadFailed)
	}
	if want := fetchAttempts * (maxFetchRedirects + 1); hops != want {
		t.Fatalf("requests = %d, want %d", hops, want)
	}
	if len(repo.files) != 0 {
		t.Fatalf("files = %d, want 0", len(repo.files))
	}
}

func TestProbeAndFetchShareUserAgent(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
	}))
	defer srv.Close()

	NewProber(nil, nil).IsFetchable(context.Background(), srv.URL)
	if len(agents) == 0 || agents[0] != UserAgent {
		t.Fatalf("agents = %v, want %q", agents, UserAgent)
	}
}

func TestImportStoreFailureIsSideload(t *testing.T) {
	repo := &fakeMedia{storeErr: errors.New("disk full")}
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		return imageResponse(http.StatusOK, pngBytes), nil
	}, repo, &fakeMeta{}, &recordedSleeps{})

	_, err := in.Import(context.Background(), "https://cdn.pixabay.com/a.png", "", 0)
	me := AsError(err, "")
	if me.Code != CodeSideloadFailed || me.Class != domain.ErrorClassSideload {
		t.Fatalf("error = %s/%s", me.Code, me.Class)
	}
}

func TestImportDNSFailure(t *testing.T) {
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: r.URL.Host}}
	}, &fakeMedia{}, &fakeMeta{}, &recordedSleeps{})

	raw := "https://images.unsplash.com/secret-path.jpg?sig=zzz"
	_, err := in.Import(context.Background(), raw, "", 0)
	me := AsError(err, "")
	if me.Class != domain.ErrorClassDNS {
		t.Fatalf("Class = %q, want dns", me.Class)
	}
	if strings.Contains(me.Message, "secret-path") || strings.Contains(me.Message, "zzz") {
		t.Fatalf("message leaks URL: %q", me.Message)
	}
}

func TestSetOGImageWritesPluginMeta(t *testing.T) {
	meta := &fakeMeta{}
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		return imageResponse(http.StatusOK, pngBytes), nil
	}, &fakeMedia{}, meta, &recordedSleeps{})

	id, err := in.SetOGImage(context.Background(), 5, "https://cdn.pixabay.com/og.png", "OG")
	if err != nil {
		t.Fatalf("SetOGImage returned error: %v", err)
	}
	wantURL := fmt.Sprintf("https://site.test/media/%d.png", id)
	for key, want := range map[string]string{
		MetaOGImageID:      fmt.Sprint(id),
		MetaOGImageURL:     wantURL,
		MetaYoastOGImage:   wantURL,
		MetaYoastOGImageID: fmt.Sprint(id),
	} {
		if got := meta.meta["5:"+key]; got != want {
			t.Fatalf("meta %s = %q, want %q", key, got, want)
		}
	}
	if _, ok := meta.meta["5:"+MetaRankMathOGImage]; ok {
		t.Fatal("rank math key written without the plugin configured")
	}
}

func TestSetFeaturedImage(t *testing.T) {
	meta := &fakeMeta{}
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		return imageResponse(http.StatusOK, pngBytes), nil
	}, &fakeMedia{}, meta, &recordedSleeps{})

	id, err := in.SetFeaturedImage(context.Background(), 3, "https://cdn.pixabay.com/hero.png", "Hero")
	if err != nil {
		t.Fatalf("SetFeaturedImage returned error: %v", err)
	}
	if got := meta.meta["3:"+MetaThumbnailID]; got != fmt.Sprint(id) {
		t.Fatalf("thumbnail = %q, want %d", got, id)
	}
}

func TestImportInlineImagesPartialFailure(t *testing.T) {
	in := newTestIngestor(t, func(r *http.Request) (*http.Response, error) {
		return imageResponse(http.StatusOK, pngBytes), nil
	}, &fakeMedia{}, &fakeMeta{}, &recordedSleeps{})

	res := in.ImportInlineImages(context.Background(), 4, []domain.InlineImage{
		{URL: "https://images.unsplash.com/a.png", Alt: "A", Caption: "First", PlacementHint: "AFTER_H2_1"},
		{URL: "https://evil.example.com/b.png", Alt: "B"},
		{URL: "  "},
	})
	if len(res.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(res.Items))
	}
	if item := res.Items[0]; item.PlacementHint != domain.PlacementAfterH2One || item.Caption != "First" || item.URL == "" {
		t.Fatalf("item = %#v", item)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(res.Errors))
	}
	if e := res.Errors[0]; e.Index == nil || *e.Index != 1 || e.Stage != domain.ImageStageInline || e.Code != CodeHostNotAllowed {
		t.Fatalf("errors[0] = %#v", e)
	}
	if e := res.Errors[1]; e.Index == nil || *e.Index != 2 || e.Code != CodeInvalidURL {
		t.Fatalf("errors[1] = %#v", e)
	}
}

func TestProberFallsBackToRangedGet(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte{0xff})
	}))
	defer srv.Close()

	p := NewProber(nil, nil)
	if !p.IsFetchable(context.Background(), srv.URL+"/a.jpg") {
		t.Fatal("expected fetchable")
	}
	if gotRange != "bytes=0-0" {
		t.Fatalf("Range = %q, want bytes=0-0", gotRange)
	}
}

func TestProberRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	if NewProber(nil, nil).IsFetchable(context.Background(), srv.URL) {
		t.Fatal("expected text/html to be rejected")
	}
}

func TestProberStopsAfterTwoRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final.png" {
			w.Header().Set("Content-Type", "image/png")
			return
		}
		var n int
		_, _ = fmt.Sscanf(r.URL.Path, "/hop%d", &n)
		http.Redirect(w, r, fmt.Sprintf("%s/hop%d", srv.URL, n+1), http.StatusFound)
	}))
	defer srv.Close()

	if NewProber(nil, nil).IsFetchable(context.Background(), srv.URL+"/hop0") {
		t.Fatal("expected endless redirects to be rejected")
	}
}
