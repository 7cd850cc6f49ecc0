package media

import (
	"net/url"
	"path"
	"strings"

	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
)

var fingerprintExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true}

const maxMessageRunes = 300

// Fingerprint summarises rawURL for logs: scheme, redacted host, https flag
// and a known image extension. Path and query are never included.
func Fingerprint(rawURL string) domain.SourceFingerprint {
	fp := domain.SourceFingerprint{Scheme: "other"}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fp
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fp
	}
	if s := strings.ToLower(u.Scheme); s == "http" || s == "https" {
		fp.Scheme = s
	}
	fp.IsHTTPS = fp.Scheme == "https"
	fp.HostRedacted = RedactHost(u.Hostname())
	if ext := extension(u.Path); fingerprintExtensions[ext] {
		fp.Ext = ext
	}
	return fp
}

// RedactHost keeps the last two labels: images.example.com becomes
// ***.example.com. Single-label hosts are returned unchanged.
func RedactHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	var labels []string
	for _, l := range strings.Split(host, ".") {
		if l != "" {
			labels = append(labels, l)
		}
	}
	if len(labels) <= 1 {
		return host
	}
	return "***." + strings.Join(labels[len(labels)-2:], ".")
}

// RedactURL keeps scheme and host and masks the rest.
func RedactURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://" + u.Host + "/***"
}

// redactMessage removes rawURL from msg, strips markup and caps the length.
func redactMessage(msg, rawURL string) string {
	if rawURL = strings.TrimSpace(rawURL); rawURL != "" {
		msg = strings.ReplaceAll(msg, rawURL, RedactURL(rawURL))
		if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
			msg = strings.ReplaceAll(msg, u.RawQuery, "***")
		}
	}
	return htmltext.Snippet(msg, maxMessageRunes)
}

func extension(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}
