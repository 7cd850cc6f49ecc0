package media

import (
	"net/url"
	"strings"

	"contentengine/internal/config"
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

const mimeSVG = "image/svg+xml"

var allowedExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true}

// Policy holds the URL and content rules for remote images.
type Policy struct {
	EnforceAllowlist bool
	AllowedHosts     []string
	AllowSVG         bool
}

// PolicyFromSettings builds a Policy from the image settings.
func PolicyFromSettings(s config.Images) Policy {
	hosts := make([]string, 0, len(s.AllowedHosts))
	for _, h := range s.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return Policy{
		EnforceAllowlist: s.EnforceHostAllowlist,
		AllowedHosts:     hosts,
		AllowSVG:         s.AllowSVG,
	}
}

// Validate checks rawURL in order: non-empty and parseable, http(s) scheme,
// then the allow-list rules when enforcement is on.
func (p Policy) Validate(rawURL string) (*url.URL, *Error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, newError(CodeInvalidURL, "Empty image URL.", "", nil)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, newError(CodeInvalidURL, "Invalid image URL.", rawURL, nil)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, newError(CodeInvalidScheme, "Image URL must be http or https.", rawURL, nil)
	}
	if e := p.CheckReliability(u); e != nil {
		return nil, e
	}
	return u, nil
}

// CheckReliability applies the allow-list rules: https only, allow-listed
// host, direct image extension. It passes everything when enforcement is off.
func (p Policy) CheckReliability(u *url.URL) *Error {
	if !p.EnforceAllowlist {
		return nil
	}
	raw := u.String()
	if strings.ToLower(u.Scheme) != "https" {
		return newError(CodeNotHTTPS, "Image URL must be HTTPS only for reliability.", raw, nil)
	}
	if !p.hostAllowed(u.Hostname()) {
		return newError(CodeHostNotAllowed, "Image host is not on the allowed list.", raw, nil)
	}
	if !allowedExtensions[extension(u.Path)] {
		return newError(CodeInvalidExtension, "Image URL must be a direct file ending in .jpg, .jpeg, .png, or .webp.", raw, nil)
	}
	return nil
}

// Allowed reports whether rawURL passes Validate.
func (p Policy) Allowed(rawURL string) bool {
	_, err := p.Validate(rawURL)
	return err == nil
}

// MIMEAllowed reports whether content of the given type may be stored.
func (p Policy) MIMEAllowed(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if allowedMIME[mime] {
		return true
	}
	return mime == mimeSVG && p.AllowSVG
}

func (p Policy) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	for _, h := range p.AllowedHosts {
		if h == host {
			return true
		}
	}
	return false
}

// ExtensionForMIME returns the file extension used when a URL carries none.
func ExtensionForMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case mimeSVG:
		return "svg"
	default:
		return "jpg"
	}
}
