package blockcheck

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/FranksOps/shopscout/pkg/httpclient"
	"github.com/PuerkitoBio/goquery"
)

// Detector examines a response to determine whether a bot protection
// mechanism blocked or challenged the request.
type Detector func(res *httpclient.Response) (detected bool, source string)

// Verdict is the outcome of Analyze.
type Verdict struct {
	Blocked bool
	Source  string
	// Title is the <title> of an HTML body, if any. Challenge pages usually
	// say what they are there.
	Title string
}

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectCaptchaPage,
	}
}

// Analyze runs the response through all provided detectors and stops at the
// first hit.
func Analyze(res *httpclient.Response, detectors []Detector) Verdict {
	if res == nil {
		return Verdict{}
	}
	v := Verdict{Title: PageTitle(res)}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			v.Blocked = true
			v.Source = source
			return v
		}
	}
	return v
}

// PageTitle returns the trimmed <title> text when the body looks like HTML.
func PageTitle(res *httpclient.Response) string {
	if res == nil || !looksLikeHTML(res) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func looksLikeHTML(res *httpclient.Response) bool {
	if strings.Contains(strings.ToLower(res.Header.Get("Content-Type")), "text/html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(res.Body))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res *httpclient.Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(res.Header.Get("Server"))
		if strings.Contains(server, "cloudflare") {
			return true, "Cloudflare"
		}

		if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
			bytes.Contains(res.Body, []byte("cf-turnstile")) ||
			bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(res *httpclient.Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		server := strings.ToLower(res.Header.Get("Server"))
		if strings.Contains(server, "akamai") {
			return true, "Akamai"
		}

		// Akamai often returns a generic "Reference #" block page
		if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(res *httpclient.Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if strings.Contains(strings.ToLower(res.Header.Get("Server")), "datadome") {
			return true, "DataDome"
		}
		if res.Header.Get("X-DataDome") != "" || res.Header.Get("X-DataDome-Response") != "" {
			return true, "DataDome"
		}
		if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(res *httpclient.Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if res.Header.Get("X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}
		if bytes.Contains(res.Body, []byte("client.perimeterx.net")) ||
			bytes.Contains(res.Body, []byte("px-captcha")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}

// detectCaptchaPage catches a 2xx/4xx HTML page where JSON was expected whose
// title mentions a verification step.
func detectCaptchaPage(res *httpclient.Response) (bool, string) {
	title := strings.ToLower(PageTitle(res))
	if title == "" {
		return false, ""
	}
	for _, marker := range []string{"captcha", "verify", "verifikasi", "robot"} {
		if strings.Contains(title, marker) {
			return true, "Captcha"
		}
	}
	return false, ""
}
