package browser

import (
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/target"
)

// mainFrame returns the frame id of a page target's top level frame, which
// Chrome gives the same id as the target.
func mainFrame(id target.ID) cdp.FrameID {
	return cdp.FrameID(id)
}

// responseStage reports whether a paused request already has its response.
func responseStage(e *fetch.EventRequestPaused) bool {
	return e.ResponseStatusCode != 0 || e.ResponseErrorReason != ""
}

// pausedNavigation returns the URL a paused main frame request is about to
// navigate to, if the hook has to see it.
//
// At the request stage that is the request itself. At the response stage only
// redirects leaving http(s) count: Chrome hands them to the external protocol
// handler without ever pausing the follow-up request.
func pausedNavigation(e *fetch.EventRequestPaused) (string, bool) {
	if !responseStage(e) {
		return e.Request.URL + e.Request.URLFragment, true
	}
	switch e.ResponseStatusCode {
	case 301, 302, 303, 307, 308:
	default:
		return "", false
	}
	for _, h := range e.ResponseHeaders {
		if strings.EqualFold(h.Name, "Location") && external(h.Value) {
			return h.Value, true
		}
	}
	return "", false
}

// external reports whether raw is an absolute URL whose scheme Chrome does
// not load over the network, such as an app's custom redirect scheme.
func external(raw string) bool {
	scheme, _, ok := strings.Cut(raw, ":")
	if !ok || scheme == "" || strings.ContainsAny(scheme, "/?#") {
		return false
	}
	switch strings.ToLower(scheme) {
	case "http", "https":
		return false
	}
	return true
}
