package session

import "github.com/jmylchreest/sessionkeeper/internal/browser"

// EventKind identifies what a bus event carries.
type EventKind int

const (
	EventTargetCreated EventKind = iota + 1
	EventPageLoaded
	EventFrameNavigated
	EventScrapeProgress
)

func (k EventKind) String() string {
	switch k {
	case EventTargetCreated:
		return "target_created"
	case EventPageLoaded:
		return "page_loaded"
	case EventFrameNavigated:
		return "frame_navigated"
	case EventScrapeProgress:
		return "scrape_progress"
	default:
		return "unknown"
	}
}

// ProgressEvent is a scrape phase reported by an engine for one identity.
type ProgressEvent struct {
	Identity string `json:"identity"`
	Phase    string `json:"phase"`
}

// Event is delivered to bus handlers. Page and URL are set for browser
// events, Progress for EventScrapeProgress.
type Event struct {
	Kind     EventKind
	Page     browser.Page
	URL      string
	Progress ProgressEvent
}

// fromBrowser maps a browser event onto the bus. ok is false for events the
// bus does not carry.
func fromBrowser(ev browser.Event) (Event, bool) {
	var kind EventKind
	switch ev.Kind {
	case browser.EventTargetCreated:
		kind = EventTargetCreated
	case browser.EventPageLoaded:
		kind = EventPageLoaded
	case browser.EventFrameNavigated:
		kind = EventFrameNavigated
	default:
		return Event{}, false
	}
	return Event{Kind: kind, Page: ev.Page, URL: ev.URL}, true
}
