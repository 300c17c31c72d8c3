// Package schedule fetches the conference document that defines the room
// catalog, fronted by a TTL cache so a refresh only triggers an HTTP call
// once the cache has expired. Grounded on
// original_source/src/pretalx_api_wrapper/conference.py; the package-level
// CONFERENCE singleton there is rebuilt here as a constructed Provider
// per SPEC_FULL.md §9's singleton redesign note.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"eum-captions/internal/cache"
)

// ErrEventNotFound is returned by GetEventByID when no event matches.
var ErrEventNotFound = errors.New("schedule: event not found")

// Track is a filtered conference track.
type Track struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Event is one scheduled talk/session.
type Event struct {
	Code     string `json:"code"`
	Title    string `json:"title"`
	Track    string `json:"track"`
	Date     string `json:"date"` // ISO8601
	Duration string `json:"duration"` // "HH:MM"
	Room     string `json:"room"`
}

// Conference is the parsed schedule document.
type Conference struct {
	Title    string   `json:"title"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Days     int      `json:"daysCount"`
	URL      string   `json:"url"`
	Timezone string   `json:"time_zone_name"`
	Colors   []string `json:"colors"`
	Tracks   []Track  `json:"tracks"`
	AllDays  []day    `json:"days"`
}

type day struct {
	Rooms map[string][]Event `json:"rooms"`
}

// Provider wraps the cached schedule document and exposes the read
// operations the Room Manager needs.
type Provider struct {
	url       string
	cacheTime time.Duration
	filter    map[string]bool
	fakeNow   *time.Time

	httpClient *http.Client
	cache      *cache.Cache
	log        *zap.SugaredLogger
}

// NewProvider constructs a schedule provider. filterTracks, if non-nil,
// names tracks to exclude from the parsed Conference (mirroring
// FILTER_TRACKS in the original). fakeNow overrides "now" for testing
// ongoing-event computations; pass nil in production.
func NewProvider(url string, cacheTime time.Duration, filterTracks []string, fakeNow *time.Time, logger *zap.SugaredLogger) *Provider {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	filter := make(map[string]bool, len(filterTracks))
	for _, t := range filterTracks {
		filter[t] = true
	}
	return &Provider{
		url:        url,
		cacheTime:  cacheTime,
		filter:     filter,
		fakeNow:    fakeNow,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache.New(cacheTime, cacheTime),
		log:        logger,
	}
}

// UpdateData refetches the schedule document only if the cache entry has
// expired, returning the parsed Conference either way.
func (p *Provider) UpdateData() (*Conference, error) {
	const key = "schedule_document"

	if body, ok := p.cache.Get(key); ok {
		return parseConference(body, p.filter)
	}

	resp, err := p.httpClient.Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read schedule body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch schedule: unexpected status %d", resp.StatusCode)
	}

	p.cache.SetTTL(key, string(body), p.cacheTime)
	return parseConference(string(body), p.filter)
}

func parseConference(body string, filter map[string]bool) (*Conference, error) {
	var conf Conference
	if err := json.Unmarshal([]byte(body), &conf); err != nil {
		return nil, fmt.Errorf("parse schedule document: %w", err)
	}

	if len(filter) > 0 {
		filtered := conf.Tracks[:0]
		for _, t := range conf.Tracks {
			if !filter[t.Name] {
				filtered = append(filtered, t)
			}
		}
		conf.Tracks = filtered
	}
	return &conf, nil
}

func (c *Conference) trackNames() map[string]bool {
	names := make(map[string]bool, len(c.Tracks))
	for _, t := range c.Tracks {
		names[t.Name] = true
	}
	return names
}

// AllEvents flattens every room's events across every day into one list.
func (c *Conference) AllEvents() []Event {
	var events []Event
	for _, d := range c.AllDays {
		for _, roomEvents := range d.Rooms {
			events = append(events, roomEvents...)
		}
	}
	return events
}

// GetEventByID scans for an event with the given code.
func (c *Conference) GetEventByID(code string) (Event, error) {
	for _, e := range c.AllEvents() {
		if e.Code == code {
			return e, nil
		}
	}
	return Event{}, ErrEventNotFound
}

// GetOngoingEvents returns events in a filtered track, scheduled today,
// whose offset from now lies in (-31min, +duration), capped to events
// starting within 12 hours, sorted by start time. now is the real clock
// unless p.fakeNow overrides it.
func (p *Provider) GetOngoingEvents(c *Conference) []Event {
	now := time.Now()
	if p.fakeNow != nil {
		now = *p.fakeNow
	}

	tracks := c.trackNames()
	var ongoing []Event
	for _, e := range c.AllEvents() {
		if len(tracks) > 0 && !tracks[e.Track] {
			continue
		}
		if !eventIsOngoing(now, e) {
			continue
		}
		ongoing = append(ongoing, e)
	}
	sort.Slice(ongoing, func(i, j int) bool {
		return ongoing[i].Date < ongoing[j].Date
	})
	return ongoing
}

func eventIsOngoing(now time.Time, e Event) bool {
	start, err := time.Parse(time.RFC3339, e.Date)
	if err != nil {
		return false
	}
	if start.Format("2006-01-02") != now.Format("2006-01-02") {
		return false
	}

	duration := parseDuration(e.Duration)
	timeMissing := now.Sub(start)
	if timeMissing > 12*time.Hour {
		return false
	}
	return timeMissing > -31*time.Minute && timeMissing < duration
}

func parseDuration(hhmm string) time.Duration {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}
