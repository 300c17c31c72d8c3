package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleConferenceJSON() string {
	return `{
		"title": "Test Conf",
		"tracks": [{"name": "main"}, {"name": "hallway"}],
		"days": [
			{
				"rooms": {
					"Room A": [
						{"code": "talk-1", "title": "Talk One", "track": "main", "date": "2026-07-29T10:00:00+09:00", "duration": "00:30", "room": "Room A"},
						{"code": "talk-2", "title": "Talk Two", "track": "hallway", "date": "2026-07-29T11:00:00+09:00", "duration": "00:30", "room": "Room A"}
					]
				}
			}
		]
	}`
}

func TestParseConference_FiltersTracks(t *testing.T) {
	conf, err := parseConference(sampleConferenceJSON(), map[string]bool{"hallway": true})
	require.NoError(t, err)
	require.Len(t, conf.Tracks, 1)
	require.Equal(t, "main", conf.Tracks[0].Name)
}

func TestParseConference_InvalidJSON(t *testing.T) {
	_, err := parseConference("not json", nil)
	require.Error(t, err)
}

func TestConference_GetEventByID(t *testing.T) {
	conf, err := parseConference(sampleConferenceJSON(), nil)
	require.NoError(t, err)

	e, err := conf.GetEventByID("talk-2")
	require.NoError(t, err)
	require.Equal(t, "Talk Two", e.Title)

	_, err = conf.GetEventByID("nonexistent")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestGetOngoingEvents_FiltersByTrackAndTime(t *testing.T) {
	conf, err := parseConference(sampleConferenceJSON(), map[string]bool{"hallway": true})
	require.NoError(t, err)

	fakeNow, err := time.Parse(time.RFC3339, "2026-07-29T10:10:00+09:00")
	require.NoError(t, err)
	p := NewProvider("http://unused", time.Minute, []string{"hallway"}, &fakeNow, nil)

	ongoing := p.GetOngoingEvents(conf)
	require.Len(t, ongoing, 1)
	require.Equal(t, "talk-1", ongoing[0].Code)
}

func TestGetOngoingEvents_ExcludesEventsNotYetStarted(t *testing.T) {
	conf, err := parseConference(sampleConferenceJSON(), nil)
	require.NoError(t, err)

	fakeNow, err := time.Parse(time.RFC3339, "2026-07-29T09:00:00+09:00")
	require.NoError(t, err)
	p := NewProvider("http://unused", time.Minute, nil, &fakeNow, nil)

	require.Empty(t, p.GetOngoingEvents(conf))
}

func TestGetOngoingEvents_ExcludesEventsAlreadyEnded(t *testing.T) {
	conf, err := parseConference(sampleConferenceJSON(), nil)
	require.NoError(t, err)

	fakeNow, err := time.Parse(time.RFC3339, "2026-07-29T10:45:00+09:00")
	require.NoError(t, err)
	p := NewProvider("http://unused", time.Minute, nil, &fakeNow, nil)

	ongoing := p.GetOngoingEvents(conf)
	var codes []string
	for _, e := range ongoing {
		codes = append(codes, e.Code)
	}
	require.NotContains(t, codes, "talk-1")
}

func TestParseDuration(t *testing.T) {
	require.Equal(t, 90*time.Minute, parseDuration("01:30"))
	require.Equal(t, time.Duration(0), parseDuration("garbage"))
}
