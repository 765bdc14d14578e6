package store

import (
	"bufio"
	"bytes"
	"testing"

	"sitetrack/internal/model"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJSONLGZRoundTrip(t *testing.T) {
	events := []*model.TrackingEvent{
		{VisitID: "a", Type: "pageview", Payload: `{"x":1}`, URL: "/", Ts: 100},
		{VisitID: "a", Type: "click", Payload: `{"y":2}`, URL: "/about", Ts: 101},
		{VisitID: "b", Type: "scroll", Payload: `{"depth":0.8}`, URL: "/", Ts: 102},
	}

	data, err := EncodeJSONLGZ(events)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	var decoded []*model.TrackingEvent
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		var ev model.TrackingEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		decoded = append(decoded, &ev)
	}
	require.NoError(t, sc.Err())

	require.Len(t, decoded, 3)
	assert.Equal(t, events[0], decoded[0])
	assert.Equal(t, events[2], decoded[2])
}

func TestEncodeJSONLGZUnsetEnrichmentStaysUnset(t *testing.T) {
	w := 1920
	visits := []*model.VisitRecord{
		{VisitID: "abc", Path: "/", Client: &model.ClientInfo{ScreenW: &w}},
		{VisitID: "def", Path: "/pricing"},
	}

	data, err := EncodeJSONLGZ(visits)
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	var lines [][]byte
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	require.Len(t, lines, 2)

	var first model.VisitRecord
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NotNil(t, first.Client)
	assert.Equal(t, 1920, *first.Client.ScreenW)
	assert.Nil(t, first.Client.ScreenH)

	// Sparse fields are omitted entirely, not serialized as nulls.
	assert.NotContains(t, string(lines[0]), "screen_h")
	assert.NotContains(t, string(lines[1]), `"client"`)
}

func TestEncodeJSONLGZEmptyBatch(t *testing.T) {
	data, err := EncodeJSONLGZ([]*model.TrackingEvent{})
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	sc := bufio.NewScanner(gz)
	assert.False(t, sc.Scan())
}
