package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/quake-watch/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batch = `[
  {"id":"far","latitude":0,"longitude":40,"magnitude":5.5,"depth":10,"time":2,"place":"Indian Ocean","risk":"High"},
  {"id":"near","latitude":0,"longitude":1,"magnitude":4.2,"depth":8,"time":1,"place":"Gulf of Guinea","risk":"low"},
  {"id":"nowhere","magnitude":3.1,"depth":2,"time":3,"place":"unknown","risk":"?"}
]`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runRank(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_JSONWithObserver(t *testing.T) {
	code, out, errOut := runRank(t, "-file", writeFile(t, batch), "-lat", "0", "-lon", "0", "-json")
	require.Equal(t, 0, code, errOut)

	var v display.ViewResponse
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.Len(t, v.Events, 3)
	assert.Equal(t, "near", v.Events[0].ID)
	assert.Equal(t, "111.19", v.Events[0].DistanceLabel)
	assert.True(t, v.Events[0].InRadius)
	assert.Equal(t, "nowhere", v.Events[1].ID)
	assert.Equal(t, "far", v.Events[2].ID)
	assert.Equal(t, 1, v.InRadius)
	assert.Equal(t, 3, v.Count)
}

func TestRun_RecencyWithoutObserver(t *testing.T) {
	code, out, errOut := runRank(t, "-file", writeFile(t, batch), "-json")
	require.Equal(t, 0, code, errOut)

	var v display.ViewResponse
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	ids := make([]string, len(v.Events))
	for i, e := range v.Events {
		ids[i] = e.ID
		assert.Nil(t, e.DistanceKm)
	}
	assert.Equal(t, []string{"nowhere", "far", "near"}, ids)
	assert.Nil(t, v.Observer)
}

func TestRun_SnapshotDocumentTable(t *testing.T) {
	doc := `{"count": 3, "events": ` + batch + `}`
	code, out, errOut := runRank(t, "-file", writeFile(t, doc), "-lat", "0", "-lon", "0", "-radius", "5000")
	require.Equal(t, 0, code, errOut)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "DISTANCE_KM")
	assert.Contains(t, lines[1], "far")
	assert.Contains(t, lines[2], "near")
	assert.Contains(t, lines[3], "nowhere")
	assert.Equal(t, "3 events, 2 within 5000 km of 0.0000,0.0000", lines[4])
}

func TestRun_Errors(t *testing.T) {
	path := writeFile(t, batch)
	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"missing file flag", nil, 2, "-file is required"},
		{"radius out of range", []string{"-file", path, "-radius", "100"}, 2, "radius out of range"},
		{"lat without lon", []string{"-file", path, "-lat", "1"}, 2, "given together"},
		{"invalid observer", []string{"-file", path, "-lat", "95", "-lon", "0"}, 2, "invalid coordinates"},
		{"unreadable file", []string{"-file", filepath.Join(t.TempDir(), "absent.json")}, 1, "error:"},
		{"malformed batch", []string{"-file", writeFile(t, `{"count":`)}, 1, "decode snapshot document"},
		{"not an array", []string{"-file", writeFile(t, `"events"`)}, 1, "malformed event payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runRank(t, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, errOut, tt.msg)
		})
	}
}
