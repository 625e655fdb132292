package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `version: 1
monitoring:
  type: immediate
storage:
  data_dir: %DATA%
worker:
  limit: 10
  garbage_probability: 0
  concurrency: 1
sites:
  - root_page_id: 1
    domain: www.example.com
    scheme: https
    configurations:
      - name: pages
        table: pages
        fields:
          title: title
      - name: news
        table: tx_news
        fields:
          title: title
`

const testContent = `{"table": "pages", "row": {"uid": 1, "pid": 0, "is_siteroot": 1, "doktype": 1, "tstamp": 100, "title": "Home"}}
{"table": "pages", "row": {"uid": 2, "pid": 1, "doktype": 1, "tstamp": 100, "title": "About"}}
{"table": "pages", "row": {"uid": 3, "pid": 1, "doktype": 1, "hidden": 1, "tstamp": 100, "title": "Draft"}}
{"table": "tx_news", "row": {"uid": 7, "pid": 2, "tstamp": 100, "title": "Launch"}}
`

// setupProject writes a config and a content export into a temp directory
// and returns the config path.
func setupProject(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	cfgPath := filepath.Join(dir, "searchsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.ReplaceAll(testConfig, "%DATA%", dataDir)), 0o644))
	contentPath := filepath.Join(dir, "export.jsonl")
	require.NoError(t, os.WriteFile(contentPath, []byte(testContent), 0o644))
	return cfgPath, contentPath
}

// run executes the root command and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "searchsync %s", strings.Join(args, " "))
	return out
}

type statusJSON struct {
	Monitoring string `json:"monitoring"`
	Sites      []struct {
		Domain   string  `json:"domain"`
		Total    int     `json:"total"`
		Pending  int     `json:"pending"`
		Failed   int     `json:"failed"`
		Progress float64 `json:"progress"`
	} `json:"sites"`
	Events struct {
		Queued  int `json:"queued"`
		Errored int `json:"errored"`
	} `json:"events"`
	Documents uint64 `json:"documents"`
}

func status(t *testing.T, cfgPath string) statusJSON {
	t.Helper()
	var s statusJSON
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--config", cfgPath, "queue", "status", "--json")), &s))
	return s
}

func TestVersionCmd(t *testing.T) {
	out := mustRun(t, "version", "--short")
	assert.NotEmpty(t, strings.TrimSpace(out))

	out = mustRun(t, "version", "--json")
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "go_version")
}

func TestConfigInit(t *testing.T) {
	// Given: no config file yet
	path := filepath.Join(t.TempDir(), "searchsync.yaml")

	// When: initializing twice
	out := mustRun(t, "--config", path, "config", "init")
	assert.Contains(t, out, "wrote "+path)
	_, err := run(t, "--config", path, "config", "init")

	// Then: the second run refuses to overwrite
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	// When: forcing
	out = mustRun(t, "--config", path, "config", "init", "--force")

	// Then: the previous file is backed up
	assert.Contains(t, out, "backed up previous config")

	// And: the written file loads
	out = mustRun(t, "--config", path, "config", "path")
	assert.Equal(t, path, strings.TrimSpace(out))
}

func TestQueueAndWorker_EndToEnd(t *testing.T) {
	cfgPath, contentPath := setupProject(t)

	// Given: imported content
	out := mustRun(t, "--config", cfgPath, "content", "import", contentPath)
	assert.Contains(t, out, "imported 4 records")

	// When: initializing the queue
	out = mustRun(t, "--config", cfgPath, "queue", "init")
	assert.Contains(t, out, "www.example.com news: ok")
	assert.Contains(t, out, "www.example.com pages: ok")

	// Then: visible pages and the news record are pending
	st := status(t, cfgPath)
	require.Len(t, st.Sites, 1)
	assert.Equal(t, "immediate", st.Monitoring)
	assert.Equal(t, 3, st.Sites[0].Total)
	assert.Equal(t, 3, st.Sites[0].Pending)
	assert.Zero(t, st.Documents)

	// When: the worker runs
	out = mustRun(t, "--config", cfgPath, "worker", "run")
	assert.Contains(t, out, "3 indexed, 0 failed")

	// Then: everything is indexed
	st = status(t, cfgPath)
	assert.Equal(t, 0, st.Sites[0].Pending)
	assert.Equal(t, float64(100), st.Sites[0].Progress)
	assert.Equal(t, uint64(3), st.Documents)

	// And: the plain status names the site
	out = mustRun(t, "--config", cfgPath, "queue", "status")
	assert.Contains(t, out, "www.example.com")
	assert.Contains(t, out, "100.0%")

	out = mustRun(t, "--config", cfgPath, "queue", "errors")
	assert.Contains(t, out, "no failed items")
}

func TestEmit_ImmediateMode(t *testing.T) {
	cfgPath, contentPath := setupProject(t)
	mustRun(t, "--config", cfgPath, "content", "import", contentPath)

	// When: a page update is emitted in immediate mode
	out := mustRun(t, "--config", cfgPath, "emit", "record_updated", "--table", "pages", "--uid", "2")

	// Then: it is processed and the page is queued
	assert.Contains(t, out, "record_updated pages:2 processed")
	st := status(t, cfgPath)
	assert.Equal(t, 1, st.Sites[0].Total)
	assert.Equal(t, 0, st.Events.Queued)
}

func TestEmit_DelayedModeAndDrain(t *testing.T) {
	cfgPath, contentPath := setupProject(t)
	t.Setenv("SEARCHSYNC_MONITORING_TYPE", "delayed")
	mustRun(t, "--config", cfgPath, "content", "import", contentPath)

	// When: events are emitted in delayed mode
	out := mustRun(t, "--config", cfgPath, "emit", "record_updated", "--table", "tx_news", "--uid", "7", "--field", "hidden=0")
	assert.Contains(t, out, "tx_news:7 queued")

	// Then: they wait in the event queue
	st := status(t, cfgPath)
	assert.Equal(t, 1, st.Events.Queued)
	assert.Equal(t, 0, st.Sites[0].Total)

	out = mustRun(t, "--config", cfgPath, "events", "list")
	assert.Contains(t, out, "tx_news:7")

	// When: forcing bypasses the queue
	out = mustRun(t, "--config", cfgPath, "emit", "record_updated", "--table", "pages", "--uid", "2", "--force")
	assert.Contains(t, out, "pages:2 processed")

	// When: draining
	out = mustRun(t, "--config", cfgPath, "events", "drain")
	assert.Contains(t, out, "processed 1 events, 0 failed")

	// Then: both records are in the index queue and the event queue is empty
	st = status(t, cfgPath)
	assert.Equal(t, 0, st.Events.Queued)
	assert.Equal(t, 2, st.Sites[0].Total)

	out = mustRun(t, "--config", cfgPath, "events", "list")
	assert.Contains(t, out, "no queued events")
}

func TestEmit_Validation(t *testing.T) {
	cfgPath, _ := setupProject(t)

	_, err := run(t, "--config", cfgPath, "emit", "record_exploded", "--uid", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")

	_, err = run(t, "--config", cfgPath, "emit", "record_updated")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--uid")

	_, err = run(t, "--config", cfgPath, "emit", "record_updated", "--uid", "1", "--field", "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name=value")
}

func TestQueueStatus_UnknownSite(t *testing.T) {
	cfgPath, _ := setupProject(t)

	_, err := run(t, "--config", cfgPath, "queue", "status", "--site", "nope.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no site matches "nope.example.com"`)

	out := mustRun(t, "--config", cfgPath, "queue", "status", "--site", "1", "--json")
	assert.Contains(t, out, "www.example.com")
}

func TestEventsRetryAndClear(t *testing.T) {
	cfgPath, _ := setupProject(t)
	t.Setenv("SEARCHSYNC_MONITORING_TYPE", "delayed")

	mustRun(t, "--config", cfgPath, "emit", "record_deleted", "--table", "tx_news", "--uid", "7")
	mustRun(t, "--config", cfgPath, "emit", "page_moved", "--uid", "2")

	out := mustRun(t, "--config", cfgPath, "events", "retry")
	assert.Contains(t, out, "reset 0 events")

	out = mustRun(t, "--config", cfgPath, "events", "clear")
	assert.Contains(t, out, "removed 2 events")
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"hidden=1", "title=Hello=World", "fe_group="})
	require.NoError(t, err)

	n, ok := fields.Int("hidden")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Hello=World", fields.Text("title"))
	assert.True(t, fields.Has("fe_group"))
}

func TestDaemonStatus_NotRunning(t *testing.T) {
	cfgPath, _ := setupProject(t)
	out := mustRun(t, "--config", cfgPath, "daemon", "status")
	assert.Equal(t, "not running\n", out)

	_, err := run(t, "--config", cfgPath, "daemon", "stop")
	assert.Error(t, err)
}
