package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/engine/capture"
	"Go2NetPulse/internal/export"
	"Go2NetPulse/internal/metrics"
	"Go2NetPulse/internal/model"
	"Go2NetPulse/internal/pkttest"
	"Go2NetPulse/internal/query"
	pcapsrc "Go2NetPulse/pkg/pcap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	devices   []model.Device
	err       error
	lastRange string
}

func (f *fakeScanner) Scan(_ context.Context, ipRange string) ([]model.Device, error) {
	f.lastRange = ipRange
	if f.err != nil {
		return nil, f.err
	}
	return f.devices, nil
}

func (f *fakeScanner) Devices() []model.Device {
	if f.devices == nil {
		return []model.Device{}
	}
	return f.devices
}

type testEnv struct {
	engine  *capture.Engine
	src     *pkttest.ChanSource
	scanner *fakeScanner
	router  http.Handler
	devices []string
}

func newTestEnv(t *testing.T, apiCfg config.APIConfig) *testEnv {
	t.Helper()
	env := &testEnv{src: pkttest.NewChanSource(), scanner: &fakeScanner{}}

	reg := prometheus.NewRegistry()
	env.engine = capture.New(capture.Options{
		Opener: func(device string) (pcapsrc.Source, error) {
			env.devices = append(env.devices, device)
			if device == "missing0" {
				return nil, errors.New("missing0: No such device exists")
			}
			return env.src, nil
		},
		Interface: "eth0",
		Metrics:   metrics.New(reg),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.engine.Shutdown(ctx)
	})

	env.router = NewRouter(Deps{
		Controller: env.engine,
		Querier:    query.NewQuerier(env.engine.Reader(), env.engine),
		Scanner:    env.scanner,
		Gatherer:   reg,
		Config:     apiCfg,
	})
	return env
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) waitForPackets(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.engine.Reader().Stats().TotalPackets == n
	}, 2*time.Second, 5*time.Millisecond)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	decode(t, rec, &status)
	assert.Equal(t, statusResponse{Status: "started", Message: "Packet capture started"}, status)
	assert.Equal(t, []string{"eth0"}, env.devices)

	var st model.Stats
	decode(t, env.do(http.MethodGet, "/api/stats", ""), &st)
	assert.True(t, st.IsCapturing)

	rec = env.do(http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &status)
	assert.Equal(t, "stopped", status.Status)

	decode(t, env.do(http.MethodGet, "/api/stats", ""), &st)
	assert.False(t, st.IsCapturing)
}

func TestStart_InterfaceFromBodyOrQuery(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/start", `{"interface":"wlan0"}`).Code)
	env.do(http.MethodPost, "/api/stop", "")
	require.NoError(t, env.engine.Reset())
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/start?interface=eth1", "").Code)

	assert.Equal(t, []string{"wlan0", "eth1"}, env.devices)
}

func TestStart_OpenFailure(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodPost, "/api/start", `{"interface":"missing0"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "No such device")
	assert.False(t, env.engine.IsCapturing())
}

func TestStart_BadBody(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/start", "{not json").Code)
}

func TestQueries(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/start", "").Code)

	for _, size := range []int{100, 200, 300} {
		env.src.Packets <- pkttest.TCP("10.0.0.1", "10.0.0.2", 51000, 80, size)
	}
	env.src.Packets <- pkttest.UDP("10.0.0.3", "10.0.0.2", 5353, 53)
	env.waitForPackets(t, 4)

	var st model.Stats
	decode(t, env.do(http.MethodGet, "/api/stats", ""), &st)
	assert.EqualValues(t, 4, st.TotalPackets)
	assert.Equal(t, 2, st.ActiveIPs)

	var dist map[string]uint64
	decode(t, env.do(http.MethodGet, "/api/protocol-dist", ""), &dist)
	assert.Equal(t, map[string]uint64{"HTTP": 3, "DNS": 1}, dist)

	var talkers []model.Talker
	decode(t, env.do(http.MethodGet, "/api/top-talkers", ""), &talkers)
	assert.Equal(t, []model.Talker{{IP: "10.0.0.1", Count: 3}, {IP: "10.0.0.3", Count: 1}}, talkers)
	decode(t, env.do(http.MethodGet, "/api/top-talkers?limit=1", ""), &talkers)
	assert.Len(t, talkers, 1)

	var packets []model.PacketRecord
	decode(t, env.do(http.MethodGet, "/api/packets?limit=2", ""), &packets)
	require.Len(t, packets, 2)
	assert.Equal(t, 300, packets[0].Size)
	assert.Equal(t, "DNS", packets[1].Protocol)
}

func TestQueries_BadLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	for _, target := range []string{"/api/top-talkers?limit=x", "/api/packets?limit=0", "/api/packets?limit=-3"} {
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, target, "").Code, target)
	}
}

func TestQueries_EmptyStore(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	assert.JSONEq(t, `{}`, env.do(http.MethodGet, "/api/protocol-dist", "").Body.String())
	assert.JSONEq(t, `[]`, env.do(http.MethodGet, "/api/top-talkers", "").Body.String())
	assert.JSONEq(t, `[]`, env.do(http.MethodGet, "/api/packets", "").Body.String())
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/start", "").Code)
	env.src.Packets <- pkttest.ICMP("10.0.0.1", "10.0.0.2")
	env.waitForPackets(t, 1)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/reset", "").Code)

	env.do(http.MethodPost, "/api/stop", "")
	rec := env.do(http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	decode(t, rec, &status)
	assert.Equal(t, "reset", status.Status)

	var st model.Stats
	decode(t, env.do(http.MethodGet, "/api/stats", ""), &st)
	assert.Zero(t, st.TotalPackets)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/start", "").Code)
	env.src.Packets <- pkttest.TCP("10.0.0.1", "10.0.0.2", 51000, 443, 120)
	env.src.Packets <- pkttest.UDP("10.0.0.4", "10.0.0.2", 68, 67)
	env.waitForPackets(t, 2)

	rec := env.do(http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="network_capture_\d{8}_\d{6}\.csv"$`, rec.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Header, rows[0])
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "51000", "443", "HTTPS", "120"}, rows[1][1:])
	assert.Equal(t, "DHCP", rows[2][5])
}

func TestExport_NoData(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodGet, "/api/export", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No data to export"}`, rec.Body.String())
}

func TestScanAndDevices(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	assert.JSONEq(t, `{"devices":[]}`, env.do(http.MethodGet, "/api/devices", "").Body.String())

	env.scanner.devices = []model.Device{{IP: "192.168.1.1", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "router"}}
	rec := env.do(http.MethodPost, "/api/scan", `{"range":"192.168.1.0/24"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"devices":[{"ip":"192.168.1.1","mac":"aa:bb:cc:dd:ee:ff","hostname":"router"}],"count":1}`, rec.Body.String())
	assert.Equal(t, "192.168.1.0/24", env.scanner.lastRange)

	env.do(http.MethodPost, "/api/scan", "")
	assert.Equal(t, "", env.scanner.lastRange)

	assert.JSONEq(t, `{"devices":[{"ip":"192.168.1.1","mac":"aa:bb:cc:dd:ee:ff","hostname":"router"}]}`,
		env.do(http.MethodGet, "/api/devices", "").Body.String())
}

func TestScan_Failure(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	env.scanner.err = errors.New("could not open handle")

	assert.Equal(t, http.StatusInternalServerError, env.do(http.MethodPost, "/api/scan", "").Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{CORSOrigin: "http://localhost:3000"})

	rec := env.do(http.MethodGet, "/api/stats", "")
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(http.MethodOptions, "/api/start", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.False(t, env.engine.IsCapturing())
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodGet, "/api/start", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/start", "").Code)
	env.src.Packets <- pkttest.UDP("10.0.0.1", "10.0.0.2", 40000, 53)
	env.waitForPackets(t, 1)

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ns_monitor_packets_total{protocol="DNS"} 1`)
	assert.Contains(t, rec.Body.String(), "ns_monitor_capture_active 1")
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>monitor</h1>"), 0644))
	env := newTestEnv(t, config.APIConfig{StaticDir: dir})

	rec := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "monitor")

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/stats", "").Code)
}
