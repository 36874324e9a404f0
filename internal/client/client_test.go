package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/ingest"
	"github.com/KaramelBytes/twincheck-cli/internal/report"
	"github.com/KaramelBytes/twincheck-cli/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const header = "polymer_percent;fiber_percent;E_modulus;max_force;strength;elongation\n"

func units(name, body string) []ingest.Unit {
	return []ingest.Unit{{Name: name, Data: []byte(body)}}
}

func TestCompare_AgainstServer(t *testing.T) {
	ts := httptest.NewServer(server.New(server.DefaultConfig(), nil).Routes())
	defer ts.Close()
	c := NewClient(ts.URL, 5*time.Second, 1, time.Millisecond, time.Millisecond)

	row := header + "20;70;240;100;500;5\n20;71;240;102;505;5\n"
	rep, err := c.Compare(context.Background(), units("v.csv", row), units("r.csv", row), "", analysis.DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, 2, rep.TotalVirtual)
	assert.GreaterOrEqual(t, rep.Matched, 2)
	assert.Len(t, rep.Properties, 3)
	assert.Len(t, rep.Inputs, 2)

	_, err = c.Compare(context.Background(),
		units("v.csv", header+"20;70;240;100;500;5\n"),
		units("r.csv", header+"30;70;240;100;500;5\n"),
		"", analysis.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrNoMatches))

	_, err = c.Compare(context.Background(), units("v.csv", "x\n1\n"), units("r.csv", row), "", analysis.DefaultOptions())
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "invalid_input", bad.Code)
}

func TestCompare_SendsAlphaAndSheet(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		got = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got[k] = v[0]
		}
		_ = json.NewEncoder(w).Encode(analysis.Report{ID: "run-1"})
	}))
	defer ts.Close()
	c := NewClient(ts.URL, time.Second, 1, time.Millisecond, time.Millisecond)

	opt := analysis.DefaultOptions()
	opt.Alpha = 0.01
	_, err := c.Compare(context.Background(), units("v.xlsx", "a"), units("r.xlsx", "b"), "Lab", opt)
	require.NoError(t, err)
	assert.Equal(t, "0.01", got["alpha"])
	assert.Equal(t, "Lab", got["sheet"])

	_, err = c.Compare(context.Background(), units("v.csv", "a"), units("r.csv", "b"), "", opt)
	require.NoError(t, err)
	assert.NotContains(t, got, "sheet")
}

func TestCompare_RemoteReportFillsWorkbook(t *testing.T) {
	ts := httptest.NewServer(server.New(server.DefaultConfig(), nil).Routes())
	defer ts.Close()
	c := NewClient(ts.URL, 5*time.Second, 1, time.Millisecond, time.Millisecond)

	row := header + "20;70;240;100;500;5\n20;71;240;102;505;5\n"
	rep, err := c.Compare(context.Background(), units("v.csv", row), units("r.csv", row), "", analysis.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteAnalysis(&buf, rep))
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	matches, err := f.GetRows("Matches")
	require.NoError(t, err)
	assert.Len(t, matches, 1+rep.Matched)
}

func TestCompare_RetriesOnServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "busy", "message": "try later"})
			return
		}
		_ = json.NewEncoder(w).Encode(analysis.Report{ID: "run-1", Matched: 1})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 3, time.Millisecond, 5*time.Millisecond)
	rep, err := c.Compare(context.Background(), units("v.csv", "a"), units("r.csv", "b"), "", analysis.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "run-1", rep.ID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCompare_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, 2, time.Millisecond, time.Millisecond)
	_, err := c.Compare(context.Background(), units("v.csv", "a"), units("r.csv", "b"), "", analysis.DefaultOptions())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "boom", se.Message)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCompare_UnitReadErrorFailsFast(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, 1, 0, 0)
	_, err := c.Compare(context.Background(), []ingest.Unit{{Name: "v.csv", Err: errors.New("gone")}}, nil, "", analysis.Options{})
	assert.ErrorContains(t, err, "gone")
}

func TestParseRetryAfterSeconds(t *testing.T) {
	s, err := parseRetryAfterSeconds("3")
	require.NoError(t, err)
	assert.Equal(t, 3, s)
	_, err = parseRetryAfterSeconds("soon")
	assert.Error(t, err)
}
