package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/curve"
	"github.com/KaramelBytes/twincheck-cli/internal/ingest"
	"github.com/KaramelBytes/twincheck-cli/internal/record"
	"github.com/KaramelBytes/twincheck-cli/internal/report"
	"github.com/KaramelBytes/twincheck-cli/internal/samplecheck"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Inputs  []ingest.UnitResult `json:"inputs,omitempty"`

	TotalVirtual *int `json:"total_virtual,omitempty"`
	Lost         *int `json:"lost_matches,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return false
	}
	return true
}

// formUnits reads every file under the first non-empty field of names.
func formUnits(form *multipart.Form, names ...string) []ingest.Unit {
	for _, name := range names {
		headers := form.File[name]
		if len(headers) == 0 {
			continue
		}
		units := make([]ingest.Unit, 0, len(headers))
		for _, h := range headers {
			u := ingest.Unit{Name: h.Filename}
			f, err := h.Open()
			if err != nil {
				u.Err = fmt.Errorf("open upload: %w", err)
			} else {
				u.Data, err = io.ReadAll(f)
				f.Close()
				if err != nil {
					u.Err = fmt.Errorf("read upload: %w", err)
				}
			}
			units = append(units, u)
		}
		return units
	}
	return nil
}

func formFloat(r *http.Request, key string, def float64) (float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: not a finite number: %q", key, v)
	}
	return f, nil
}

func formInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", key, v)
	}
	return n, nil
}

func formBool(r *http.Request, key string, def bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(r.FormValue(key)))
	switch v {
	case "":
		return def, nil
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s: not a boolean: %q", key, v)
}

func (s *Server) classicAnalysis(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	opt := s.cfg.Analysis
	var err error
	if opt.Tolerance, err = formFloat(r, "error_threshold", opt.Tolerance); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	if opt.PairOnly, err = formBool(r, "pair_only", opt.PairOnly); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	if opt.GroupEpsilon, err = formFloat(r, "group_epsilon", opt.GroupEpsilon); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	if opt.Alpha, err = formFloat(r, "alpha", opt.Alpha); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	if opt.Tolerance < 0 || opt.GroupEpsilon < 0 {
		writeError(w, http.StatusBadRequest, "invalid_form", "error_threshold and group_epsilon must not be negative")
		return
	}
	if opt.Alpha != 0 && (opt.Alpha < 0 || opt.Alpha >= 1) {
		writeError(w, http.StatusBadRequest, "invalid_form", "alpha must be in (0, 1)")
		return
	}
	sheet := s.cfg.ResultsSheet
	if v := strings.TrimSpace(r.FormValue("sheet")); v != "" {
		sheet = v
	}

	iopt := ingest.Options{Sheet: sheet, Logger: s.log}
	virt, vres := ingest.Load(formUnits(r.MultipartForm, "virt_files", "virt_file"), record.Virtual, iopt)
	reals, rres := ingest.Load(formUnits(r.MultipartForm, "real_files", "real_file"), record.Real, iopt)
	inputs := append(vres, rres...)
	for _, chk := range []error{ingest.Check(record.Virtual, vres), ingest.Check(record.Real, rres)} {
		if chk != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: chk.Error(), Inputs: inputs})
			return
		}
	}

	rep, err := analysis.Run(virt, reals, opt)
	if errors.Is(err, analysis.ErrNoMatches) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:        "no_matches",
			Message:      "no virtual record matched a real record under the tolerance",
			Inputs:       inputs,
			TotalVirtual: &rep.TotalVirtual,
			Lost:         &rep.Lost,
		})
		return
	}
	if err != nil {
		s.log.Error("analysis failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	rep.Inputs = inputs
	s.log.Debug("analysis done",
		zap.String("run", rep.ID),
		zap.Int("matched", rep.Matched),
		zap.Int("lost", rep.Lost))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) neuralAnalysis(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	base := curve.DefaultParams()
	fields := []struct {
		key string
		dst *float64
	}{
		{"polymer_solution_pct", &base.PolymerSolutionPct},
		{"length_mm", &base.LengthMM},
		{"mass_mg", &base.MassMG},
		{"fiber_content_pct", &base.FiberContentPct},
	}
	for _, f := range fields {
		v, err := formFloat(r, f.key, *f.dst)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
			return
		}
		*f.dst = v
	}
	copt := s.cfg.Curve
	n, err := formInt(r, "num_samples", copt.Samples)
	if err != nil || n <= 0 {
		msg := "num_samples must be positive"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusBadRequest, "invalid_form", msg)
		return
	}
	copt.Samples = n

	units := formUnits(r.MultipartForm, "csv_files", "csv_file")
	if len(units) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "no csv_files uploaded")
		return
	}
	var series curve.Series
	for _, u := range units {
		if u.Err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("%s: %v", u.Name, u.Err))
			return
		}
		one, err := curve.LoadCSV(u.Name, u.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		series = series.Append(one)
	}

	curves, mse, err := curve.Generate(s.NewModel(), series, base, copt)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "generation_failed", err.Error())
		return
	}
	s.log.Debug("curves generated", zap.Int("samples", len(curves)), zap.Float64("fit_mse", mse))

	var buf bytes.Buffer
	if err := report.WriteCurves(&buf, curves); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+report.CurvesFilename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) sampleAnalysis(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	skip, err := formInt(r, "skip_initial_rows", s.cfg.SkipRows)
	if err != nil || skip < 0 {
		msg := "skip_initial_rows must not be negative"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusBadRequest, "invalid_form", msg)
		return
	}
	units := formUnits(r.MultipartForm, "excel_files", "excel_file")
	if len(units) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "no excel_files uploaded")
		return
	}
	out := make(map[string][]samplecheck.Result, len(units))
	for _, u := range units {
		if u.Err != nil {
			out[u.Name] = []samplecheck.Result{{Error: u.Err.Error()}}
			continue
		}
		f := samplecheck.CheckFile(u.Name, u.Data, skip)
		if f.Error != "" {
			out[u.Name] = []samplecheck.Result{{Error: f.Error}}
			continue
		}
		out[u.Name] = f.Sheets
	}
	writeJSON(w, http.StatusOK, out)
}
