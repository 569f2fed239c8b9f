// Package api exposes the computation core over a typed HTTP JSON surface.
// Each write request and read query of the core maps onto one route; errors
// are serialized as {code, message} envelopes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/nusselt.report/internal/db"
	"github.com/banshee-data/nusselt.report/internal/monitoring"
	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// Server serves the experiment API. The core handles its own concurrency;
// handlers simply marshal requests onto it.
type Server struct {
	core *tlc.Core
	db   *db.DB
	mux  *http.ServeMux
}

// NewServer wires a core and the settings store into an HTTP handler.
func NewServer(core *tlc.Core, database *db.DB) *Server {
	s := &Server{core: core, db: database, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeMux returns the underlying mux so callers can add routes before Start.
func (s *Server) ServeMux() *http.ServeMux { return s.mux }

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.logRequests(s.mux)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	monitoring.Logf("api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, lrw.statusCode, time.Since(start))
	})
}

// errorEnvelope is the wire form of a failed request.
type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(kind tlc.ErrorKind) int {
	switch kind {
	case tlc.KindInvalidArgument, tlc.KindInterpolationInvalid:
		return http.StatusBadRequest
	case tlc.KindNotReady:
		return http.StatusNotFound
	case tlc.KindPreconditionUnsatisfied:
		return http.StatusConflict
	case tlc.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// wireCode collapses internal kinds onto the five public error codes.
func wireCode(kind tlc.ErrorKind) string {
	switch kind {
	case tlc.KindInvalidArgument, tlc.KindInterpolationInvalid:
		return "InvalidArgument"
	case tlc.KindNotReady:
		return "NotReady"
	case tlc.KindPreconditionUnsatisfied:
		return "PreconditionUnsatisfied"
	case tlc.KindDecodeFailed, tlc.KindDaqParseFailed, tlc.KindStageFailed, tlc.KindCanceled:
		return "StageFailed"
	default:
		return "Internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := tlc.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(kind))
	json.NewEncoder(w).Encode(errorEnvelope{Code: wireCode(kind), Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("encode response: %v", err)
	}
}

// decode parses a JSON request body into dst.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return tlc.Wrapf(tlc.KindInvalidArgument, err, "invalid request body")
	}
	return nil
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, tlc.Errf(tlc.KindInvalidArgument, "query parameter %q must be an integer, got %q", name, raw)
	}
	return v, nil
}

func floatQuery(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, tlc.Errf(tlc.KindInvalidArgument, "query parameter %q must be a number, got %q", name, raw)
	}
	return v, nil
}

func (s *Server) registerRoutes() {
	// Write requests.
	handleWrite(s, "/api/setting/name", func(body struct {
		Name string `json:"name"`
	}) error {
		return s.core.SetName(body.Name)
	})
	handleWrite(s, "/api/setting/save-root-dir", func(body struct {
		Dir string `json:"dir"`
	}) error {
		return s.core.SetSaveRootDir(body.Dir)
	})
	handleWrite(s, "/api/setting/video-path", func(body struct {
		Path string `json:"path"`
	}) error {
		return s.core.SetVideoPath(body.Path)
	})
	handleWrite(s, "/api/setting/daq-path", func(body struct {
		Path string `json:"path"`
	}) error {
		return s.core.SetDaqPath(body.Path)
	})
	handleWrite(s, "/api/setting/start-frame", func(body struct {
		Frame int `json:"frame"`
	}) error {
		return s.core.SetStartFrame(body.Frame)
	})
	handleWrite(s, "/api/setting/start-row", func(body struct {
		Row int `json:"row"`
	}) error {
		return s.core.SetStartRow(body.Row)
	})
	handleWrite(s, "/api/setting/area", func(body tlc.Area) error {
		return s.core.SetArea(body)
	})
	handleWrite(s, "/api/setting/thermocouples", func(body []tlc.Thermocouple) error {
		return s.core.SetThermocouples(body)
	})
	handleWrite(s, "/api/setting/temperature-regulators", func(body []float64) error {
		return s.core.SetTemperatureRegulators(body)
	})
	handleWrite(s, "/api/setting/interpolation-method", func(body tlc.InterpMethod) error {
		return s.core.SetInterpMethod(body)
	})
	handleWrite(s, "/api/setting/filter-method", func(body tlc.FilterMethod) error {
		return s.core.SetFilterMethod(body)
	})
	handleWrite(s, "/api/setting/iteration-method", func(body tlc.IterMethod) error {
		return s.core.SetIterMethod(body)
	})
	handleWrite(s, "/api/setting/physical", s.applyPhysical)

	// Read queries.
	s.mux.HandleFunc("/api/setting", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.core.GetSetting())
	})
	s.mux.HandleFunc("/api/frame", s.handleFrame)
	s.mux.HandleFunc("/api/daq/row", s.handleDaqRow)
	s.mux.HandleFunc("/api/interp/frame", s.handleInterpFrame)
	s.mux.HandleFunc("/api/green/history", s.handleGreenHistory)
	s.mux.HandleFunc("/api/nu2", s.handleNu2)
	s.mux.HandleFunc("/api/nu2/png", s.handleNu2PNG)
	s.mux.HandleFunc("/api/nu2/point", s.handlePointNu)
	s.mux.HandleFunc("/api/progress", s.handleProgress)

	// Settings store.
	s.mux.HandleFunc("/api/settings", s.handleSettingsList)
	s.mux.HandleFunc("/api/settings/load", s.handleSettingsLoad)
	s.mux.HandleFunc("/api/settings/delete", s.handleSettingsDelete)
}

// handleWrite registers a POST route decoding a JSON body of type B and
// applying it through fn.
func handleWrite[B any](s *Server, path string, fn func(B) error) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body B
		if err := decode(r, &body); err != nil {
			s.writeError(w, err)
			return
		}
		if err := fn(body); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, s.core.GetSetting())
	})
}

// physicalPayload updates any subset of the physical scalars in one request.
type physicalPayload struct {
	PeakTemperature          *float64 `json:"peak_temperature,omitempty"`
	SolidThermalConductivity *float64 `json:"solid_thermal_conductivity,omitempty"`
	SolidThermalDiffusivity  *float64 `json:"solid_thermal_diffusivity,omitempty"`
	CharacteristicLength     *float64 `json:"characteristic_length,omitempty"`
	AirThermalConductivity   *float64 `json:"air_thermal_conductivity,omitempty"`
}

func (s *Server) applyPhysical(body physicalPayload) error {
	if body.PeakTemperature != nil {
		if err := s.core.SetPeakTemperature(*body.PeakTemperature); err != nil {
			return err
		}
	}
	if body.SolidThermalConductivity != nil {
		if err := s.core.SetSolidThermalConductivity(*body.SolidThermalConductivity); err != nil {
			return err
		}
	}
	if body.SolidThermalDiffusivity != nil {
		if err := s.core.SetSolidThermalDiffusivity(*body.SolidThermalDiffusivity); err != nil {
			return err
		}
	}
	if body.CharacteristicLength != nil {
		if err := s.core.SetCharacteristicLength(*body.CharacteristicLength); err != nil {
			return err
		}
	}
	if body.AirThermalConductivity != nil {
		if err := s.core.SetAirThermalConductivity(*body.AirThermalConductivity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	index, err := intQuery(r, "index")
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := s.core.GetFrame(r.Context(), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

func (s *Server) handleDaqRow(w http.ResponseWriter, r *http.Request) {
	index, err := intQuery(r, "index")
	if err != nil {
		s.writeError(w, err)
		return
	}
	row, err := s.core.GetDaqRow(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, row)
}

func (s *Server) handleInterpFrame(w http.ResponseWriter, r *http.Request) {
	index, err := intQuery(r, "index")
	if err != nil {
		s.writeError(w, err)
		return
	}
	vals, h, wd, err := s.core.GetInterpFrame(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"height": h, "width": wd, "values": vals})
}

func (s *Server) handleGreenHistory(w http.ResponseWriter, r *http.Request) {
	y, err := intQuery(r, "y")
	if err != nil {
		s.writeError(w, err)
		return
	}
	x, err := intQuery(r, "x")
	if err != nil {
		s.writeError(w, err)
		return
	}
	hist, err := s.core.GetGreenHistory(y, x)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, hist)
}

func (s *Server) handleNu2(w http.ResponseWriter, r *http.Request) {
	nu, err := s.core.GetNu2()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"height": nu.Height,
		"width":  nu.Width,
		"mean":   nu.Mean,
	})
}

func (s *Server) handleNu2PNG(w http.ResponseWriter, r *http.Request) {
	vmin, err := floatQuery(r, "vmin")
	if err != nil {
		s.writeError(w, err)
		return
	}
	vmax, err := floatQuery(r, "vmax")
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := s.core.SetColorRange(vmin, vmax)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handlePointNu(w http.ResponseWriter, r *http.Request) {
	y, err := intQuery(r, "y")
	if err != nil {
		s.writeError(w, err)
		return
	}
	x, err := intQuery(r, "x")
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := s.core.GetPointNu(y, x)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]float64{"nu": v})
}

var stageNames = func() map[string]tlc.Stage {
	m := make(map[string]tlc.Stage)
	for _, st := range tlc.Stages() {
		m[st.String()] = st
	}
	return m
}()

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("stage")
	stage, ok := stageNames[name]
	if !ok {
		s.writeError(w, tlc.Errf(tlc.KindInvalidArgument, "unknown stage %q", name))
		return
	}
	count, total, err := s.core.GetProgress(stage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]interface{}{"stage": name, "count": count, "total": total}
	if stageErr := s.core.LastStageError(stage); stageErr != nil {
		resp["error"] = stageErr.Error()
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleSettingsList(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, tlc.Errf(tlc.KindInternal, "no settings store configured"))
		return
	}
	records, err := s.db.ListSettings()
	if err != nil {
		s.writeError(w, fmt.Errorf("list settings: %w", err))
		return
	}
	s.writeJSON(w, records)
}

func (s *Server) handleSettingsLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		s.writeError(w, tlc.Errf(tlc.KindInternal, "no settings store configured"))
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.db.GetSettingByName(body.Name)
	if err != nil {
		s.writeError(w, tlc.Wrapf(tlc.KindNotReady, err, "load %q", body.Name))
		return
	}
	if err := s.core.LoadSetting(rec.Setting); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.core.GetSetting())
}

func (s *Server) handleSettingsDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		s.writeError(w, tlc.Errf(tlc.KindInternal, "no settings store configured"))
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.DeleteSetting(body.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"deleted": body.Name})
}
