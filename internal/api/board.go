package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dwrandle/automation-bridge/internal/board"
)

// statusResponse is the GET /api/status payload: the cached snapshot
// plus freshness metadata.
type statusResponse struct {
	board.DeviceStatus
	AgeMS    int64  `json:"age_ms"`
	Firmware string `json:"firmware,omitempty"`
	Port     string `json:"port,omitempty"`
}

// setRelayRequest is the POST /api/relay/{index} body.
type setRelayRequest struct {
	State *bool `json:"state"`
}

// setOutputRequest is the POST /api/output/{index} body.
type setOutputRequest struct {
	Value *int `json:"value"`
}

// handleStatus serves the cached board snapshot.
// Reads never touch the serial link.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if !s.board.Connected() {
		writeBoardUnavailable(w)
		return
	}

	status, age, ok := s.cache.Read()
	if !ok {
		writeBoardUnavailable(w)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		DeviceStatus: status,
		AgeMS:        age.Milliseconds(),
		Firmware:     s.board.Version(),
		Port:         s.board.PortName(),
	})
}

// handleSetRelay switches one relay. Index in the path is 1-based.
func (s *Server) handleSetRelay(w http.ResponseWriter, r *http.Request) {
	index, ok := s.channelIndex(w, r, s.board.Capabilities().Relays, "relay")
	if !ok {
		return
	}

	var req setRelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.State == nil {
		writeBadRequest(w, `body must be {"state": true|false}`)
		return
	}

	err := s.board.SetRelay(index, *req.State)
	s.recordCommand(r, "RELAY", fmt.Sprintf("%d %v", index, *req.State), err)
	if err != nil {
		s.writeBoardError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"relay":  index,
		"state":  *req.State,
	})
}

// handleSetOutput sets one PWM output. Index in the path is 1-based.
func (s *Server) handleSetOutput(w http.ResponseWriter, r *http.Request) {
	index, ok := s.channelIndex(w, r, s.board.Capabilities().Outputs, "output")
	if !ok {
		return
	}

	var req setOutputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeBadRequest(w, `body must be {"value": 0-100}`)
		return
	}
	if *req.Value < 0 || *req.Value > 100 {
		writeValidationError(w, "value must be 0-100")
		return
	}

	err := s.board.SetOutput(index, *req.Value)
	s.recordCommand(r, "OUTPUT", fmt.Sprintf("%d %d", index, *req.Value), err)
	if err != nil {
		s.writeBoardError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"output": index,
		"value":  *req.Value,
	})
}

// handleReset returns the board to its safe state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	err := s.board.Reset()
	s.recordCommand(r, "RESET", "", err)
	if err != nil {
		s.writeBoardError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleHistory serves recent snapshots, newest first.
// ?limit=N caps the result (default 100).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotFound(w, "history is disabled")
		return
	}

	snaps, err := s.store.RecentSnapshots(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(snaps),
		"snapshots": snaps,
	})
}

// handleCommands serves recent command outcomes, newest first.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotFound(w, "history is disabled")
		return
	}

	recs, err := s.store.RecentCommands(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("command history query failed", "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(recs),
		"commands": recs,
	})
}

// handleHealth reports bridge component health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":  "ok",
		"version": s.version,
		"board": map[string]any{
			"connected": s.board.Connected(),
			"port":      s.board.PortName(),
			"firmware":  s.board.Version(),
		},
	}
	if s.health != nil {
		for k, v := range s.health.Health() {
			payload[k] = v
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// channelIndex parses and validates the 1-based {index} path parameter.
// Writes the error response itself and returns ok=false on rejection.
func (s *Server) channelIndex(w http.ResponseWriter, r *http.Request, max int, kind string) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, kind+" index must be an integer")
		return 0, false
	}
	if index < 1 || (max > 0 && index > max) {
		writeValidationError(w, fmt.Sprintf("%s index must be 1-%d", kind, max))
		return 0, false
	}
	return index, true
}

// writeBoardError maps board errors onto HTTP status codes.
func (s *Server) writeBoardError(w http.ResponseWriter, err error) {
	var (
		vErr   *board.ValidationError
		cmdErr *board.CommandError
	)
	switch {
	case errors.As(err, &vErr):
		writeValidationError(w, vErr.Error())
	case errors.As(err, &cmdErr):
		writeError(w, http.StatusBadGateway, "board_error", cmdErr.Message)
	case errors.Is(err, board.ErrNotConnected):
		writeBoardUnavailable(w)
	case errors.Is(err, board.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "board_timeout", "board did not reply")
	default:
		s.logger.Error("board command failed", "error", err)
		writeInternalError(w, "command failed")
	}
}

// recordCommand stores a command outcome when history is enabled.
func (s *Server) recordCommand(r *http.Request, verb, args string, err error) {
	if s.store == nil {
		return
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	s.store.RecordCommand(r.Context(), "http", verb, args, err == nil, detail)
}

// queryLimit parses the ?limit query parameter, zero when absent.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
