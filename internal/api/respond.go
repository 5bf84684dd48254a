package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/reviewdto"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		obslog.L().Error("write_json_failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, reviewdto.ErrorResponse{
		Code:      code,
		Message:   msg,
		Retryable: status == http.StatusServiceUnavailable,
	})
	obslog.L().Debug("write_error", zap.Int("status", status), zap.String("code", code), zap.String("message", msg))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "Invalid JSON: "+err.Error())
		return false
	}
	return true
}
