package server

import (
	"encoding/json"
	"net/http"

	"github.com/koustreak/sqlgate/internal/command"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, b)
}

func writeRaw(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// writeError answers with the wire error for err.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := command.FromError(err, "")
	status := statusFor(e)

	log := logger.FromContext(r.Context()).With().
		Str("type", string(e.Type)).
		Str("kind", e.Kind.String()).
		Int("status", status).
		Err(err).
		Logger()
	if status >= http.StatusInternalServerError {
		log.Error(e.Description)
	} else {
		log.Warn(e.Description)
	}

	writeJSON(w, status, e)
}

func statusFor(e *command.Error) int {
	if e.Type == command.TypeConnection {
		return http.StatusConflict
	}

	switch e.Kind {
	case errs.ErrKindAlreadyConnected:
		return http.StatusConflict
	case errs.ErrKindInvalidConnectionString, errs.ErrKindMissingQuery, errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindTransport, errs.ErrKindHandshake:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindQueryFailed, errs.ErrKindNormalization:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
