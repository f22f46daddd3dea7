package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/sqlgate/internal/command"
	"github.com/koustreak/sqlgate/internal/errs"
)

const maxBodyBytes = 1 << 20

type connectRequest struct {
	Connection string `json:"connection"`
}

type queryRequest struct {
	TSQL    string `json:"tsql"`
	Archive bool   `json:"archive"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) defaultConfig(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.DefaultConfig()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, b)
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.svc.Sessions()})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Connect(r.Context(), chi.URLParam(r, "name"), req.Connection); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Disconnect(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Status(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"connected": ok})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.Query(r.Context(), chi.URLParam(r, "name"), req.TSQL,
		command.QueryOptions{Archive: req.Archive})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if res.Archive != nil {
		w.Header().Set("X-Archive-Key", res.Archive.Key)
		if res.Archive.URL != "" {
			w.Header().Set("X-Archive-URL", res.Archive.URL)
		}
	}
	writeRaw(w, http.StatusOK, res.JSON)
}

// decodeBody reads a JSON body into dst. With optional set, an empty body
// leaves dst untouched.
func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid request body: "+err.Error(), err)
	}
	return nil
}
