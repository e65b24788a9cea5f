package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chazu/heapsnap/compiler"
	"github.com/chazu/heapsnap/heap"
	"github.com/chazu/heapsnap/snapshot"
	"github.com/chazu/heapsnap/store"
)

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// EntryJSON describes a stored snapshot.
type EntryJSON struct {
	ID        string          `json:"id"`
	Names     []string        `json:"names"`
	Size      int             `json:"size"`
	Stored    int             `json:"stored"`
	Codec     string          `json:"codec"`
	CreatedAt time.Time       `json:"created_at"`
	Counts    snapshot.Counts `json:"counts"`
	Trailing  int             `json:"trailing_bytes"`
}

func entryJSON(e store.Entry) EntryJSON {
	names := e.Names
	if names == nil {
		names = []string{}
	}
	return EntryJSON{
		ID:        e.ID.String(),
		Names:     names,
		Size:      e.Size,
		Stored:    e.Stored,
		Codec:     e.Codec.String(),
		CreatedAt: e.Created.UTC(),
		Counts:    e.Summary.Counts,
		Trailing:  e.Summary.TrailingBytes,
	}
}

// EvalRequest is the body of POST /realm/eval. Exactly one of Expression
// and Script is set.
type EvalRequest struct {
	Expression string `json:"expression,omitempty"`
	Script     string `json:"script,omitempty"`
	Name       string `json:"name,omitempty"`
}

// EvalResponse reports the result of an evaluation.
type EvalResponse struct {
	Value  string `json:"value,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Output string `json:"output"`
}

// TakeRequest is the body of POST /realm/take.
type TakeRequest struct {
	Exports []string `json:"exports"`
	Name    string   `json:"name,omitempty"`
}

// LoadResponse reports a snapshot loaded into the realm.
type LoadResponse struct {
	ID      string          `json:"id"`
	Exports []string        `json:"exports"`
	Counts  snapshot.Counts `json:"counts"`
}

type errorJSON struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("writing response: %v", err)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var (
		syntaxErr  *compiler.SyntaxError
		runtimeErr *compiler.RuntimeError
		maxBytes   *http.MaxBytesError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAmbiguous):
		status = http.StatusConflict
	case errors.Is(err, store.ErrInvalidSnapshot), errors.Is(err, store.ErrInvalidName),
		errors.As(err, &syntaxErr), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.As(err, &maxBytes):
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &runtimeErr), errors.Is(err, snapshot.ErrMalformed),
		errors.Is(err, snapshot.ErrUnsupported), errors.Is(err, snapshot.ErrResource):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrWorkerStopped):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Errorf("%s: %v", requestIDFrom(r.Context()), err)
	}
	writeJSON(w, status, errorJSON{Error: err.Error(), RequestID: requestIDFrom(r.Context())})
}

var errBadRequest = errors.New("bad request")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Store endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleList lists stored snapshots.
// GET /snapshots
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]EntryJSON, len(entries))
	for i, e := range entries {
		out[i] = entryJSON(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpload stores the request body.
// POST /snapshots?name=NAME
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.store.Put(r.Context(), r.URL.Query().Get("name"), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryJSON(e))
}

// handleDownload returns the raw snapshot bytes.
// GET /snapshots/{ref}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, e, err := s.store.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Snapshot-Id", e.ID.String())
	w.Header().Set("ETag", `"`+e.ID.String()+`"`)
	http.ServeContent(w, r, e.ID.Short()+".snap", e.Created, bytes.NewReader(data))
}

// handleInspect returns the structural dump of a snapshot.
// GET /snapshots/{ref}/inspect?format=json|yaml|cbor
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.store.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dump, err := snapshot.Inspect(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, dump)
	case "yaml":
		out, err := dump.YAML()
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(out)
	case "cbor":
		out, err := snapshot.MarshalDump(dump)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/cbor")
		w.Write(out)
	default:
		writeError(w, r, fmt.Errorf("%w: unknown format %q", errBadRequest, format))
	}
}

// handleDelete removes a snapshot.
// DELETE /snapshots/{ref}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "ref")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Realm endpoints
// ---------------------------------------------------------------------------

// handleGlobals lists the realm's global bindings.
// GET /realm/globals
func (s *Server) handleGlobals(w http.ResponseWriter, r *http.Request) {
	v, err := s.worker.Do(r.Context(), func(l *Live) (any, error) {
		out := map[string]string{}
		for _, name := range l.Realm.GlobalNames() {
			g, _ := l.Realm.Global(name)
			out[name] = heap.Describe(g)
		}
		return out, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleEval evaluates an expression or runs a script in the realm.
// POST /realm/eval
func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	var req EvalRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if (req.Expression == "") == (req.Script == "") {
		writeError(w, r, fmt.Errorf("%w: exactly one of expression and script is required", errBadRequest))
		return
	}
	if req.Name == "" {
		req.Name = "eval.js"
	}

	v, err := s.worker.Do(r.Context(), func(l *Live) (any, error) {
		var out bytes.Buffer
		l.Interp.Out = &out
		defer func() { l.Interp.Out = nil }()

		if req.Script != "" {
			if err := l.Interp.Run(l.Realm, req.Name, req.Script); err != nil {
				return nil, err
			}
			return EvalResponse{Output: out.String()}, nil
		}
		val, err := l.Interp.Evaluate(l.Realm, req.Expression)
		if err != nil {
			return nil, err
		}
		return EvalResponse{Value: heap.Describe(val), Kind: val.Kind().String(), Output: out.String()}, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleTake snapshots export expressions of the realm into the store.
// POST /realm/take
func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	var req TakeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Exports) == 0 {
		writeError(w, r, fmt.Errorf("%w: exports are required", errBadRequest))
		return
	}

	v, err := s.worker.Do(r.Context(), func(l *Live) (any, error) {
		opts := append(s.config.Options(), snapshot.WithEvaluator(l.Interp))
		return snapshot.NewSerializer(l.Realm, opts...).TakeSnapshot(req.Exports)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.store.Put(r.Context(), req.Name, v.([]byte))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryJSON(e))
}

// handleLoad deserializes a stored snapshot into the realm, installing
// its exports as globals and running any trailing program.
// POST /realm/load/{ref}
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	data, e, err := s.store.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	v, err := s.worker.Do(r.Context(), func(l *Live) (any, error) {
		opts := append(s.config.Options(), snapshot.WithEvaluator(l.Interp))
		d := snapshot.NewDeserializer(l.Realm, opts...)
		defer d.Close()
		if err := d.Deserialize(data); err != nil {
			return nil, err
		}
		resp := LoadResponse{ID: e.ID.String(), Exports: []string{}, Counts: d.Counts()}
		for _, root := range d.Exports() {
			resp.Exports = append(resp.Exports, root.Name)
		}
		return resp, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleReset replaces the realm with an empty one.
// POST /realm/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	_, err := s.worker.Do(r.Context(), func(l *Live) (any, error) {
		l.Reset()
		return nil, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
