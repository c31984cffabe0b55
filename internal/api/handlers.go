package api

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"project/internal/domain/event"
	"project/internal/mapper"
	"project/internal/metastore"
	"project/internal/store"
)

// okBody is the fixed success payload of both collection endpoints.
const okBody = "1"

type Handlers struct {
	store     store.EventStore
	metastore metastore.Metastore
	pipeline  *mapper.Pipeline
	logger    *slog.Logger
}

func NewHandlers(st store.EventStore, ms metastore.Metastore, pipeline *mapper.Pipeline, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     st,
		metastore: ms,
		pipeline:  pipeline,
		logger:    logger,
	}
}

// CollectEvent handles POST /event/collect: one JSON event in the body.
// Every step short-circuits on failure and exactly one response is written;
// the store call is awaited before the response, so a slow backend blocks
// this request's handler goroutine and nothing else.
func (h *Handlers) CollectEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondQuoted(w, http.StatusBadRequest, "json couldn't parsed")
		return
	}

	if !h.verifyChecksum(w, r.Header.Get("Content-MD5"), body) {
		return
	}

	var e event.Event
	if err := json.Unmarshal(body, &e); err != nil {
		respondQuoted(w, http.StatusBadRequest, parseMessage(err))
		return
	}
	if err := e.Validate(); err != nil {
		respondQuoted(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.authorized(r, e.Project)
	if err != nil {
		h.logger.Error("permission check failed", "project", e.Project, "error", err)
		respondQuoted(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		respondQuoted(w, http.StatusUnauthorized, "api key is invalid")
		return
	}

	entries, err := h.pipeline.Run(&e, r.Header, clientIP(r))
	if err != nil {
		h.logger.Error("error while processing event", "error", err)
		respondRaw(w, http.StatusBadRequest, "0")
		return
	}

	if err := h.store.Store(r.Context(), &e); err != nil {
		h.logger.Error("error while storing event", "error", err)
		respondRaw(w, http.StatusBadRequest, "0")
		return
	}

	applyEntries(w, entries)
	respondRaw(w, http.StatusOK, okBody)
}

// CollectBatch handles POST /event/batch: an ordered JSON array of events
// all belonging to one project. Authorization is checked once against the
// first event; a later event naming another project aborts the batch before
// any mapper or store work. The whole list goes through one StoreBatch call,
// which the stream store chunks; a mid-batch chunk failure leaves earlier
// chunks committed, store operations are not transactional.
func (h *Handlers) CollectBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondQuoted(w, http.StatusBadRequest, "json couldn't parsed")
		return
	}

	if !h.verifyChecksum(w, r.Header.Get("Content-MD5"), body) {
		return
	}

	var events []*event.Event
	if err := json.Unmarshal(body, &events); err != nil {
		respondQuoted(w, http.StatusBadRequest, parseMessage(err))
		return
	}

	if len(events) == 0 {
		respondRaw(w, http.StatusOK, okBody)
		return
	}

	for _, e := range events {
		if e == nil {
			respondQuoted(w, http.StatusBadRequest, "json couldn't parsed")
			return
		}
		if err := e.Validate(); err != nil {
			respondQuoted(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	project := events[0].Project

	ok, err := h.authorized(r, project)
	if err != nil {
		h.logger.Error("permission check failed", "project", project, "error", err)
		respondQuoted(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		respondQuoted(w, http.StatusUnauthorized, "api key is invalid")
		return
	}

	for _, e := range events[1:] {
		if e.Project != project {
			respondQuoted(w, http.StatusUnauthorized,
				"all events must belong to same project. try inserting events one by one.")
			return
		}
	}

	source := clientIP(r)
	var entries []mapper.Entry
	for _, e := range events {
		out, err := h.pipeline.Run(e, r.Header, source)
		if err != nil {
			h.logger.Error("error while processing event", "error", err)
			respondRaw(w, http.StatusBadRequest, "0")
			return
		}
		entries = append(entries, out...)
	}

	if err := h.store.StoreBatch(r.Context(), events); err != nil {
		h.logger.Error("error while storing events", "error", err)
		respondRaw(w, http.StatusBadRequest, "0")
		return
	}

	applyEntries(w, entries)
	respondRaw(w, http.StatusOK, okBody)
}

func (h *Handlers) authorized(r *http.Request, project string) (bool, error) {
	writeKey := r.Header.Get("write_key")
	if writeKey == "" {
		return false, nil
	}
	return h.metastore.CheckPermission(r.Context(), project, metastore.WriteKey, writeKey)
}

// verifyChecksum validates an optional Content-MD5 header against the body.
// Clients send either the hex or the standard base64 encoding of the digest;
// both are accepted. Returns false after writing the error response.
func (h *Handlers) verifyChecksum(w http.ResponseWriter, header string, body []byte) bool {
	if header == "" {
		return true
	}

	sum := md5.Sum(body)
	if strings.EqualFold(header, hex.EncodeToString(sum[:])) ||
		header == base64.StdEncoding.EncodeToString(sum[:]) {
		return true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": "checksum is invalid"})
	return false
}

// parseMessage keeps structural decode errors descriptive and collapses
// everything else into a generic message.
func parseMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Error()
	}
	return "json couldn't parsed"
}

func clientIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// applyEntries merges mapper contributions into the response headers in
// execution order; a later entry overwrites an earlier one with the same key.
func applyEntries(w http.ResponseWriter, entries []mapper.Entry) {
	for _, entry := range entries {
		w.Header().Set(entry.Key, entry.Value)
	}
}

func respondRaw(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// respondQuoted writes the message as a JSON string, matching the error
// body shape clients already parse.
func respondQuoted(w http.ResponseWriter, status int, msg string) {
	data, err := json.Marshal(msg)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	w.Write(data)
}
