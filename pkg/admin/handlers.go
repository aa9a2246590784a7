package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"dario.cat/mergo"
	"github.com/dustin/go-humanize"

	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/proxyerr"
	"relaydock/relay/pkg/store"
)

func (a *API) handleListMirrors(w http.ResponseWriter, r *http.Request) {
	mirrors := a.registry.List()
	dtos := make([]mirrorDTO, 0, len(mirrors))
	for _, m := range mirrors {
		dtos = append(dtos, toDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (a *API) handleCreateMirror(w http.ResponseWriter, r *http.Request) {
	var req createMirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindBadRequest, "malformed request body", err))
		return
	}
	if req.Prefix == "" || req.UpstreamURL == "" {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindBadRequest, "prefix and upstream_url are required", nil))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	authKind := req.AuthKind
	if authKind == "" {
		authKind = string(mirror.AuthNone)
	}

	m := mirror.Mirror{
		Prefix:       req.Prefix,
		UpstreamURL:  req.UpstreamURL,
		UpstreamHost: req.UpstreamHost,
		AuthKind:     mirror.AuthKind(authKind),
		AuthUser:     req.AuthUser,
		AuthPass:     req.AuthPass,
		Enabled:      enabled,
	}

	created, err := a.registry.Create(m)
	if err != nil {
		a.writeRegistryError(w, err)
		return
	}

	if err := a.persist(created); err != nil {
		a.logger.Error("failed to persist created mirror", "mirror_id", created.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, toDTO(created))
}

func (a *API) handlePatchMirror(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}

	existing, err := a.registry.GetByID(id)
	if err != nil {
		a.writeRegistryError(w, err)
		return
	}

	var req patchMirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindBadRequest, "malformed request body", err))
		return
	}

	partial := mirror.Mirror{}
	if req.Prefix != nil {
		partial.Prefix = *req.Prefix
	}
	if req.UpstreamURL != nil {
		partial.UpstreamURL = *req.UpstreamURL
	}
	if req.UpstreamHost != nil {
		partial.UpstreamHost = *req.UpstreamHost
	}
	if req.AuthKind != nil {
		partial.AuthKind = mirror.AuthKind(*req.AuthKind)
	}
	if req.AuthUser != nil {
		partial.AuthUser = *req.AuthUser
	}
	if req.AuthPass != nil {
		partial.AuthPass = *req.AuthPass
	}

	// mergo fills partial's zero-value fields from existing, leaving
	// fields the caller actually set untouched — an idempotent PATCH
	// merge. Enabled is intentionally excluded from PATCH: it is
	// bool-typed, so a caller-provided `false` is
	// indistinguishable from "not provided" once mergo sees a zero
	// value; POST /mirrors/{id}/toggle is the dedicated path for that
	// field instead.
	partial.Enabled = existing.Enabled
	partial.Health = existing.Health
	partial.LatencyMS = existing.LatencyMS
	partial.ConsecutiveFailures = existing.ConsecutiveFailures
	partial.LastProbeAt = existing.LastProbeAt
	partial.ID = existing.ID

	if err := mergo.Merge(&partial, existing); err != nil {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindInternal, "failed to merge patch", err))
		return
	}

	updated, err := a.registry.Update(id, partial)
	if err != nil {
		a.writeRegistryError(w, err)
		return
	}

	if err := a.persist(updated); err != nil {
		a.logger.Error("failed to persist patched mirror", "mirror_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, toDTO(updated))
}

func (a *API) handleDeleteMirror(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.registry.Delete(id); err != nil {
		a.writeRegistryError(w, err)
		return
	}
	if err := a.store.DeleteMirror(id); err != nil {
		a.logger.Error("failed to persist mirror deletion", "mirror_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleToggleMirror(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	updated, err := a.registry.Toggle(id)
	if err != nil {
		a.writeRegistryError(w, err)
		return
	}
	if err := a.persist(updated); err != nil {
		a.logger.Error("failed to persist mirror toggle", "mirror_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, toDTO(updated))
}

func (a *API) handleProbe(w http.ResponseWriter, r *http.Request) {
	go a.prober.ProbeAll(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleScrape(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := a.scraper.Scrape(context.Background()); err != nil {
			a.logger.Warn("mirror source scrape failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("granularity") == "daily" {
		days := 30
		if raw := r.URL.Query().Get("days"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				days = n
			}
		}
		daily, err := a.store.DailyStats(days)
		if err != nil {
			proxyerr.WriteError(w, proxyerr.New(proxyerr.KindInternal, "failed to compute daily stats", err))
			return
		}
		dtos := make([]dailyStatsDTO, 0, len(daily))
		for _, d := range daily {
			dtos = append(dtos, dailyStatsDTO{Day: d.Day, Requests: d.Requests, Bytes: d.Bytes})
		}
		writeJSON(w, http.StatusOK, statsResponse{Daily: dtos})
		return
	}

	s, err := a.store.Stats()
	if err != nil {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindInternal, "failed to compute stats", err))
		return
	}
	perMirror := make([]mirrorStatsDTO, 0, len(s.PerMirror))
	for _, m := range s.PerMirror {
		perMirror = append(perMirror, mirrorStatsDTO{ID: m.MirrorID, Requests: m.Requests, Bytes: m.Bytes})
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalRequests:   s.TotalRequests,
		TotalBytes:      s.TotalBytes,
		TotalBytesHuman: humanize.Bytes(uint64(s.TotalBytes)),
		PerMirror:       perMirror,
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := a.cfg.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > a.cfg.MaxHistoryLimit {
		limit = a.cfg.MaxHistoryLimit
	}

	records, err := a.store.QueryTraffic(store.TrafficFilter{Limit: limit})
	if err != nil {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindInternal, "failed to query traffic history", err))
		return
	}
	dtos := make([]historyRecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, historyRecordDTO{
			ID:             rec.ID,
			Timestamp:      rec.Timestamp,
			ClientIP:       rec.ClientIP,
			Method:         rec.Method,
			Path:           rec.Path,
			MirrorID:       rec.MirrorID,
			UpstreamStatus: rec.UpstreamStatus,
			BytesOut:       rec.BytesOut,
			DurationMS:     rec.DurationMS,
			ImageRef:       rec.ImageRef,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// handleSearch is a stub: it does not proxy Docker Hub's search API and
// answers every request with a registry-style 404 NOT_FOUND error.
func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	proxyerr.WriteError(w, proxyerr.New(proxyerr.KindNotFound, "search is not implemented by this proxy", nil))
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindBadRequest, "invalid mirror id", err))
		return 0, false
	}
	return id, true
}

func (a *API) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mirror.ErrNotFound):
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindNotFound, "mirror not found", err))
	case errors.Is(err, mirror.ErrDuplicatePrefix):
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindBadRequest, "prefix already in use", err))
	default:
		proxyerr.WriteError(w, proxyerr.New(proxyerr.KindBadRequest, "request could not be completed", err))
	}
}

// persist mirrors a registry mutation into the store so it survives a
// restart. The in-memory registry remains the source of truth the proxy
// engine reads from; a persistence failure is logged, not surfaced to the
// caller, since the live routing state is already correct.
func (a *API) persist(m mirror.Mirror) error {
	encPass, err := a.encryptor.Encrypt(m.AuthPass)
	if err != nil {
		return err
	}
	row := store.MirrorRow{
		ID:                  m.ID,
		Prefix:              m.Prefix,
		UpstreamURL:         m.UpstreamURL,
		UpstreamHost:        m.UpstreamHost,
		AuthKind:            string(m.AuthKind),
		AuthUser:            m.AuthUser,
		AuthPassEncrypted:   encPass,
		Enabled:             m.Enabled,
		Health:              string(m.Health),
		LatencyMS:           int64(m.LatencyMS),
		ConsecutiveFailures: m.ConsecutiveFailures,
	}
	if !m.LastProbeAt.IsZero() {
		lp := m.LastProbeAt
		row.LastProbeAt = &lp
	}
	_, err = a.store.UpsertMirror(row)
	return err
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
