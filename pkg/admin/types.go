package admin

import (
	"time"

	"relaydock/relay/pkg/mirror"
)

// mirrorDTO is the JSON shape returned for a mirror. AuthPass is never
// included — Redacted() strips it before this type is built.
type mirrorDTO struct {
	ID                  int64     `json:"id"`
	Prefix              string    `json:"prefix"`
	UpstreamURL         string    `json:"upstream_url"`
	UpstreamHost        string    `json:"upstream_host"`
	AuthKind            string    `json:"auth_kind"`
	AuthUser            string    `json:"auth_user,omitempty"`
	Enabled             bool      `json:"enabled"`
	Health              string    `json:"health"`
	LatencyMS           float64   `json:"latency_ms"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastProbeAt         time.Time `json:"last_probe_at"`
}

func toDTO(m mirror.Mirror) mirrorDTO {
	m = m.Redacted()
	return mirrorDTO{
		ID:                  m.ID,
		Prefix:              m.Prefix,
		UpstreamURL:         m.UpstreamURL,
		UpstreamHost:        m.UpstreamHost,
		AuthKind:            string(m.AuthKind),
		AuthUser:            m.AuthUser,
		Enabled:             m.Enabled,
		Health:              string(m.Health),
		LatencyMS:           m.LatencyMS,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastProbeAt:         m.LastProbeAt,
	}
}

// createMirrorRequest is the POST /mirrors body.
type createMirrorRequest struct {
	Prefix       string `json:"prefix"`
	UpstreamURL  string `json:"upstream_url"`
	UpstreamHost string `json:"upstream_host"`
	AuthKind     string `json:"auth_kind"`
	AuthUser     string `json:"auth_user"`
	AuthPass     string `json:"auth_pass"`
	Enabled      *bool  `json:"enabled"`
}

// patchMirrorRequest is the PATCH /mirrors/{id} body. Every field is a
// pointer so a JSON decode can distinguish "not present" (nil) from
// "explicitly set to the zero value" — only present fields participate
// in the mergo-based partial update (see handlers.go).
type patchMirrorRequest struct {
	Prefix       *string `json:"prefix"`
	UpstreamURL  *string `json:"upstream_url"`
	UpstreamHost *string `json:"upstream_host"`
	AuthKind     *string `json:"auth_kind"`
	AuthUser     *string `json:"auth_user"`
	AuthPass     *string `json:"auth_pass"`
}

// statsResponse is the GET /stats body for the all-time view.
type statsResponse struct {
	TotalRequests   int64            `json:"total_requests"`
	TotalBytes      int64            `json:"total_bytes"`
	TotalBytesHuman string           `json:"total_bytes_human"`
	PerMirror       []mirrorStatsDTO `json:"per_mirror"`
	Daily           []dailyStatsDTO  `json:"daily,omitempty"`
}

type mirrorStatsDTO struct {
	ID       int64 `json:"id"`
	Requests int64 `json:"requests"`
	Bytes    int64 `json:"bytes"`
}

// dailyStatsDTO is one row of the `?granularity=daily` rollup.
type dailyStatsDTO struct {
	Day      string `json:"day"`
	Requests int64  `json:"requests"`
	Bytes    int64  `json:"bytes"`
}

// historyRecordDTO is one row of GET /history.
type historyRecordDTO struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	ClientIP       string    `json:"client_ip"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	MirrorID       int64     `json:"mirror_id"`
	UpstreamStatus int       `json:"upstream_status"`
	BytesOut       int64     `json:"bytes_out"`
	DurationMS     int64     `json:"duration_ms"`
	ImageRef       string    `json:"image_ref,omitempty"`
}
