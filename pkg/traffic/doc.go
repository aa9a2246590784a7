// Package traffic implements the traffic recorder: a byte-counting stream
// wrapper plus a bounded async pipeline that batches records into
// pkg/store without ever blocking the proxy hot path, and a cron-scheduled
// pruner enforcing retention.
package traffic
