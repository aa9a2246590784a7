package mirror

// Select is the pure selection function: given a snapshot-backed
// registry and a route prefix, it returns the best live upstream for that
// prefix — the head of ListByPrefix(prefix, true), which is already sorted
// ascending by latency with unknown-health mirrors last and unhealthy
// mirrors excluded. Ties are broken on smallest ID, enforced by
// Registry.ListByPrefix's sort.
//
// Returns a *NoUpstreamError (matches ErrNoUpstream via errors.Is) when no
// mirror is enabled and healthy for prefix.
func Select(r *Registry, prefix string) (Mirror, error) {
	candidates := r.ListByPrefix(prefix, true)
	if len(candidates) == 0 {
		return Mirror{}, &NoUpstreamError{Prefix: prefix}
	}
	return candidates[0], nil
}

// SelectExcluding is Select, but skips mirrors whose ID appears in exclude.
// Used by the proxy engine's failover path: after a transport error or
// 5xx from the chosen mirror, before any response bytes reach the client,
// pick the next-best mirror that hasn't already been tried.
func SelectExcluding(r *Registry, prefix string, exclude map[int64]bool) (Mirror, error) {
	candidates := r.ListByPrefix(prefix, true)
	for _, m := range candidates {
		if !exclude[m.ID] {
			return m, nil
		}
	}
	return Mirror{}, &NoUpstreamError{Prefix: prefix}
}
