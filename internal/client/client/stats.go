package client

// Stats is a point-in-time view of the client counters.
type Stats struct {
	Requests       int64 `json:"requests"`
	NetworkErrors  int64 `json:"network_errors"`
	CacheFallbacks int64 `json:"cache_fallbacks"`
	Queued         int64 `json:"queued"`
	Replayed       int64 `json:"replayed"`
	Dropped        int64 `json:"dropped"`
	Unauthorized   int64 `json:"unauthorized"`
	Pending        int   `json:"pending"`
	Online         bool  `json:"online"`
}

// StatsProvider is implemented by anything that reports client stats.
type StatsProvider interface {
	Stats() Stats
}

var _ StatsProvider = (*Client)(nil)

func (c *Client) Stats() Stats {
	return Stats{
		Requests:       c.totalReqs.Load(),
		NetworkErrors:  c.networkErrors.Load(),
		CacheFallbacks: c.cacheFallbacks.Load(),
		Queued:         c.queued.Load(),
		Replayed:       c.replayed.Load(),
		Dropped:        c.dropped.Load(),
		Unauthorized:   c.unauthorized.Load(),
		Pending:        c.queue.Size(),
		Online:         c.IsOnline(),
	}
}
