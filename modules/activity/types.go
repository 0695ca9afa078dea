package activity

// ServiceGetStats is the request-reply service exposing the counters.
const ServiceGetStats = "get-stats"

// GetStatsRequest is the request for get-stats.
type GetStatsRequest struct{}

// GetStatsResponse is the response for get-stats.
type GetStatsResponse struct {
	Stats Stats `json:"stats"`
}
