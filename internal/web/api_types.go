package web

import "github.com/joestump/slackbridge/internal/db"

// --- API Response Wrappers ---

// APIDeliveriesResponse wraps a list of deliveries for JSON API responses.
type APIDeliveriesResponse struct {
	Deliveries []APIDelivery `json:"deliveries"`
}

// APIStatsResponse reports delivery counts per outcome.
type APIStatsResponse struct {
	Total    int            `json:"total"`
	Outcomes map[string]int `json:"outcomes"`
}

// APIHealthResponse is returned by the health endpoint.
type APIHealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// --- API Resource Types ---

// APIDelivery is the JSON representation of a stored delivery.
type APIDelivery struct {
	ID          int64  `json:"id"`
	RequestID   string `json:"request_id"`
	ReceivedAt  string `json:"received_at"`
	PayloadType string `json:"payload_type"`
	EventType   string `json:"event_type"`
	Channel     string `json:"channel"`
	Outcome     string `json:"outcome"`
	Status      int    `json:"status"`
	Detail      string `json:"detail"`
	RetryNum    int    `json:"retry_num"`
}

// --- Converters ---

func toAPIDelivery(d db.Delivery) APIDelivery {
	return APIDelivery{
		ID:          d.ID,
		RequestID:   d.RequestID,
		ReceivedAt:  d.ReceivedAt,
		PayloadType: d.PayloadType,
		EventType:   d.EventType,
		Channel:     d.Channel,
		Outcome:     d.Outcome,
		Status:      d.Status,
		Detail:      d.Detail,
		RetryNum:    d.RetryNum,
	}
}

func toAPIDeliveries(ds []db.Delivery) []APIDelivery {
	out := make([]APIDelivery, len(ds))
	for i, d := range ds {
		out[i] = toAPIDelivery(d)
	}
	return out
}
