package timesync

// StatusResponse describes the trusted clock for the live info panel.
// Accuracy is RTT/2: the sync assumes symmetric latency.
type StatusResponse struct {
	State      string  `json:"state"`
	Ready      bool    `json:"ready"`
	Now        *string `json:"now,omitempty"`
	Date       string  `json:"date,omitempty"`
	Timezone   string  `json:"timezone"`
	Source     string  `json:"source,omitempty"`
	RTTMs      int64   `json:"rtt_ms"`
	AccuracyMs int64   `json:"accuracy_ms"`
	SyncedAt   *string `json:"synced_at,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
}
