package relay

import "time"

// DeliveryMetadata is what the broker reports back once a record is durably
// accepted.
type DeliveryMetadata struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
}
