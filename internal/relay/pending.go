package relay

// PendingDelivery is a record that was accepted by the broker client but not
// yet confirmed. It is owned by whoever awaits it and is never shared.
type PendingDelivery struct {
	Token string
	Index int
	Ack   Ack
}
