package publisher

import (
	"context"
	"fmt"

	"relay/internal/relay"
)

// submit hands one record to the broker client. It returns as soon as the
// client has queued the record.
func (p *Publisher) submit(ctx context.Context, index int, record relay.Record) (relay.PendingDelivery, error) {
	ack, err := p.client.Send(ctx, record)
	if err != nil {
		return relay.PendingDelivery{}, err
	}
	if ack == nil {
		return relay.PendingDelivery{}, fmt.Errorf("broker client returned no acknowledgment for record %s", record.ID)
	}

	return relay.PendingDelivery{
		Token: record.ID,
		Index: index,
		Ack:   ack,
	}, nil
}
