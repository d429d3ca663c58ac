// Package realtime pushes live occupancy updates to dashboards over PubNub.
package realtime

import (
	"context"
	"fmt"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// ChannelFor names the channel dashboards of an event subscribe to.
func ChannelFor(eventID uint64) string { return fmt.Sprintf("event-%d-occupancy", eventID) }

// OccupancyMessage is the payload published on every change.
type OccupancyMessage struct {
	Type          string    `json:"type"`
	EventID       uint64    `json:"event_id"`
	Validated     uint64    `json:"validated"`
	Pending       uint64    `json:"pending"`
	TotalReserved uint64    `json:"total_reserved"`
	At            time.Time `json:"at"`
}

// Broadcaster publishes occupancy snapshots.
type Broadcaster struct {
	pn  *pubnub.PubNub
	log *zap.Logger
}

// NewBroadcaster returns a broadcaster publishing with the given keys.
// With an empty publish key it returns nil; a nil *Broadcaster drops
// every update.
func NewBroadcaster(publishKey, subscribeKey, userID string, log *zap.Logger) *Broadcaster {
	if publishKey == "" {
		return nil
	}
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	return &Broadcaster{pn: pubnub.NewPubNub(cfg), log: log}
}

// Message builds the payload for an occupancy snapshot.
func Message(occ model.Occupancy, at time.Time) OccupancyMessage {
	return OccupancyMessage{
		Type:          "occupancy",
		EventID:       occ.EventID,
		Validated:     occ.Validated,
		Pending:       occ.Pending,
		TotalReserved: occ.TotalReserved,
		At:            at.UTC(),
	}
}

// PublishOccupancy sends the snapshot to the event's channel.
func (b *Broadcaster) PublishOccupancy(ctx context.Context, occ model.Occupancy) error {
	if b == nil {
		return nil
	}
	_, status, err := b.pn.PublishWithContext(ctx).
		Channel(ChannelFor(occ.EventID)).
		Message(Message(occ, time.Now())).
		Execute()
	if err != nil {
		b.log.Warn("pubnub publish failed",
			zap.Uint64("event_id", occ.EventID), zap.Int("status", status.StatusCode), zap.Error(err))
		return err
	}
	return nil
}
