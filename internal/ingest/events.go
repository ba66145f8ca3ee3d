// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package ingest implements the two ingestion lanes. The fast lane runs
// synchronously inside the request: validate, append to storage, bump the
// popularity table, invalidate caches, then acknowledge. The deferred lane
// consumes change events through Watermill and batches full stats rebuilds
// per tenant.
package ingest

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopicDeferred carries tenant change notifications from the fast lane to
// the deferred rebuild consumer.
const TopicDeferred = "tessera.deferred"

// Event kinds published on TopicDeferred.
const (
	KindActivity      = "activity"
	KindImpression    = "impression"
	KindProductUpsert = "product_upsert"
	KindProductDelete = "product_delete"
)

// Event notifies the deferred lane that a tenant's history changed. The
// payload is deliberately small: the consumer rebuilds from storage, so the
// event only needs to say which tenant is dirty.
type Event struct {
	ID     string    `json:"id"`
	Tenant string    `json:"tenant"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

// newMessage wraps an event into a Watermill message.
func newMessage(tenant, kind string) (*message.Message, error) {
	ev := Event{
		ID:     uuid.NewString(),
		Tenant: tenant,
		Kind:   kind,
		At:     time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return message.NewMessage(ev.ID, payload), nil
}

// decodeEvent parses a deferred-lane message.
func decodeEvent(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event %s: %w", msg.UUID, err)
	}
	if ev.Tenant == "" {
		return Event{}, fmt.Errorf("event %s has no tenant", msg.UUID)
	}
	return ev, nil
}

// NewPubSub builds the in-process Watermill channel connecting the lanes.
func NewPubSub(buffer int, logger zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(buffer),
		Persistent:          false,
	}, newWatermillLogger(logger))
}
