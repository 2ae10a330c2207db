package domain

import (
	"context"
	"io"
	"time"
)

// PriceCache stores the most recent spread sample per symbol. It serves the
// display paths (status commands, reports) only; decision paths always work
// from the live tick or a forced remote read.
type PriceCache interface {
	SetSample(ctx context.Context, sample SpreadSample) error
	// Sample returns ErrNotFound when no sample is cached for the symbol.
	Sample(ctx context.Context, symbol string) (SpreadSample, error)
	Samples(ctx context.Context, symbols []string) (map[string]SpreadSample, error)
}

// EventBus publishes position lifecycle events for external consumers.
// Publish is ephemeral pub/sub; StreamAppend is durable, ordered delivery.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// TradeStore persists closed trades for querying and archival. The CSV log is
// the authoritative record; the store is a queryable mirror.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]TradeRecord, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// TradeSink accepts completed closes. Implemented by the recorder.
type TradeSink interface {
	Record(ctx context.Context, close TradeClose) (TradeRecord, error)
}
