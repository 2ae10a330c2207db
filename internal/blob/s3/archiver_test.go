package s3

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	trades []domain.TradeRecord
	cutoff time.Time
}

func (f *fakeStore) Insert(context.Context, domain.TradeRecord) error { return nil }

func (f *fakeStore) ListBefore(_ context.Context, cutoff time.Time, _ int) ([]domain.TradeRecord, error) {
	f.cutoff = cutoff
	return f.trades, nil
}

type fakeWriter struct {
	path        string
	contentType string
	body        []byte
}

func (f *fakeWriter) Put(_ context.Context, path string, body io.Reader, contentType string) error {
	f.path = path
	f.contentType = contentType
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.body = data
	return nil
}

func TestArchiveOnceUploadsCSV(t *testing.T) {
	closedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{trades: []domain.TradeRecord{{
		ID:            "a1",
		Symbol:        "BTC_USDT",
		Side:          domain.DirectionLong,
		EntryPrice:    100,
		ExitPrice:     110,
		SizeContracts: 1000,
		Leverage:      20,
		PnlUSD:        1,
		HoldTime:      time.Hour,
		ClosedAt:      closedAt,
	}}}
	writer := &fakeWriter{}

	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	a := NewArchiver(ArchiverConfig{MinAge: time.Hour, Prefix: "trades"}, store, writer, testLogger())
	a.now = func() time.Time { return now }

	require.NoError(t, a.ArchiveOnce(context.Background()))

	assert.Equal(t, now.Add(-time.Hour), store.cutoff)
	assert.Equal(t, "trades/2026/03/trades_20260302T093000Z.csv", writer.path)
	assert.Equal(t, "text/csv", writer.contentType)

	rows, err := csv.NewReader(bytes.NewReader(writer.body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "closed_at", rows[0][0])
	assert.Equal(t, "BTC_USDT", rows[1][2])
	assert.Equal(t, "3600", rows[1][12])
}

func TestArchiveOnceSkipsWhenEmpty(t *testing.T) {
	writer := &fakeWriter{}
	a := NewArchiver(ArchiverConfig{}, &fakeStore{}, writer, testLogger())

	require.NoError(t, a.ArchiveOnce(context.Background()))
	assert.Empty(t, writer.path)
}
