package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

var tradeLogHeader = []string{
	"closed_at", "id", "symbol", "side",
	"entry_price", "exit_price", "contracts", "leverage",
	"entry_spread_pct", "exit_spread_pct",
	"pnl_usd", "pnl_pct", "hold_seconds", "partial", "degraded_pnl",
}

// csvLog is an append-only trade log. The header is written once when the
// file is created; every record is flushed immediately so a crash loses at
// most the in-flight row.
type csvLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func newCSVLog(path string) (*csvLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	log := &csvLog{file: file, writer: csv.NewWriter(file)}
	if fresh {
		if err := log.writer.Write(tradeLogHeader); err != nil {
			file.Close()
			return nil, err
		}
		log.writer.Flush()
		if err := log.writer.Error(); err != nil {
			file.Close()
			return nil, err
		}
	}
	return log, nil
}

func (l *csvLog) append(rec domain.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		rec.ClosedAt.UTC().Format(time.RFC3339),
		rec.ID,
		rec.Symbol,
		string(rec.Side),
		formatFloat(rec.EntryPrice),
		formatFloat(rec.ExitPrice),
		strconv.FormatInt(rec.SizeContracts, 10),
		strconv.Itoa(rec.Leverage),
		formatFloat(rec.EntrySpread),
		formatFloat(rec.ExitSpread),
		formatFloat(rec.PnlUSD),
		formatFloat(rec.PnlPercent),
		strconv.FormatInt(int64(rec.HoldTime.Seconds()), 10),
		strconv.FormatBool(rec.Partial),
		strconv.FormatBool(rec.DegradedPnl),
	}
	if err := l.writer.Write(row); err != nil {
		return err
	}
	l.writer.Flush()
	return l.writer.Error()
}

func (l *csvLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// writeDailyStats writes one summary file per day, overwriting any earlier
// summary for the same date.
func writeDailyStats(dir string, day time.Time, stats domain.Statistics) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "stats_"+day.Format("2006-01-02")+".csv")

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	rows := [][]string{
		{"metric", "value"},
		{"date", day.Format("2006-01-02")},
		{"total_trades", strconv.Itoa(stats.TotalTrades)},
		{"winning_trades", strconv.Itoa(stats.WinningTrades)},
		{"losing_trades", strconv.Itoa(stats.LosingTrades)},
		{"win_rate_pct", formatFloat(stats.WinRate)},
		{"total_pnl_usd", formatFloat(stats.TotalPnlUSD)},
		{"avg_pnl_usd", formatFloat(stats.AvgPnlUSD)},
		{"avg_hold_seconds", strconv.FormatInt(int64(stats.AvgHoldTime.Seconds()), 10)},
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
