package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

func sideEmoji(side domain.Direction) string {
	if side == domain.DirectionLong {
		return "🟢 LONG"
	}
	return "🔴 SHORT"
}

func pnlEmoji(pnl float64) string {
	if pnl >= 0 {
		return "✅"
	}
	return "❌"
}

func formatOpportunity(opp domain.Opportunity) string {
	return fmt.Sprintf(
		"👀 %s %s spread %.2f%% (mark %.6g / last %.6g)",
		opp.Symbol, opp.Direction, opp.SpreadPercent,
		opp.ReferencePrice, opp.TradePrice,
	)
}

func formatOpened(pos domain.Position, opp domain.Opportunity) string {
	return fmt.Sprintf(
		"📈 Position opened\n%s %s\nEntry: %.6g\nSpread: %.2f%%\nContracts: %d (x%d)",
		sideEmoji(pos.Side), pos.Symbol,
		pos.EntryPrice, opp.SpreadPercent,
		pos.SizeContracts, pos.Leverage,
	)
}

func formatClosed(rec domain.TradeRecord) string {
	kind := "Position closed"
	if rec.Partial {
		kind = "Partial take-profit"
	}
	msg := fmt.Sprintf(
		"%s %s\n%s %s\nEntry: %.6g → Exit: %.6g\nP&L: %+.2f USDT (%+.1f%%)\nHeld: %s",
		pnlEmoji(rec.PnlUSD), kind,
		sideEmoji(rec.Side), rec.Symbol,
		rec.EntryPrice, rec.ExitPrice,
		rec.PnlUSD, rec.PnlPercent,
		rec.HoldTime.Round(time.Second),
	)
	if rec.DegradedPnl {
		msg += "\n⚠️ P&L estimated from prices"
	}
	return msg
}

func formatAlert(title, detail string) string {
	return fmt.Sprintf("🚨 %s\n%s", title, detail)
}

func formatStatus(enabled bool, positions int, maxPositions int, uptime time.Duration) string {
	state := "⏸ paused"
	if enabled {
		state = "▶️ trading"
	}
	return fmt.Sprintf(
		"Status: %s\nPositions: %d/%d\nUptime: %s",
		state, positions, maxPositions, uptime.Round(time.Second),
	)
}

func formatPositions(positions []domain.Position, prices map[string]domain.SpreadSample, remote map[string]domain.RemotePosition) string {
	if len(positions) == 0 {
		return "No open positions"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Open positions (%d):\n", len(positions))
	for _, pos := range positions {
		fmt.Fprintf(&b, "\n%s %s\nEntry: %.6g  Contracts: %d",
			sideEmoji(pos.Side), pos.Symbol, pos.EntryPrice, pos.SizeContracts)
		if sample, ok := prices[pos.Symbol]; ok {
			pnl, roi := pos.UnrealizedPnl(sample.TradePrice)
			fmt.Fprintf(&b, "\nNow: %.6g  P&L: %+.2f USDT (%+.1f%%)", sample.TradePrice, pnl, roi)
		}
		if remote != nil {
			if rp, ok := remote[pos.Symbol]; !ok {
				b.WriteString("\n⚠️ not reported by exchange")
			} else if size := rp.Size; size != pos.SignedSize() {
				fmt.Fprintf(&b, "\n⚠️ exchange reports %d contracts", size)
			}
		}
		if pos.Adopted {
			b.WriteString("\n(adopted at startup)")
		}
		if pos.Phase == domain.PhaseProtected {
			b.WriteString("\n🛡 stop armed at entry")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatistics(stats domain.Statistics, perf []domain.SymbolPerformance, trades []domain.TradeRecord) string {
	if stats.TotalTrades == 0 {
		return "No closed trades yet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Trading statistics\nTrades: %d  Win rate: %.1f%%\nTotal P&L: %+.2f USDT\nAvg P&L: %+.2f USDT\nAvg hold: %s\n",
		stats.TotalTrades, stats.WinRate, stats.TotalPnlUSD, stats.AvgPnlUSD,
		stats.AvgHoldTime.Round(time.Second),
	)
	if stats.BestTrade != nil {
		fmt.Fprintf(&b, "Best: %s %+.2f USDT\n", stats.BestTrade.Symbol, stats.BestTrade.PnlUSD)
	}
	if stats.WorstTrade != nil {
		fmt.Fprintf(&b, "Worst: %s %+.2f USDT\n", stats.WorstTrade.Symbol, stats.WorstTrade.PnlUSD)
	}
	if len(perf) > 0 {
		b.WriteString("\nBy symbol:")
		for i, p := range perf {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "\n%s: %d trades, %.0f%% wins, %+.2f USDT",
				p.Symbol, p.Trades, p.WinRate, p.TotalPnlUSD)
		}
		b.WriteString("\n")
	}
	if len(trades) > 0 {
		b.WriteString("\nRecent closes:")
		start := len(trades) - 5
		if start < 0 {
			start = 0
		}
		for i := len(trades) - 1; i >= start; i-- {
			t := trades[i]
			fmt.Fprintf(&b, "\n%s %s %+.2f USDT", pnlEmoji(t.PnlUSD), t.Symbol, t.PnlUSD)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHelp() string {
	return strings.Join([]string{
		"Commands:",
		"/status - trading state and position count",
		"/positions - open positions with live P&L",
		"/stats - session statistics",
		"/stop - pause opening new positions",
		"/start_trading - resume opening positions",
		"/help - this message",
	}, "\n")
}
