package bot

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"signal-alert/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type PriceQuerier interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

type PositionViewer interface {
	ActiveSnapshot() []domain.Position
	Summary() domain.PositionsSummary
}

type PositionCloser interface {
	Close(ctx context.Context, id string, reason domain.CloseReason) bool
}

type HistoryViewer interface {
	Records(symbol string) []domain.SignalHistoryRecord
}

func StartTelegramBot(token string, symbols []string, priceService PriceQuerier, positions PositionViewer, closer PositionCloser, historyService HistoryViewer) *AlertDispatcher {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	alerts := NewAlertDispatcher(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/price", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send(fmt.Sprintf("Usage: /price BTCUSDT\nSupported: %s", strings.Join(symbols, ", ")))
		}
		symbol := strings.ToUpper(args[0])
		if !slices.Contains(symbols, symbol) {
			return c.Send(fmt.Sprintf("Unknown symbol: %s\nSupported: %s", symbol, strings.Join(symbols, ", ")))
		}
		price, err := priceService.GetLatestPrice(context.Background(), symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching price for %s: %v", symbol, err))
		}
		return c.Send(fmt.Sprintf("%s: $%s", symbol, trimPrice(price)))
	})

	b.Handle("/positions", func(c tele.Context) error {
		active := positions.ActiveSnapshot()
		if len(active) == 0 {
			return c.Send("No active positions.")
		}
		lines := make([]string, 0, len(active)+1)
		lines = append(lines, "Active positions:")
		for _, p := range active {
			lines = append(lines, formatPositionLine(p))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/summary", func(c tele.Context) error {
		s := positions.Summary()
		return c.Send(fmt.Sprintf(
			"Positions: %d total, %d active, %d closed\nWins: %d  Losses: %d  Win rate: %.1f%%\nOpen PnL: %.2f%%",
			s.Total, s.Active, s.Closed, s.Wins, s.Losses, s.WinRatePct, s.OpenPnlPct,
		))
	})

	b.Handle("/close", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /close BTCUSDT_4h_LONG")
		}
		id := strings.TrimSpace(args[0])
		if closer.Close(context.Background(), id, domain.CloseManual) {
			return c.Send(fmt.Sprintf("Closed %s.", id))
		}
		return c.Send(fmt.Sprintf("No active position %s.", id))
	})

	b.Handle("/history", func(c tele.Context) error {
		symbol := ""
		if args := c.Args(); len(args) > 0 {
			symbol = strings.ToUpper(args[0])
		}
		records := historyService.Records(symbol)
		if len(records) == 0 {
			return c.Send("No recorded signals.")
		}
		lines := make([]string, 0, len(records)+1)
		lines = append(lines, "Recent signals:")
		for _, r := range records {
			lines = append(lines, fmt.Sprintf("%s %s %s at $%s (%s)",
				r.Symbol, r.Interval, r.Direction, trimPrice(r.Price), r.NotifiedAt.UTC().Format(time.RFC822)))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseAlertMode(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts off | /alerts status")
		}

		switch mode {
		case "on":
			if alerts.Subscribe(chat.ID) {
				return c.Send("Proactive alerts enabled for this chat.")
			}
			return c.Send("Proactive alerts are already enabled for this chat.")
		case "off":
			if alerts.Unsubscribe(chat.ID) {
				return c.Send("Proactive alerts disabled for this chat.")
			}
			return c.Send("Proactive alerts are already disabled for this chat.")
		default:
			if alerts.IsSubscribed(chat.ID) {
				return c.Send("Alerts status: ON")
			}
			return c.Send("Alerts status: OFF")
		}
	})

	log.Println("Telegram bot started")
	go b.Start()
	return alerts
}

func parseAlertMode(args []string) (string, error) {
	if len(args) == 0 {
		return "status", nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		return "on", nil
	case "off":
		return "off", nil
	case "status":
		return "status", nil
	default:
		return "", fmt.Errorf("invalid mode")
	}
}

func formatPositionLine(p domain.Position) string {
	hits := 0
	for _, t := range p.Targets {
		if t.Hit {
			hits++
		}
	}
	return fmt.Sprintf("%s %s %s entry $%s now $%s pnl %.2f%% targets %d/%d",
		p.Key.Symbol, p.Key.Interval, p.Key.Direction,
		trimPrice(p.EntryPrice), trimPrice(p.CurrentPrice), p.PnlPercent,
		hits, domain.TargetCount)
}
