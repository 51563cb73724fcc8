package bot

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"signal-alert/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// AlertDispatcher broadcasts signal and position events to subscribed chats.
type AlertDispatcher struct {
	sender messageSender

	mu          sync.RWMutex
	subscribers map[int64]struct{}
}

func NewAlertDispatcher(sender messageSender) *AlertDispatcher {
	return &AlertDispatcher{
		sender:      sender,
		subscribers: make(map[int64]struct{}),
	}
}

func (d *AlertDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; exists {
		return false
	}
	d.subscribers[chatID] = struct{}{}
	return true
}

func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; !exists {
		return false
	}
	delete(d.subscribers, chatID)
	return true
}

func (d *AlertDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.subscribers[chatID]
	return exists
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// NotifySignal broadcasts a freshly detected entry signal.
func (d *AlertDispatcher) NotifySignal(result *domain.EvalResult) {
	if d == nil || d.sender == nil || result == nil {
		return
	}
	d.broadcast(formatSignalMessage(result))
}

// NotifyPositionUpdate broadcasts target and stop crossings.
func (d *AlertDispatcher) NotifyPositionUpdate(update domain.PositionUpdate, pos domain.Position) {
	if d == nil || d.sender == nil || len(update.Crossings) == 0 {
		return
	}
	d.broadcast(formatUpdateMessage(update, pos))
}

func (d *AlertDispatcher) broadcast(msg string) {
	for _, chatID := range d.snapshotSubscribers() {
		if _, err := d.sender.Send(&tele.Chat{ID: chatID}, msg); err != nil {
			log.Printf("failed to send alert to chat %d: %v", chatID, err)
		}
	}
}

func (d *AlertDispatcher) snapshotSubscribers() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func formatSignalMessage(result *domain.EvalResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s signal: %s %s\n", result.Symbol, result.Interval, result.Direction, result.Mode)
	fmt.Fprintf(&b, "Price: $%s\n", trimPrice(result.CurrentPrice))
	if result.PositionCreated {
		fmt.Fprintf(&b, "Entry: $%s  Stop: $%s\n", trimPrice(result.Levels.Entry), trimPrice(result.Levels.Stop))
		for i, target := range result.Levels.Targets {
			fmt.Fprintf(&b, "T%d: $%s\n", i+1, trimPrice(target))
		}
	} else {
		b.WriteString("Position slot taken, signal logged only\n")
	}
	fmt.Fprintf(&b, "Strength: %d", result.Strength)
	return b.String()
}

func formatUpdateMessage(update domain.PositionUpdate, pos domain.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", pos.Key.Symbol, pos.Key.Interval, pos.Key.Direction)
	for _, c := range update.Crossings {
		switch c.Kind {
		case domain.CrossTarget:
			fmt.Fprintf(&b, "Target %d hit at $%s\n", c.Target, trimPrice(c.Price))
		case domain.CrossStop:
			fmt.Fprintf(&b, "Stop hit at $%s\n", trimPrice(c.Price))
		}
	}
	if update.Closed {
		fmt.Fprintf(&b, "Position closed (%s), PnL %.2f%%", update.Reason, update.PnlPercent)
	} else {
		fmt.Fprintf(&b, "PnL %.2f%%", update.PnlPercent)
	}
	return b.String()
}

func trimPrice(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
