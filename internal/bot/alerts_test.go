package bot

import (
	"strings"
	"testing"
	"time"

	"signal-alert/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type fakeSender struct {
	recipients []tele.Recipient
	messages   []string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.recipients = append(f.recipients, to)
	if s, ok := what.(string); ok {
		f.messages = append(f.messages, s)
	}
	return &tele.Message{}, nil
}

func TestParseAlertMode(t *testing.T) {
	mode, err := parseAlertMode(nil)
	if err != nil || mode != "status" {
		t.Fatalf("expected default status mode, got mode=%q err=%v", mode, err)
	}

	mode, err = parseAlertMode([]string{"on"})
	if err != nil || mode != "on" {
		t.Fatalf("expected on mode, got mode=%q err=%v", mode, err)
	}

	mode, err = parseAlertMode([]string{"OFF"})
	if err != nil || mode != "off" {
		t.Fatalf("expected off mode, got mode=%q err=%v", mode, err)
	}

	if _, err := parseAlertMode([]string{"nope"}); err == nil {
		t.Fatal("expected invalid mode error")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	dispatcher := NewAlertDispatcher(&fakeSender{})

	if !dispatcher.Subscribe(10) {
		t.Fatal("expected initial subscribe to return true")
	}
	if dispatcher.Subscribe(10) {
		t.Fatal("expected duplicate subscribe to return false")
	}
	if !dispatcher.IsSubscribed(10) {
		t.Fatal("expected chat 10 to be subscribed")
	}
	if !dispatcher.Unsubscribe(10) {
		t.Fatal("expected unsubscribe to return true")
	}
	if dispatcher.Unsubscribe(10) {
		t.Fatal("expected repeated unsubscribe to return false")
	}
}

func TestNotifySignalBroadcastsToSubscribers(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := NewAlertDispatcher(sender)
	dispatcher.Subscribe(10)
	dispatcher.Subscribe(20)

	dispatcher.NotifySignal(&domain.EvalResult{
		Symbol:          "BTCUSDT",
		Interval:        "4h",
		Direction:       domain.DirectionLong,
		Mode:            "crossover",
		CurrentPrice:    100,
		Strength:        80,
		PositionCreated: true,
		Levels: domain.RiskLevels{
			Entry:   100,
			Stop:    97,
			Targets: [domain.TargetCount]float64{103, 105, 107},
		},
	})

	if len(sender.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	for _, want := range []string{"BTCUSDT 4h signal: LONG crossover", "Entry: $100", "Stop: $97", "T3: $107"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNotifySignalSlotTaken(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := NewAlertDispatcher(sender)
	dispatcher.Subscribe(10)

	dispatcher.NotifySignal(&domain.EvalResult{
		Symbol:    "ETHUSDT",
		Interval:  "1h",
		Direction: domain.DirectionShort,
		Mode:      "momentum",
	})

	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}
	if !strings.Contains(sender.messages[0], "slot taken") {
		t.Errorf("message should flag the taken slot:\n%s", sender.messages[0])
	}
}

func TestNotifyPositionUpdateFormatsCrossings(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := NewAlertDispatcher(sender)
	dispatcher.Subscribe(10)

	pos := domain.Position{
		Key:        domain.PositionKey{Symbol: "BTCUSDT", Interval: "4h", Direction: domain.DirectionLong},
		EntryPrice: 100,
	}
	update := domain.PositionUpdate{
		Key: pos.Key,
		Crossings: []domain.Crossing{
			{Kind: domain.CrossTarget, Target: 1, Level: 103, Price: 103.2, At: time.Unix(0, 0)},
			{Kind: domain.CrossStop, Level: 97, Price: 96.9, At: time.Unix(0, 0)},
		},
		Closed:     true,
		Reason:     domain.CloseStopHit,
		PnlPercent: -3.1,
	}

	dispatcher.NotifyPositionUpdate(update, pos)

	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	for _, want := range []string{"Target 1 hit at $103.2", "Stop hit at $96.9", "closed (STOP_HIT)", "-3.10%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNotifyWithoutSubscribersSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := NewAlertDispatcher(sender)

	dispatcher.NotifySignal(&domain.EvalResult{Symbol: "BTCUSDT"})
	dispatcher.NotifyPositionUpdate(domain.PositionUpdate{}, domain.Position{})

	if len(sender.messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(sender.messages))
	}
}
