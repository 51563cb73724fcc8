package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"signal-alert/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 90 * time.Second
	reconnectBase    = time.Second
	reconnectMax     = time.Minute
	warmupCandles    = 250
)

type CandleSink interface {
	UpsertCandles(ctx context.Context, candles []*domain.Candle) error
}

type CandleWarmer interface {
	RefreshCandles(ctx context.Context, symbol, interval string, limit int) error
}

// KlineFeed subscribes to the combined Binance kline stream and forwards
// closed candles. Open (still-forming) candles are ignored so downstream
// evaluation only ever sees final closes.
type KlineFeed struct {
	baseURL   string
	symbols   []string
	intervals []string
	sink      CandleSink
	warmer    CandleWarmer
	onClose   func(ctx context.Context, candle *domain.Candle)
}

func NewKlineFeed(baseURL string, symbols, intervals []string, sink CandleSink, warmer CandleWarmer, onClose func(ctx context.Context, candle *domain.Candle)) *KlineFeed {
	return &KlineFeed{
		baseURL:   baseURL,
		symbols:   symbols,
		intervals: intervals,
		sink:      sink,
		warmer:    warmer,
		onClose:   onClose,
	}
}

func (f *KlineFeed) streamURL() string {
	streams := make([]string, 0, len(f.symbols)*len(f.intervals))
	for _, symbol := range f.symbols {
		for _, interval := range f.intervals {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval))
		}
	}
	return fmt.Sprintf("%s/stream?streams=%s", f.baseURL, strings.Join(streams, "/"))
}

// Run backfills candle history, then connects and reads until the context is
// cancelled, reconnecting with backoff on any error.
func (f *KlineFeed) Run(ctx context.Context) {
	f.warmup(ctx)

	backoff := reconnectBase
	for {
		if err := f.readLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("kline feed disconnected: %v, reconnecting in %s", err, backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// warmup backfills recent klines so the first candle-close evaluation has
// enough history behind it.
func (f *KlineFeed) warmup(ctx context.Context) {
	if f.warmer == nil {
		return
	}
	for _, symbol := range f.symbols {
		for _, interval := range f.intervals {
			if ctx.Err() != nil {
				return
			}
			if err := f.warmer.RefreshCandles(ctx, symbol, interval, warmupCandles); err != nil {
				log.Printf("kline feed: warmup %s/%s failed: %v", symbol, interval, err)
			}
		}
	}
}

func (f *KlineFeed) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Printf("kline feed connected: %d streams", len(f.symbols)*len(f.intervals))

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(readTimeout / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(ctx, message)
	}
}

type klinePayload struct {
	Data struct {
		Kline struct {
			OpenTime int64  `json:"t"`
			Symbol   string `json:"s"`
			Interval string `json:"i"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			IsClosed bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (f *KlineFeed) handleMessage(ctx context.Context, message []byte) {
	var payload klinePayload
	if err := json.Unmarshal(message, &payload); err != nil {
		log.Printf("kline feed: bad message: %v", err)
		return
	}
	k := payload.Data.Kline
	if k.Symbol == "" || !k.IsClosed {
		return
	}

	candle, err := candleFromPayload(k.Symbol, k.Interval, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		log.Printf("kline feed: bad candle for %s/%s: %v", k.Symbol, k.Interval, err)
		return
	}

	if f.sink != nil {
		if err := f.sink.UpsertCandles(ctx, []*domain.Candle{candle}); err != nil {
			log.Printf("kline feed: failed to persist candle for %s/%s: %v", k.Symbol, k.Interval, err)
		}
	}
	if f.onClose != nil {
		f.onClose(ctx, candle)
	}
}

func candleFromPayload(symbol, interval string, openMs int64, open, high, low, closePrice, volume string) (*domain.Candle, error) {
	fields := [5]float64{}
	for i, raw := range [5]string{open, high, low, closePrice, volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	return &domain.Candle{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}
