package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TradeGate/internal/config"
	"TradeGate/internal/core"
	"TradeGate/internal/event"
	"TradeGate/internal/gateway"
	"TradeGate/internal/observability"
	"TradeGate/internal/publish"
)

// The binary runs a full session against the in-process mock gateway:
// handshake, subscription, a demo order, and a synthetic tick feed.
// Swapping the mock for a real gateway binding is a one-line change in
// buildGateway.

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: TradeGate starting...")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("FATAL: config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Gateway + client ---
	gw := buildGateway()
	client := core.New(cfg, gw, metrics, healthChecker)

	// --- Optional NATS republisher ---
	var pubChan chan event.Event
	errChan := make(chan error, 4)
	if cfg.NATS.Enabled {
		nc, js, err := publish.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("FATAL: nats connect: %v", err)
		}
		defer nc.Close()
		if err := publish.EnsureStream(ctx, js, cfg.NATS.SubjectPrefix); err != nil {
			log.Fatalf("FATAL: ensure outbound stream: %v", err)
		}
		pubChan = make(chan event.Event, 1024)
		publisher := publish.New(js, cfg.NATS.SubjectPrefix, pubChan, metrics)
		go func() {
			errChan <- publisher.Run(ctx)
		}()
		log.Printf("INFO: NATS republisher enabled (%s)", cfg.NATS.URL)
	}

	// --- Event consumer ---
	go consumeEvents(client, pubChan, metrics)

	// --- Metrics + health server ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", healthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", healthChecker.ReadinessHandler)
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			srv.Shutdown(shutCtx)
		}()
		log.Printf("INFO: metrics server listening on %s/metrics", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// --- Session ---
	if err := client.Connect(); err != nil {
		log.Fatalf("FATAL: connect: %v", err)
	}

	// --- Demo scenario ---
	go runScenario(ctx, client, gw)

	log.Printf("INFO: TradeGate ready (http=%s)", cfg.HTTPAddr)

	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	cancel()
	client.Shutdown()
	log.Println("INFO: TradeGate shutdown complete")
}

func loadConfig() (config.Config, error) {
	if path := os.Getenv("TRADEGATE_CONFIG"); path != "" {
		return config.Load(path)
	}
	cfg := config.SimNow()
	if os.Getenv("TRADEGATE_ENV") == "tts" {
		cfg = config.TTS()
	}
	cfg.Credentials = config.Credentials{
		BrokerID: envOrDefault("TRADEGATE_BROKER_ID", "9999"),
		UserID:   envOrDefault("TRADEGATE_USER_ID", "demo"),
		Password: envOrDefault("TRADEGATE_PASSWORD", "demo123"),
		AppID:    envOrDefault("TRADEGATE_APP_ID", "demo_app"),
		AuthCode: envOrDefault("TRADEGATE_AUTH_CODE", "0000000000000000"),
	}
	cfg.Filters.PriceChangeMin = 0.001
	if v := os.Getenv("TRADEGATE_NATS_ENABLED"); v == "true" || v == "1" {
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("TRADEGATE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	return cfg, cfg.Validate()
}

func buildGateway() *gateway.Mock {
	m := gateway.NewMock(observability.NewLogger("mock_gateway"))
	m.AutoFill = true
	return m
}

func consumeEvents(client *core.Client, pubChan chan event.Event, metrics *observability.Metrics) {
	logger := observability.NewLogger("consumer")
	for ev := range client.Events() {
		switch v := ev.(type) {
		case event.LoginSuccess:
			logger.Info().
				Str("trading_day", v.Login.TradingDay).
				Int("session_id", v.Login.SessionID).
				Msg("logged in")
		case event.MarketData:
			logger.Info().
				Str("instrument", v.Tick.InstrumentID).
				Float64("last_price", v.Tick.LastPrice).
				Int64("volume", v.Tick.Volume).
				Msg("tick")
		case event.OrderUpdate:
			logger.Info().
				Str("order_key", v.Snapshot.Key.String()).
				Str("status", v.Snapshot.Status.String()).
				Msg("order update")
		case event.TradeUpdate:
			logger.Info().
				Str("trade_id", v.Trade.TradeID).
				Float64("price", v.Trade.Price).
				Int("volume", v.Trade.Volume).
				Msg("trade")
		case event.Error:
			logger.Warn().Err(v.Err).Msg("session error")
		default:
			logger.Debug().Str("event_type", ev.EventType().String()).Msg("event")
		}

		if pubChan != nil {
			select {
			case pubChan <- ev:
			default:
				metrics.PublishDrops.Inc()
			}
		}
	}
	if pubChan != nil {
		close(pubChan)
	}
}

// runScenario waits for the session to become ready, subscribes to a
// contract, feeds it synthetic ticks, and places one demo order.
func runScenario(ctx context.Context, client *core.Client, gw *gateway.Mock) {
	for !client.State().Usable() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}

	const instrument = "rb2405"
	if err := client.Subscribe(instrument); err != nil {
		log.Printf("ERROR: subscribe: %v", err)
		return
	}

	key, err := client.SubmitOrder(gateway.OrderRequest{
		InstrumentID: instrument,
		Direction:    gateway.DirectionBuy,
		Offset:       gateway.OffsetOpen,
		Type:         gateway.OrderTypeLimit,
		Price:        3500,
		Volume:       1,
	})
	if err != nil {
		log.Printf("ERROR: submit order: %v", err)
		return
	}
	log.Printf("INFO: demo order placed (%s)", key)

	queryCtx, cancelQuery := context.WithTimeout(ctx, 10*time.Second)
	defer cancelQuery()
	if account, err := client.QueryAccount(queryCtx); err == nil {
		log.Printf("INFO: account balance=%.2f available=%.2f", account.Balance, account.Available)
	}

	price := 3500.0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var volume int64
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			// Small random-walk drift keyed off wall time.
			price += float64(t.UnixNano()%7-3) * 0.2
			volume += int64(t.UnixNano()%5 + 1)
			gw.InjectTick(gateway.Tick{
				InstrumentID: instrument,
				LastPrice:    price,
				Volume:       volume,
				BidPrice:     price - 1,
				BidVolume:    10,
				AskPrice:     price + 1,
				AskVolume:    10,
				UpdateTime:   t,
			})
		}
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
