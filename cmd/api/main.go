package main

import (
	"context"
	"errors"
	"flag"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ajeenpos/internal/config"
	"ajeenpos/internal/db"
	"ajeenpos/internal/dispatch"
	"ajeenpos/internal/events"
	"ajeenpos/internal/http"
	"ajeenpos/internal/hub"
	"ajeenpos/internal/orders"
	"ajeenpos/internal/payments"
	"ajeenpos/internal/printer"
	"ajeenpos/internal/provider"
	"ajeenpos/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	bus := hub.New()

	printers := make(map[string]printer.PrinterConfig, len(cfg.Printing.Printers))
	for name, p := range cfg.Printing.Printers {
		printers[name] = printer.PrinterConfig{Role: p.Role, Enabled: p.Enabled}
	}
	printClient := printer.NewClient(cfg.Printing.AgentBaseURL, printers)

	dispatcher := dispatch.New(bus, printClient, st, cfg.Location.ID)
	prov := provider.NewHTTPClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)

	gateway := events.NewGateway(st, dispatcher, prov, cfg.Provider.Currency)
	orderSvc := orders.NewService(st, dispatcher)
	refundSvc := payments.NewRefundService(st, prov, dispatcher)

	handler := &http.Handler{
		Orders:        orderSvc,
		Gateway:       gateway,
		Refunds:       refundSvc,
		Printer:       printClient,
		WebhookSecret: cfg.Provider.WebhookSecret,
	}
	server := http.NewServer(cfg.Server.Addr, handler, bus)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
