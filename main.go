package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/km-arc/go-inject/app"
	foundation "github.com/km-arc/go-inject/framework/app"
	gohttp "github.com/km-arc/go-inject/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := foundation.New(ctx) // loads .env automatically
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap:", err)
		os.Exit(1)
	}
	log := application.Logger()
	cfg := application.Config()

	// ── Demo components ──────────────────────────────────────────────────────

	if err := application.Register(ctx, &app.ServiceProvider{Driver: cfg.DB.Driver, AdminID: 1}); err != nil {
		log.Fatal("register", zap.Error(err))
	}
	if err := application.Boot(ctx); err != nil {
		log.Fatal("boot", zap.Error(err))
	}

	r, err := application.Router(ctx)
	if err != nil {
		log.Fatal("router", zap.Error(err))
	}
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		gohttp.NewResponse(w).Success(map[string]any{
			"name":   cfg.App.Name,
			"scopes": application.Scopes(),
		})
	})

	if err := application.Run(ctx); err != nil {
		log.Fatal("run", zap.Error(err))
	}
}
