package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"theme-store/internal/config"
	"theme-store/internal/db"
	"theme-store/internal/repository"
	"theme-store/internal/service"
)

const (
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

// otp_sweep ejecuta una sola pasada de limpieza de otp_codes; pensado para cron.
func main() {
	migrate := flag.Bool("migrate", false, "aplica schema.sql antes de limpiar")
	timeout := flag.Duration("timeout", time.Minute, "tiempo máximo de la pasada")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if *migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("db migrate: %v", err)
		}
		fmt.Printf("%s[schema]%s applied\n", colorCyan, colorReset)
	}

	settings := service.NewSettingsProvider(zap.NewNop(), repository.NewPgSettingsRepository(pool), cfg.Store.OTPSettings())
	if err := settings.Reload(ctx); err != nil {
		log.Printf("warning: settings load failed, using environment defaults: %v", err)
	}

	janitor := service.NewOTPJanitor(zap.NewNop(), repository.NewPgOTPRepository(pool), settings)
	n, err := janitor.Sweep(ctx)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}
	fmt.Printf("%s[sweep]%s deleted %d expired otp codes\n", colorGreen, colorReset, n)
}
