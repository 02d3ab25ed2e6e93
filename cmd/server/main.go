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

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/eharain/Rutba-POS-sub002/internal/config"
	"github.com/eharain/Rutba-POS-sub002/internal/httpapi"
	"github.com/eharain/Rutba-POS-sub002/internal/service"
	"github.com/eharain/Rutba-POS-sub002/internal/session"
	"github.com/eharain/Rutba-POS-sub002/internal/store"
	"github.com/eharain/Rutba-POS-sub002/internal/store/memory"
	pgstore "github.com/eharain/Rutba-POS-sub002/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not load .env: %v", err)
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("schema setup failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	parkedTTL := time.Duration(cfg.ParkedTTLMinutes) * time.Minute
	var parked session.ParkedSaleStore = session.NewMemoryParkedSaleStore()
	if cfg.RedisAddr != "" {
		redisParked := session.NewRedisParkedSaleStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, parkedTTL)
		if err := redisParked.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), parked sales kept in-memory", err)
		} else {
			parked = redisParked
			closers = append(closers, redisParked.Close)
			log.Println("parked sales: redis")
		}
	} else {
		log.Println("parked sales: in-memory")
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(cfg.ManagerPIN), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash manager PIN: %v", err)
	}

	svc := service.New(repo, session.NewManager(), parked, service.Config{
		BranchID:       cfg.BranchID,
		BranchCode:     cfg.BranchCode,
		DeskCode:       cfg.DeskCode,
		DefaultTaxRate: decimal.NewFromFloat(cfg.TaxRatePercent).Div(decimal.NewFromInt(100)),
		ManagerPINHash: pinHash,
	})
	tokens := httpapi.NewTokenManager(cfg.SessionSecret, time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	api := httpapi.New(svc, tokens, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("sales desk backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 4 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 4 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit or
// sequential in either direction.
func validatePINStrength(pin string) error {
	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
