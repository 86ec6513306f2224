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

	"erp-conflict-engine/internal/config"
	"erp-conflict-engine/internal/handler"
	"erp-conflict-engine/internal/middleware"
	"erp-conflict-engine/internal/repository"
	"erp-conflict-engine/internal/service"
	"erp-conflict-engine/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		log.Fatalf("Failed to connect to CouchDB: %v", err)
	}

	ctx := context.Background()

	exists, err := client.DBExists(ctx, cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to check database existence: %v", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
			log.Fatalf("Failed to create database: %v", err)
		}
		log.Printf("Created database: %s", cfg.Database.Name)
	}

	if err := repository.EnsureIndexes(ctx, client, cfg.Database.Name); err != nil {
		log.Printf("Failed to ensure indexes (history queries may be slow): %v", err)
	}

	conflictRepo := repository.NewConflictRepository(client, cfg.Database.Name)
	recordRepo := repository.NewRecordRepository(client, cfg.Database.Name)

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerUser,
		cfg.WebSocket.MaxMessageSize,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go wsManager.Run()

	notifier := websocket.NewNotifier(wsManager)

	conflictService := service.NewConflictService(conflictRepo, cfg, notifier)
	recordService := service.NewRecordService(recordRepo, conflictService)

	if err := conflictService.RebuildStatistics(ctx); err != nil {
		log.Printf("Failed to rebuild statistics from audit trail: %v", err)
	}

	conflictHandler := handler.NewConflictHandler(conflictService, cfg.Retention.MaxResolvedAgeDays)
	recordHandler := handler.NewRecordHandler(recordService)
	wsHandler := handler.NewWebSocketHandler(
		wsManager,
		cfg.JWT.Enabled,
		cfg.JWT.Secret,
		cfg.WebSocket.ReadBufferSize,
		cfg.WebSocket.WriteBufferSize,
	)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()
	if cfg.JWT.Enabled {
		api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	}

	api.HandleFunc("/conflicts", conflictHandler.ListActive).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/history", conflictHandler.History).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/stats", conflictHandler.Statistics).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/expire", conflictHandler.Expire).Methods("POST", "OPTIONS")
	api.HandleFunc("/conflicts/{id}", conflictHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/{id}/resolve", conflictHandler.Resolve).Methods("POST", "OPTIONS")

	api.HandleFunc("/records", recordHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/records/{id}", recordHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/records/{id}", recordHandler.Save).Methods("PUT", "OPTIONS")
	api.HandleFunc("/records/{id}", recordHandler.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/records/{id}/verify", recordHandler.Verify).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", healthHandler).Methods("GET")

	// Retention sweep: drop long-resolved conflicts from memory on a
	// schedule; the audit trail stays intact.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Retention.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := conflictService.ExpireOld(cfg.Retention.MaxResolvedAgeDays)
				if removed > 0 {
					log.Printf("Retention sweep removed %d resolved conflicts from memory", removed)
				}
			case <-sweepDone:
				return
			}
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting conflict engine on %s (env: %s)", addr, cfg.Server.Env)
		log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	close(sweepDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"erp-conflict-engine"}`))
}
