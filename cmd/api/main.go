package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/socertis/bnpl-simulator/internal/config"
	"github.com/socertis/bnpl-simulator/internal/handler"
	"github.com/socertis/bnpl-simulator/internal/integrations/keyrate"
	"github.com/socertis/bnpl-simulator/internal/middleware"
	"github.com/socertis/bnpl-simulator/internal/scheduler"
	"github.com/socertis/bnpl-simulator/internal/service"
	"github.com/socertis/bnpl-simulator/internal/store"
	"github.com/socertis/bnpl-simulator/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize storage
	var st store.Storage
	switch cfg.DBDriver {
	case "sqlite3":
		st, err = store.NewSQLite(cfg.DBConn, logger)
	default:
		st, err = store.NewPostgres(cfg.DBConn, logger)
	}
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	defer st.Close()

	// Initialize layers
	svc := service.NewService(st, logger, cfg)
	h := handler.NewHandler(svc, logger)
	rateClient := keyrate.NewClient(cfg, logger)
	sender := email.NewSender(cfg, logger)

	// Start scheduled jobs
	sched := scheduler.NewScheduler(svc, sender, cfg, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Key rate endpoint
	r.HandleFunc("/key-rate", func(w http.ResponseWriter, r *http.Request) {
		rate, err := rateClient.SuggestedRate()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get key rate: %v", err), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"key_rate": rate})
	}).Methods("GET")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/plans", h.CreatePlan).Methods("POST")
	authRouter.HandleFunc("/plans", h.ListPlans).Methods("GET")
	authRouter.HandleFunc("/plans/{id:[0-9]+}", h.GetPlan).Methods("GET")
	authRouter.HandleFunc("/plans/{id:[0-9]+}/cancel", h.CancelPlan).Methods("POST")
	authRouter.HandleFunc("/installments/{id:[0-9]+}/pay", h.PayInstallment).Methods("POST")
	authRouter.HandleFunc("/installments/{id:[0-9]+}/revert", h.RevertInstallment).Methods("POST")
	authRouter.HandleFunc("/installments/{id:[0-9]+}", h.DeleteInstallment).Methods("DELETE")
	authRouter.HandleFunc("/overdue/sweep", h.OverdueSweep).Methods("POST")
	authRouter.HandleFunc("/overdue/report", h.OverdueReport).Methods("GET")
	authRouter.HandleFunc("/dashboard", h.Dashboard).Methods("GET")
	authRouter.HandleFunc("/reports/merchant", h.MerchantReport).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
