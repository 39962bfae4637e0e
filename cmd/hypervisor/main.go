// Command hypervisor runs the confidential compute gateway: a per-session
// handshake, a decrypt -> execute -> commit -> encrypt pipeline for WASM
// and policy-script guests, and an X402 payment gate in front of the
// paid variants.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/enclaverun/hypervisor/internal/attestation"
	"github.com/enclaverun/hypervisor/internal/config"
	"github.com/enclaverun/hypervisor/internal/handshake"
	"github.com/enclaverun/hypervisor/internal/httpapi"
	"github.com/enclaverun/hypervisor/internal/logging"
	"github.com/enclaverun/hypervisor/internal/payment"
	"github.com/enclaverun/hypervisor/internal/pipeline"
	"github.com/enclaverun/hypervisor/internal/policyexec"
	"github.com/enclaverun/hypervisor/internal/session"
	"github.com/enclaverun/hypervisor/internal/wasmexec"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to hypervisor TOML config")
	flag.Parse()

	if v := os.Getenv("HYPERVISOR_CONFIG"); v != "" && *configPath == "" {
		*configPath = v
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	log := logging.New(cfg.Debug)
	defer log.Sync()

	log.Info("starting hypervisor",
		zap.String("listening", cfg.Listening),
		zap.Bool("hardware_attestation", cfg.Enclave.Hardware),
	)

	store, err := session.New(cfg.Session.MaxSessions)
	if err != nil {
		log.Error("build session store", zap.Error(err))
		return 1
	}

	var attestor attestation.Provider
	if cfg.Enclave.Hardware {
		attestor = attestation.NewTEEProvider(cfg.Enclave.EnclaveID, nil)
	} else {
		attestor = attestation.StubProvider{}
	}

	handshakeSvc := handshake.New(store, attestor)

	wasmLimits := wasmexec.Limits{
		MemoryMaxBytes:   cfg.Executor.MemoryMaxBytes,
		WallClockTimeout: cfg.Executor.WallClockTimeout,
		FuelTimeout:      cfg.Executor.FuelTimeout,
	}
	policyLimits := policyexec.Limits{
		MemoryMaxBytes:   cfg.Executor.MemoryMaxBytes,
		WallClockTimeout: cfg.Executor.WallClockTimeout,
		FuelTimeout:      cfg.Executor.FuelTimeout,
	}
	pipe := pipeline.New(wasmexec.New(), policyexec.New(), attestor, wasmLimits, policyLimits)
	sem := pipeline.NewSemaphore(cfg.Executor.MaxConcurrentRuns)

	facilitator := payment.NewHTTPFacilitator(cfg.Payment.FacilitatorURL, 10*time.Second)
	gate := payment.NewGate(facilitator, cfg.Payment.SettleRetryAttempts, 500*time.Millisecond)

	execAccepts := payment.DefaultAccepts(cfg.Payment.Network, cfg.Payment.PayTo, cfg.Payment.MaxAmountRequired, "/x402_execute/test/wasm")
	verifyAccepts := payment.DefaultAccepts(cfg.Payment.Network, cfg.Payment.PayTo, cfg.Payment.MaxAmountRequired, "/x402_execute/verifiable/wasm")
	policyAccepts := payment.DefaultAccepts(cfg.Payment.Network, cfg.Payment.PayTo, cfg.Payment.MaxAmountRequired, "/x402_policy/unsafe/python")

	handler := httpapi.NewHandler(httpapi.Config{
		Handshake:     handshakeSvc,
		Store:         store,
		Pipeline:      pipe,
		Semaphore:     sem,
		Gate:          gate,
		Log:           log,
		ExecAccepts:   execAccepts,
		VerifyAccepts: verifyAccepts,
		PolicyAccepts: policyAccepts,
	})

	server := &http.Server{
		Addr:         cfg.Listening,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Executor.WallClockTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Listening))
		serveErr <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			return 1
		}
	case <-sigCh:
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
			return 1
		}
	}

	log.Info("hypervisor stopped")
	return 0
}
