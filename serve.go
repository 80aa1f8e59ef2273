package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"peerlink/api"
	"peerlink/auth"
	"peerlink/broadcast"
	"peerlink/config"
	"peerlink/discovery"
	"peerlink/peering"
	"peerlink/presence"
	"peerlink/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var (
		listen string
		debug  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, listen, debug)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides server.listen_address")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func runServe(ctx context.Context, listen string, debug bool) error {
	cfg, cfgPath, dataDir, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := setLogLevel(cfg.Log.Level, debug); err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.ListenAddress = listen
	}

	keys, err := auth.LoadOrCreateKeys(cfg.Keys.Ed25519PrivateKeyPath, cfg.Keys.Ed25519PublicKeyPath)
	if err != nil {
		return fmt.Errorf("prepare signing keys: %w", err)
	}

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("database close error", "err", err)
		}
	}()

	log.Infow("starting",
		"server_id", cfg.Server.ServerID,
		"config", cfgPath,
		"database", dbPath,
		"fingerprint", keys.Fingerprint(),
	)
	if cfg.Disclosure.Unrestricted {
		log.Warn("unrestricted disclosure is enabled: peer and user IDs are visible to every viewer")
	}

	registry := presence.NewRegistry()
	hub := broadcast.NewHub(broadcast.Options{})
	defer hub.Close()

	service, err := peering.NewService(peering.Options{
		Registry:     registry,
		Directory:    store,
		Links:        store,
		Identities:   store,
		Publisher:    hub,
		Unrestricted: cfg.Disclosure.Unrestricted,
	})
	if err != nil {
		return err
	}
	if err := service.Subscribe(); err != nil {
		return err
	}

	server, err := api.NewServer(api.Options{
		Service:       service,
		Authenticator: auth.NewAuthenticator(store, auth.NewTokens(keys), cfg.Server.SessionTTL),
		Registry:      registry,
		Events:        hub,
		Store:         store,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddress, err)
	}

	if cfg.Discovery.Enabled {
		port := cfg.Discovery.Port
		if port == 0 {
			port = listenerPort(listener)
		}
		discoveryService, err := discovery.Start(discovery.Config{
			Service:     cfg.Discovery.Service,
			PeerService: cfg.Discovery.PeerService,
			ServerID:    cfg.Server.ServerID,
			Port:        port,
		}, registry)
		if err != nil {
			log.Warnw("discovery startup failed", "err", err)
		} else {
			defer discoveryService.Stop()
		}
	}

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	log.Infow("listening", "address", listener.Addr().String())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func listenerPort(listener net.Listener) int {
	_, rawPort, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return 0
	}
	return port
}
