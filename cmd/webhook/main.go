/*
Copyright 2025 The Pebble Webhook Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/ahoma/pebble-webhook/internal/config"
	"github.com/ahoma/pebble-webhook/internal/server"
	"github.com/ahoma/pebble-webhook/pkg/logging"
	"github.com/ahoma/pebble-webhook/pkg/webhook"
)

var (
	// Build-time variables
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to the YAML configuration file.")
		port        = flag.Int("port", 0, "HTTPS listen port (overrides configuration).")
		certDir     = flag.String("cert-dir", "", "Directory containing the serving certificate pair (overrides configuration).")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error; overrides configuration).")
		showVersion = flag.Bool("version", false, "Show version information and exit.")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("Pebble Admission Webhook\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Build Date: %s\n", buildDate)
		os.Exit(0)
	}

	cfg, err := config.NewLoader().WithConfigFile(*configFile).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *certDir != "" {
		cfg.Server.CertDir = *certDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.NewLogger(&cfg.Logging)
	ctrl.SetLogger(logger)

	setupLog := logger.WithName("setup")
	setupLog.Info("Starting Pebble admission webhook",
		"version", version,
		"commit", commit,
		"buildDate", buildDate,
		"port", cfg.Server.Port,
		"cert-dir", cfg.Server.CertDir,
		"metrics-enabled", cfg.Metrics.Enabled,
	)

	// Serving without TLS identity is unsafe, so missing or unreadable
	// certificate material is fatal before the listener opens.
	certWatcher := webhook.NewCertificateWatcher(cfg.Server.CertPath(), cfg.Server.KeyPath())
	if err := certWatcher.Load(); err != nil {
		setupLog.Error(err, "failed to load TLS certificate material")
		os.Exit(1)
	}

	scheme := runtime.NewScheme()
	if err := corev1.AddToScheme(scheme); err != nil {
		setupLog.Error(err, "failed to register core/v1 types")
		os.Exit(1)
	}
	if err := admissionv1.AddToScheme(scheme); err != nil {
		setupLog.Error(err, "failed to register admission/v1 types")
		os.Exit(1)
	}

	kubeClient := inClusterClient(setupLog)

	mutateHandler := webhook.NewMutationHandler(scheme)
	webhookServer := server.NewWebhookServer(mutateHandler, scheme)
	healthChecker := server.NewHealthChecker(kubeClient, cfg.Server.CertPath(), cfg.Server.KeyPath())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	var mutateMiddleware []gin.HandlerFunc
	mutateMiddleware = append(mutateMiddleware, server.BodyLimit(cfg.Server.MaxRequestBytes))
	if cfg.Server.RateLimit.Enabled {
		mutateMiddleware = append(mutateMiddleware,
			server.RateLimit(cfg.Server.RateLimit.QPS, cfg.Server.RateLimit.Burst))
	}
	webhookServer.SetupRoutes(router, mutateMiddleware...)
	healthChecker.SetupRoutes(router)
	if cfg.Metrics.Enabled {
		server.NewMetricsServer().SetupRoutes(router)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		TLSConfig: &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: certWatcher.GetCertificate,
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := certWatcher.Start(ctx); err != nil {
			setupLog.Error(err, "certificate watcher stopped")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		setupLog.Info("Listening for admission requests", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			setupLog.Error(err, "webhook server failed")
			os.Exit(1)
		}
	case <-ctx.Done():
		setupLog.Info("Shutting down webhook server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "graceful shutdown failed")
			os.Exit(1)
		}
	}

	setupLog.Info("Webhook server stopped")
}

// inClusterClient builds a Kubernetes client when running inside a cluster.
// The webhook itself never talks to the apiserver; the client only feeds the
// readiness probe, so running without one is fine.
func inClusterClient(logger logr.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		logger.Info("Not running in-cluster, skipping apiserver readiness check")
		return nil
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		logger.Info("Failed to build Kubernetes client, skipping apiserver readiness check", "error", err)
		return nil
	}
	return client
}
