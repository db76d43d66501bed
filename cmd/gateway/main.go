// Command gateway runs the access-control gateway: it terminates HTTP,
// authenticates callers, resolves the target tenant, and dispatches
// commands to that tenant's worker process over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/JoshuaRamirez/acs-gateway/internal/auth"
	"github.com/JoshuaRamirez/acs-gateway/internal/command"
	"github.com/JoshuaRamirez/acs-gateway/internal/config"
	"github.com/JoshuaRamirez/acs-gateway/internal/httpapi"
	"github.com/JoshuaRamirez/acs-gateway/internal/process"
	"github.com/JoshuaRamirez/acs-gateway/internal/rpcpool"
	"github.com/JoshuaRamirez/acs-gateway/internal/tenancy"
	"github.com/JoshuaRamirez/acs-gateway/internal/worker"
	"github.com/JoshuaRamirez/acs-gateway/pkg/fs"
	"github.com/JoshuaRamirez/acs-gateway/pkg/metrics"
	"github.com/JoshuaRamirez/acs-gateway/pkg/schema"
)

func main() {
	configPath := flag.String("config", "", "path to the gateway YAML config file")
	httpAddr := flag.String("http-addr", "", "overrides httpAddr from the config file")
	flag.Usage = printUsage
	flag.Parse()

	log.Println("=== ACS Gateway ===")

	cfg, err := config.LoadGatewayConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if cfg.JWTSecret == "" {
		log.Fatal("jwtSecret must be set in the config file")
	}

	log.Printf("HTTP address: %s", cfg.HTTPAddr)
	log.Printf("Worker port range: %d-%d", cfg.MinPort, cfg.MaxPort)
	log.Printf("Tenants loaded from config: %d", len(cfg.Tenants))

	var registry *tenancy.Registry
	if cfg.TenantCatalogPath != "" {
		storage, err := fs.NewStorage(cfg.TenantCatalogPath)
		if err != nil {
			log.Fatalf("Failed to open tenant catalog store: %v", err)
		}
		catalogStore := tenancy.NewCatalogStore(storage)
		registry, err = tenancy.NewRegistryWithStore(cfg.Tenants, catalogStore)
		if err != nil {
			log.Fatalf("Failed to load persisted tenant catalog: %v", err)
		}
		log.Printf("Tenant catalog persisted at %s", cfg.TenantCatalogPath)
	} else {
		registry = tenancy.NewRegistry(cfg.Tenants)
	}
	resolver := tenancy.NewResolver(registry, cfg.DevDefaultTenant)

	validator, err := auth.NewJWTValidator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		log.Fatalf("Failed to build JWT validator: %v", err)
	}

	gatewayMetrics := metrics.NewGatewayMetrics()
	go gatewayMetrics.Serve(cfg.MetricsAddr)

	pool := rpcpool.New()
	manager := process.NewManager(process.Options{
		MinPort:            cfg.MinPort,
		MaxPort:            cfg.MaxPort,
		HealthPollAttempts: cfg.HealthPollAttempts,
		HealthPollInterval: cfg.HealthPollInterval,
		StopTimeout:        cfg.StopTimeout,
		Launcher:           workerLauncher{binary: cfg.WorkerBinary, masterKeyHex: cfg.MasterKeyHex, keyStorePath: cfg.KeyStorePath},
		Dialer:             &process.RPCDialer{Pool: pool},
	})

	typeRegistry := command.NewTypeRegistry(worker.TypeNames()...)
	dispatcher := command.NewDispatcher(typeRegistry, manager, pool, gatewayMetrics)

	var validatorSvc *schema.Validator
	if cfg.SchemaTemplatesPath != "" {
		v, err := schema.NewValidator(cfg.SchemaTemplatesPath)
		if err != nil {
			log.Printf("[warn] failed to initialise schema validator: %v — schema validation disabled", err)
		} else {
			validatorSvc = v
		}
	}

	srv := httpapi.NewServer(httpapi.Options{
		Resolver:   resolver,
		Registry:   registry,
		Dispatcher: dispatcher,
		Validator:  validatorSvc,
		Metrics:    gatewayMetrics,
		Auth:       validator,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("Gateway listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server exited: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := manager.Dispose(shutdownCtx); err != nil {
		log.Printf("Tenant worker shutdown error: %v", err)
	}
	if err := pool.Close(); err != nil {
		log.Printf("RPC pool close error: %v", err)
	}
	log.Println("Gateway stopped")
}

// workerLauncher implements process.Launcher by exec'ing the
// tenant-worker binary with TENANT_ID and RPC_PORT set, the same
// environment-variable handoff cmd/tenant-worker's config.ResolveTenantWorkerConfig
// reads back out.
type workerLauncher struct {
	binary       string
	masterKeyHex string
	keyStorePath string
}

func (l workerLauncher) Launch(ctx context.Context, tenantID string, port int) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, l.binary)
	env := append(os.Environ(),
		fmt.Sprintf("TENANT_ID=%s", tenantID),
		fmt.Sprintf("RPC_PORT=%s", strconv.Itoa(port)),
	)
	if l.masterKeyHex != "" {
		env = append(env, fmt.Sprintf("ACS_MASTER_KEY=%s", l.masterKeyHex))
	}
	if l.keyStorePath != "" {
		env = append(env, fmt.Sprintf("ACS_KEY_STORE_PATH=%s", l.keyStorePath))
	}
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func printUsage() {
	fmt.Println("ACS Gateway")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gateway [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  gateway -config=./gateway.yaml")
	fmt.Println()
}
