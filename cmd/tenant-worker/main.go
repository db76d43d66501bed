// Command tenant-worker runs one tenant's isolated worker process: an
// in-memory authorization graph and encrypted field store, fed
// commands one at a time by a CommandBuffer and exposed to the gateway
// over gRPC.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoshuaRamirez/acs-gateway/internal/command"
	"github.com/JoshuaRamirez/acs-gateway/internal/config"
	"github.com/JoshuaRamirez/acs-gateway/internal/crypto"
	"github.com/JoshuaRamirez/acs-gateway/internal/keystore"
	"github.com/JoshuaRamirez/acs-gateway/internal/worker"
	pkgcrypto "github.com/JoshuaRamirez/acs-gateway/pkg/crypto"
	"github.com/JoshuaRamirez/acs-gateway/pkg/metrics"
)

func main() {
	tenantID := flag.String("tenant", "", "tenant id this worker serves (falls back to $TENANT_ID)")
	rpcPort := flag.String("port", "", "gRPC listen port (falls back to $RPC_PORT)")
	keyStorePath := flag.String("key-store", defaultKeyStorePath(), "path to the shared KeyStore directory (falls back to $ACS_KEY_STORE_PATH)")
	masterKeyHex := flag.String("master-key", os.Getenv("ACS_MASTER_KEY"), "master key wrapping tenant keys (hex-encoded 32 bytes; defaults to $ACS_MASTER_KEY)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics server address (e.g. :9091); empty disables it")
	queueCapacity := flag.Int("queue-capacity", command.DefaultCapacity, "CommandBuffer bounded queue depth")
	flag.Usage = printUsage
	flag.Parse()

	cfg := config.ResolveTenantWorkerConfig(*tenantID, *rpcPort)
	if cfg.TenantID == "" {
		log.Fatal("tenant id is required: pass -tenant or set $TENANT_ID")
	}

	log.Printf("=== ACS Tenant Worker (%s) ===", cfg.TenantID)
	log.Printf("RPC address: %s", cfg.RPCAddr)

	masterKey, err := resolveMasterKey(*masterKeyHex)
	if err != nil {
		log.Fatalf("Failed to resolve master key: %v", err)
	}

	ks, err := keystore.New(*keyStorePath, masterKey)
	if err != nil {
		log.Fatalf("Failed to open key store: %v", err)
	}

	engine, err := crypto.NewEngine(ks, 256)
	if err != nil {
		log.Fatalf("Failed to build encryption engine: %v", err)
	}

	var workerMetrics *metrics.TenantWorkerMetrics
	if *metricsAddr != "" {
		workerMetrics = metrics.NewTenantWorkerMetrics()
		go workerMetrics.Serve(*metricsAddr)
	}

	w := worker.NewWorker(cfg.TenantID, engine)
	buf := command.NewBuffer(cfg.TenantID, w.Handle,
		command.WithMetrics(workerMetrics),
		command.WithCapacity(*queueCapacity),
	)

	ctx, cancel := context.WithCancel(context.Background())

	go buf.Run(ctx)

	srv := NewServer(cfg.TenantID, buf)
	go func() {
		if err := srv.Serve(cfg.RPCAddr); err != nil {
			log.Printf("[%s] gRPC server exited: %v", cfg.TenantID, err)
		}
	}()

	log.Printf("[%s] tenant worker started", cfg.TenantID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Printf("[%s] shutdown signal received", cfg.TenantID)
	cancel()
	log.Printf("[%s] tenant worker stopped", cfg.TenantID)
}

// resolveMasterKey decodes hexKey, or generates a fresh 32-byte key
// and prints it (matching cmd/main-worker's own master-key handling)
// when the caller has not supplied one.
func resolveMasterKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		key, err := pkgcrypto.GenerateKey(32)
		if err != nil {
			return nil, err
		}
		log.Println("Generated new master encryption key")
		log.Printf("Key (hex): %s", hex.EncodeToString(key))
		log.Println("IMPORTANT: Save this key securely! It is needed to decrypt tenant keys.")
		return key, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid -master-key: %w", err)
	}
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("-master-key must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
	return key, nil
}

func defaultKeyStorePath() string {
	if p := os.Getenv("ACS_KEY_STORE_PATH"); p != "" {
		return p
	}
	return "./shared/keystore"
}

func printUsage() {
	fmt.Println("ACS Tenant Worker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tenant-worker [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  tenant-worker -tenant=acme -port=5001")
	fmt.Println()
}
