// Command masterd runs the UDP master-server registry: it accepts ADD
// registrations, verifies reachability from an independent socket,
// answers client QUERY/GET_METADATA requests, brokers NAT hole punches,
// and optionally issues signed demo tokens.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doomward/masterd/pkg/banlist"
	"github.com/doomward/masterd/pkg/config"
	"github.com/doomward/masterd/pkg/directory"
	"github.com/doomward/masterd/pkg/logging"
	"github.com/doomward/masterd/pkg/master"
	"github.com/doomward/masterd/pkg/metrics"
	"github.com/doomward/masterd/pkg/signer"
	"github.com/doomward/masterd/pkg/status"
)

const version = "1.0.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("masterd v%s\n", version)
			return
		}
	}
	run()
}

func run() {
	fs := flag.NewFlagSet("masterd", flag.ExitOnError)
	configFile := fs.String("config", "configs/masterd.yaml", "Path to configuration file")
	fs.Parse(os.Args[1:])

	log.Printf("loading configuration from %s", *configFile)
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, logFile, err := logging.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	publicConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.ServerAddress.Host), Port: int(cfg.ServerAddress.Port)})
	if err != nil {
		log.Fatalf("failed to bind public socket on %s: %v", cfg.ServerAddress, err)
	}
	defer publicConn.Close()
	log.Printf("public socket listening on %s", publicConn.LocalAddr())

	var verifyConn *net.UDPConn
	var verifyAddrString string
	if cfg.QueryAddress != nil {
		verifyConn, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.QueryAddress.Host), Port: int(cfg.QueryAddress.Port)})
		if err != nil {
			log.Fatalf("failed to bind verification socket on %s: %v", cfg.QueryAddress, err)
		}
		defer verifyConn.Close()
		verifyAddrString = cfg.QueryAddress.String()
		log.Printf("verification socket listening on %s", verifyConn.LocalAddr())
	} else {
		log.Println("no query_address configured: registrations will never verify")
	}

	var sg signer.Signer
	var nonces *signer.NonceStore
	if len(cfg.SigningKey) > 0 {
		nonces, err = signer.OpenNonceStore(cfg.NonceDBPath)
		if err != nil {
			log.Fatalf("failed to open nonce store: %v", err)
		}
		defer nonces.Close()
		sg = signer.NewJWTSigner(cfg.SigningKey, nonces)
		log.Println("demo signing enabled")
	} else {
		log.Println("no signing_key configured: SIGN_START/SIGN_END are disabled")
	}

	var statusServer *status.Server
	if cfg.StatusListenAddress != "" {
		statusServer = status.New()
		httpServer := &http.Server{
			Addr:    cfg.StatusListenAddress,
			Handler: statusServer.Router(),
		}
		go func() {
			log.Printf("status service listening on %s", cfg.StatusListenAddress)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("status service stopped: %v", err)
			}
		}()
	}

	engineCfg := master.Config{
		Directory:           directory.New(),
		Bans:                banlist.New(cfg.BlockAddresses),
		Signer:              sg,
		Metrics:             metrics.New(),
		Status:              statusServer,
		Logger:              logger,
		Public:              publicConn,
		VerifyAddr:          verifyAddrString,
		ServerTimeout:       cfg.ServerTimeout,
		MetadataRefreshTime: cfg.MetadataRefreshTime,
	}
	// verifyConn must only be assigned when non-nil: a nil *net.UDPConn
	// boxed into the Verify interface field is a non-nil interface value,
	// which would defeat the engine's "verification disabled" check.
	if verifyConn != nil {
		engineCfg.Verify = verifyConn
	}
	engine := master.New(engineCfg)

	publicCh := make(chan master.Datagram, 256)
	go master.ReadLoop(publicConn, publicCh)

	var verifyCh chan master.Datagram
	if verifyConn != nil {
		verifyCh = make(chan master.Datagram, 256)
		go master.ReadLoop(verifyConn, verifyCh)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx, publicCh, verifyCh)
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("masterd is running. Press Ctrl+C to stop.")
	<-sigChan

	log.Println("shutting down...")
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Println("engine did not stop in time, exiting anyway")
	}
	log.Println("masterd stopped")
}
