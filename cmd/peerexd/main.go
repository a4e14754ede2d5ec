package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/peerex-network/peerex-daemon/config"
	"github.com/peerex-network/peerex-daemon/internal/core/application"
	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/protocol"
	"github.com/peerex-network/peerex-daemon/internal/infrastructure/account/static"
	dbbadger "github.com/peerex-network/peerex-daemon/internal/infrastructure/storage/db/badger"
	"github.com/peerex-network/peerex-daemon/internal/infrastructure/transport/inproc"
	"github.com/peerex-network/peerex-daemon/internal/infrastructure/wallet/simnet"
	"github.com/peerex-network/peerex-daemon/pkg/circuitbreaker"
)

func main() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	datadir := config.GetDatadir()

	signingKey, err := loadOrCreateSigningKey(filepath.Join(datadir, "signing.key"))
	if err != nil {
		log.WithError(err).Panic("loading signing key failed")
	}

	dbManager, err := dbbadger.NewDbManager(filepath.Join(datadir, config.DbLocation), nil)
	if err != nil {
		log.WithError(err).Panic("opening database failed")
	}
	defer dbManager.Close()

	nodeAddress := domain.NodeAddress(config.GetString(config.NodeAddressKey))
	if nodeAddress == "" {
		log.Panicf("%s must be set", config.NodeAddressKey)
	}

	resolvers := make([]domain.NodeAddress, 0)
	for _, r := range config.GetStringSlice(config.AcceptedResolversKey) {
		resolvers = append(resolvers, domain.NodeAddress(r))
	}

	hub := inproc.NewHub()
	services := &protocol.Services{
		Wallet:    simnet.NewWallet(simnet.NewChain(config.GetDuration(config.SimnetConfirmIntervalKey))),
		Messenger: hub.Join(nodeAddress),
		Account: static.NewAccountService(
			config.GetString(config.AccountIDKey),
			json.RawMessage(`{}`),
			resolvers,
		),
		SigningKey:            signingKey,
		MyNodeAddress:         nodeAddress,
		Breaker:               circuitbreaker.NewCircuitBreaker(),
		TakerFeeAmount:        uint64(config.GetInt(config.TakerFeeAmountKey)),
		RequiredConfirmations: uint32(config.GetInt(config.RequiredConfirmationsKey)),
	}

	loop := protocol.NewEventLoop()
	manager := application.NewTradeManager(services, dbManager, loop, protocol.Opts{
		StepTimeout:      config.GetDuration(config.TradeStepTimeoutKey),
		MediationEnabled: config.GetBool(config.MediationEnabledKey),
	})

	if err := manager.Start(context.Background()); err != nil {
		log.WithError(err).Panic("starting trade manager failed")
	}
	defer manager.Stop()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.GetInt(config.MetricsPortKey)),
		Handler: promhttp.Handler(),
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		log.Debugf("metrics endpoint listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case n := <-manager.Notifications():
				logNotification(n)
			case <-ctx.Done():
				return nil
			}
		}
	})

	log.Info("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Debug("exiting")
	metricsServer.Close()
	cancel()
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("shutdown")
	}
}

func logNotification(n application.TradeNotification) {
	entry := log.WithField("trade", n.TradeID)
	switch n.Kind {
	case application.TradeCompleted:
		entry.Info("trade completed")
	case application.TradeFailed:
		entry.WithField("reason", n.Reason).Warn("trade failed")
	case application.TradeDiscarded:
		entry.Info("trade discarded")
	}
}

// loadOrCreateSigningKey reads the hex encoded signing key from disk,
// generating and persisting a fresh one on first start.
func loadOrCreateSigningKey(path string) (*btcec.PrivateKey, error) {
	if buf, err := os.ReadFile(path); err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
		if err != nil {
			return nil, fmt.Errorf("malformed signing key file: %w", err)
		}
		key, _ := btcec.PrivKeyFromBytes(raw)
		return key, nil
	}

	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	encoded := hex.EncodeToString(key.Serialize())
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return nil, err
	}
	return key, nil
}
