package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the internal state of the daemon
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// TradeStepTimeoutKey is the duration in seconds a protocol step waits for the peer's response before faulting
	TradeStepTimeoutKey = "TRADE_STEP_TIMEOUT"
	// MediationEnabledKey toggles the mediation round before arbitration for this deployment
	MediationEnabledKey = "MEDIATION_ENABLED"
	// RequiredConfirmationsKey is the confirmation depth at which the deposit tx counts as confirmed
	RequiredConfirmationsKey = "REQUIRED_CONFIRMATIONS"
	// TakerFeeAmountKey is the taker fee in satoshis
	TakerFeeAmountKey = "TAKER_FEE_AMOUNT"
	// MetricsPortKey is the port where the prometheus metrics endpoint listens on
	MetricsPortKey = "METRICS_PORT"
	// NodeAddressKey is this node's own p2p address announced to peers
	NodeAddressKey = "NODE_ADDRESS"
	// AccountIDKey is the id of the local trading account
	AccountIDKey = "ACCOUNT_ID"
	// AcceptedResolversKey is the comma separated list of dispute resolver addresses this node accepts
	AcceptedResolversKey = "RESOLVER_ADDRESSES"
	// SimnetConfirmIntervalKey is the seconds the simnet wallet waits before confirming a broadcast tx
	SimnetConfirmIntervalKey = "SIMNET_CONFIRM_INTERVAL"

	// DbLocation is the folder inside the datadir containing the database
	DbLocation = "db"
)

var vip *viper.Viper

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("PEEREX")
	vip.AutomaticEnv()

	defaultDatadir, _ := os.UserHomeDir()
	vip.SetDefault(DatadirKey, filepath.Join(defaultDatadir, ".peerex-daemon"))
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(TradeStepTimeoutKey, 75)
	vip.SetDefault(MediationEnabledKey, true)
	vip.SetDefault(RequiredConfirmationsKey, 1)
	vip.SetDefault(TakerFeeAmountKey, 20000)
	vip.SetDefault(MetricsPortKey, 9102)
	vip.SetDefault(NodeAddressKey, "")
	vip.SetDefault(AccountIDKey, "")
	vip.SetDefault(AcceptedResolversKey, "")
	vip.SetDefault(SimnetConfirmIntervalKey, 5)

	if err := validate(); err != nil {
		log.WithError(err).Panic("invalid config")
	}
}

func validate() error {
	if GetInt(TradeStepTimeoutKey) <= 0 {
		return fmt.Errorf("%s must be positive", TradeStepTimeoutKey)
	}
	if GetInt(RequiredConfirmationsKey) <= 0 {
		return fmt.Errorf("%s must be positive", RequiredConfirmationsKey)
	}
	return nil
}

// GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

// GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

// GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetDuration returns the value of a seconds-denominated key as a Duration.
func GetDuration(key string) time.Duration {
	return time.Duration(vip.GetInt(key)) * time.Second
}

// GetStringSlice returns the value of a comma separated key, skipping empty
// entries.
func GetStringSlice(key string) []string {
	out := []string{}
	for _, v := range strings.Split(vip.GetString(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// GetDatadir returns the data directory, creating it if missing.
func GetDatadir() string {
	dir := GetString(DatadirKey)
	if err := os.MkdirAll(filepath.Join(dir, DbLocation), os.ModeDir|0755); err != nil {
		log.WithError(err).Panic("creating datadir failed")
	}
	return dir
}
