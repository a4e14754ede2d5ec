package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// DbManager holds the badgerhold stores backing the trade repositories. Open
// trades and the archives live in separate stores so archive growth never
// slows down the hot path.
type DbManager struct {
	TradeStore   *badgerhold.Store
	ArchiveStore *badgerhold.Store
}

// NewDbManager opens (or creates if not exists) the badger stores under the
// given base data dir.
func NewDbManager(baseDbDir string, logger badger.Logger) (*DbManager, error) {
	tradeDb, err := createDb(filepath.Join(baseDbDir, "trades"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening trades db: %w", err)
	}

	archiveDb, err := createDb(filepath.Join(baseDbDir, "archive"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}

	return &DbManager{
		TradeStore:   tradeDb,
		ArchiveStore: archiveDb,
	}, nil
}

// TradeRepository implements the ports.DbManager interface.
func (d *DbManager) TradeRepository() domain.TradeRepository {
	return NewTradeRepositoryImpl(d)
}

// FailedTradeRepository implements the ports.DbManager interface.
func (d *DbManager) FailedTradeRepository() domain.FailedTradeRepository {
	return NewFailedTradeRepositoryImpl(d)
}

// ClosedTradeRepository implements the ports.DbManager interface.
func (d *DbManager) ClosedTradeRepository() domain.ClosedTradeRepository {
	return NewClosedTradeRepositoryImpl(d)
}

// Close closes the underlying stores.
func (d *DbManager) Close() error {
	if err := d.TradeStore.Close(); err != nil {
		return err
	}
	return d.ArchiveStore.Close()
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)

	_, err := buff.Write(data)
	if err != nil {
		return err
	}

	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (db *badgerhold.Store, err error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	db, err = badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})

	return
}
