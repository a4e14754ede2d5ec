package domain_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

func TestSignAndVerifyMessage(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubKey := key.PubKey().SerializeCompressed()

	msg := &domain.PaymentStartedMessage{
		MessageMeta:       domain.NewMessageMeta("offer-1", pubKey),
		PayoutTxSignature: []byte("sig"),
	}
	require.NotEmpty(t, msg.GetUID())

	sig, err := domain.SignMessage(msg, key)
	require.NoError(t, err)
	msg.Signature = sig

	require.NoError(t, domain.VerifyMessageSignature(msg, pubKey))

	// a different key must not verify
	otherKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	err = domain.VerifyMessageSignature(msg, otherKey.PubKey().SerializeCompressed())
	require.Error(t, err)

	// tampering with the payload must break the signature
	msg.PayoutTxSignature = []byte("tampered")
	err = domain.VerifyMessageSignature(msg, pubKey)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestSignAndVerifyContract(t *testing.T) {
	t.Parallel()

	makerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	takerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	contract := &domain.Contract{
		OfferID: "offer-1",
		TradeID: "offer-1",
	}
	contractJSON, err := contract.AsJSON()
	require.NoError(t, err)

	makerSig := domain.SignContractJSON(contractJSON, makerKey)
	takerSig := domain.SignContractJSON(contractJSON, takerKey)

	require.NoError(t, domain.VerifyContractSignature(
		contractJSON, makerSig, makerKey.PubKey().SerializeCompressed()))
	require.NoError(t, domain.VerifyContractSignature(
		contractJSON, takerSig, takerKey.PubKey().SerializeCompressed()))

	// signatures are not interchangeable between the peers
	err = domain.VerifyContractSignature(
		contractJSON, makerSig, takerKey.PubKey().SerializeCompressed())
	require.Error(t, err)

	hash, err := contract.Hash()
	require.NoError(t, err)
	require.Len(t, hash, 32)
}
