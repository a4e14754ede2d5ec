package protocol

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// SelectResolver deterministically picks one dispute resolver from the
// intersection of the offer's advertised resolvers and the locally accepted
// ones, without any network round trip. Both maker and taker run this with
// the same inputs and must converge on the same address: it is a
// consensus-free agreement primitive, so hash function and modulo semantics
// must never change.
//
// The candidate list keeps the offer-declared order. The index is the first
// 8 bytes of sha256(offerID), read big endian, modulo the candidate count.
func SelectResolver(
	offerID string,
	offered, accepted []domain.NodeAddress,
) (domain.NodeAddress, error) {
	acceptedSet := make(map[domain.NodeAddress]struct{}, len(accepted))
	for _, a := range accepted {
		acceptedSet[a] = struct{}{}
	}

	candidates := make([]domain.NodeAddress, 0, len(offered))
	for _, o := range offered {
		if _, ok := acceptedSet[o]; ok {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return "", domain.ErrNoEligibleResolver
	}

	digest := sha256.Sum256([]byte(offerID))
	index := binary.BigEndian.Uint64(digest[:8]) % uint64(len(candidates))
	return candidates[index], nil
}
