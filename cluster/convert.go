package cluster

import (
	"math/big"

	"github.com/kulupu-go/kulupu/cluster/pb"
	"github.com/kulupu-go/kulupu/consensus"
	"github.com/kulupu-go/kulupu/mining"
	"github.com/kulupu-go/kulupu/primitives"
)

// metadataToWire converts a mining.Metadata snapshot into its wire
// representation for broadcast to workers over gRPC.
func metadataToWire(meta *mining.Metadata) *pb.JobMessage {
	return &pb.JobMessage{
		BestHash:   meta.BestHash[:],
		PreHash:    meta.PreHash[:],
		PreRuntime: append([]byte(nil), meta.PreRuntime...),
		Difficulty: meta.Difficulty.Big().Bytes(),
		Version:    uint32(meta.Version),
	}
}

// wireToMetadata reconstructs a mining.Metadata snapshot from its wire
// representation, as received by a worker.
func wireToMetadata(msg *pb.JobMessage) *mining.Metadata {
	meta := &mining.Metadata{
		PreRuntime: append([]byte(nil), msg.PreRuntime...),
		Difficulty: primitives.NewDifficultyFromBig(new(big.Int).SetBytes(msg.Difficulty)),
		Version:    consensus.Version(msg.Version),
	}
	copy(meta.BestHash[:], msg.BestHash)
	copy(meta.PreHash[:], msg.PreHash)
	return meta
}
