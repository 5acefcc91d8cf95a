package relay

import (
	"encoding/hex"
	"fmt"

	"ShardRelay/internal/config"
	"ShardRelay/internal/paras"
	"ShardRelay/internal/primitives"
)

// genesisShard decodes a configured shard into its registration and genesis state.
func genesisShard(s config.ShardConfig) (paras.Registration, primitives.HeadData, primitives.ValidationCode, error) {
	var reg paras.Registration

	switch s.Kind {
	case "parachain", "":
		reg.Kind = primitives.AssignmentParachain
	case "parathread":
		reg.Kind = primitives.AssignmentParathread
	default:
		return reg, nil, nil, fmt.Errorf("shard %d: unknown kind %q", s.ID, s.Kind)
	}

	head, err := hex.DecodeString(s.GenesisHead)
	if err != nil {
		return reg, nil, nil, fmt.Errorf("shard %d: decode genesis head:\n%w", s.ID, err)
	}

	code, err := hex.DecodeString(s.Code)
	if err != nil {
		return reg, nil, nil, fmt.Errorf("shard %d: decode code:\n%w", s.ID, err)
	}

	return reg, head, code, nil
}
