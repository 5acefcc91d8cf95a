package api

import (
	"fmt"
	"net/http"
	"strconv"

	"ShardRelay/internal/primitives"
)

// parseShard reads the {shard} path value as a decimal shard id.
func parseShard(r *http.Request) (primitives.ShardID, error) {
	raw := r.PathValue("shard")
	if raw == "" {
		return 0, fmt.Errorf("missing shard id")
	}

	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid shard id %q", raw)
	}

	return primitives.ShardID(id), nil
}
