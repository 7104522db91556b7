package anydiffusion

import (
	"os"
	"strconv"
)

// A Ranker reports the rank of the current worker in a
// data-parallel training run.
// Rank 0 is the reporting worker.
type Ranker interface {
	Rank() int
}

// StaticRank is a Ranker with a fixed rank.
// It is suitable for single-process training.
type StaticRank int

// Rank returns int(s).
func (s StaticRank) Rank() int {
	return int(s)
}

// EnvRank is a Ranker which reads the rank from the
// RANK environment variable, as set by most distributed
// launchers.
//
// If the variable is unset or malformed, the rank is 0.
type EnvRank struct{}

// Rank parses the RANK environment variable.
func (e EnvRank) Rank() int {
	rank, err := strconv.Atoi(os.Getenv("RANK"))
	if err != nil {
		return 0
	}
	return rank
}
