package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"wavebind/graph"
)

// RandomizeSeed sets every seed control of a task node to a random value
// in [0, SeedMax) and returns the value used.
func (e *Engine) RandomizeSeed(nodeID int) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(SeedMax))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random seed: %w", err)
	}
	seed := n.Int64()
	if err := e.setSeeds(nodeID, float64(seed)); err != nil {
		return 0, err
	}
	return seed, nil
}

// AutoSeed resets every seed control of a task node to -1, which the
// backend replaces with a fresh seed on each run.
func (e *Engine) AutoSeed(nodeID int) error {
	return e.setSeeds(nodeID, float64(SeedAuto))
}

func (e *Engine) setSeeds(nodeID int, value float64) error {
	st, err := e.State(nodeID)
	if err != nil {
		return err
	}
	found := false
	for _, p := range st.Parameters {
		if !isSeed(p) {
			continue
		}
		if c, ok := st.controls[p.Name]; ok {
			c.widget.SetValue(value)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("no seed control on node %d: %w", nodeID, graph.ErrSlotNotFound)
	}
	return nil
}
