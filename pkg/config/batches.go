package config

import (
	"strings"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
)

// BatchesToNodes converts an ordered list of script batches into graph
// nodes. Batches always run one after another. In sync mode the scripts of
// a batch also run one after another, so the whole configuration becomes a
// single chain. In async mode the scripts of a batch run in parallel and
// each depends on every script of the previous batch.
//
// An empty mode means sync. A script may appear only once overall.
func BatchesToNodes(batches [][]string, mode string) ([]Node, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeSync
	}
	if mode != ModeSync && mode != ModeAsync {
		return nil, bterrors.New(bterrors.ErrCodeConfig, "unknown execution_mode %q (want sync or async)", mode)
	}

	var (
		nodes    []Node
		previous []string
		seen     = make(map[string]bool)
	)
	for i, batch := range batches {
		if len(batch) == 0 {
			return nil, bterrors.New(bterrors.ErrCodeConfig, "batch %d is empty", i+1)
		}
		for _, script := range batch {
			if seen[script] {
				return nil, bterrors.New(bterrors.ErrCodeConfig,
					"script %q appears in more than one place", script).WithNode(script)
			}
			seen[script] = true

			n := Node{ID: script, Dependencies: append([]string(nil), previous...)}
			nodes = append(nodes, n)
			if mode == ModeSync {
				previous = []string{script}
			}
		}
		if mode == ModeAsync {
			previous = append([]string(nil), batch...)
		}
	}
	return nodes, nil
}
