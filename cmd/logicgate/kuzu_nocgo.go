//go:build !cgo

package main

import (
	"context"
	"errors"
	"io"

	"github.com/dusk-indust/logicgate/internal/graph"
)

func writeKuzu(context.Context, string, *graph.CallGraph, []graph.ClusterNode) error {
	return errors.New("kuzu export needs a cgo build")
}

func runLookup(context.Context, io.Writer, string, string, int) error {
	return nil
}
