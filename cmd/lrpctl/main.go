// Command lrpctl evaluates LRP parcels on demand, generates synthetic
// exports and checks registry and export files before they reach the
// service.
//
// Usage:
//
//	lrpctl genmock --out data/mock --parcels 5
//	lrpctl validate --registry data/mock/parcels.yaml --precip data/mock/precip.csv \
//	  --et data/mock/et.csv --field-key data/mock/field_key.csv
//	lrpctl evaluate --scheme water-year-quarter --registry data/mock/parcels.yaml ...
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
