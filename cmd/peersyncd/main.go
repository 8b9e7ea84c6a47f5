package main

import (
	"flag"

	"go.uber.org/fx"

	"github.com/gettogether/peersync/internal/engine"
	"github.com/gettogether/peersync/internal/paths"
)

func main() {
	dataDir := flag.String("data", "", "data directory (default ~/.peersync)")
	flag.Parse()

	dir := *dataDir
	if dir == "" {
		dir = paths.Default()
	}

	app := fx.New(
		engine.Module(engine.Params{DataDir: dir}),
	)

	app.Run()
}
