package main

// @title           Rick and Morty Sync API
// @version         1.0
// @description     Offline-first cache of the Rick and Morty API. Lists are served from a local cache that is filled page by page from the remote API.

// @contact.name   Custodia Labs
// @contact.url    https://github.com/custodia-labs/rickandmorty-sync/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
