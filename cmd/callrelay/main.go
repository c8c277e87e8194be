// Callrelay runs the signaling relay server that routes call-control
// messages between callkit clients. It holds no call state of its own and
// never inspects SDP payloads.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/mivton/callkit/internal/relay"
	"github.com/mivton/callkit/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := flag.String("addr", ":0", "listen address, e.g. :8787 (\":0\" picks a random port)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	util.LogInfo("callrelay — v%s", version)

	srv := relay.NewServer()
	port, err := srv.Start(*addr)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	defer srv.Close()

	util.LogSuccess("clients connect with ws://<host>:%d/ws?user=<id>", port)

	<-ctx.Done()
	util.LogInfo("shutting down")
}
