// Command aggregator runs an aggregation server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/node"
)

var configFile = flag.String("config", "/heagg/config/node.json", "the node config file for this node")
var addr = flag.String("address", "", "the address of the gRPC transport, overrides the config")
var httpAddr = flag.String("http", "", "the address of the JSON gateway, overrides the config")

// Instructions to run: go run main.go -config [nodeconfigfile].
func main() {
	flag.Parse()

	if *configFile == "" {
		log.Println("need to provide a config file with the -config flag")
		os.Exit(1)
	}

	nc, err := node.LoadConfigFromFile(*configFile)
	if err != nil {
		log.Println("could not read config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		nc.Address = heagg.NodeAddress(*addr)
	}
	if *httpAddr != "" {
		nc.HTTPAddress = heagg.NodeAddress(*httpAddr)
	}

	n, err := node.New(nc)
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = n.Run(ctx)
	log.Printf("Node %s | network stats: %s", nc.ID, n.GetNetworkStats())
	if cerr := n.Close(); cerr != nil {
		log.Printf("Node %s | could not close the object store: %s", nc.ID, cerr)
	}
	if err != nil {
		log.Printf("Node %s | run returned an error: %s", nc.ID, err)
		os.Exit(1)
	}
}
