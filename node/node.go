// Package node provides the main entry point of an aggregation server.
// It defines the Node type, which assembles the compute service, its gRPC
// and JSON transports, and the batch store.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/batch"
	"github.com/ChristianMct/heagg/objectstore"
	"github.com/ChristianMct/heagg/services/compute"
	"github.com/ChristianMct/heagg/transport/centralized"
	"github.com/ChristianMct/heagg/transport/jsonapi"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout is the time given to the JSON gateway to terminate the
// pending requests when the node stops.
const ShutdownTimeout = 5 * time.Second

// Node is an aggregation server. It evaluates the aggregation requests
// received over its transports, and the batches of its batch store.
type Node struct {
	id     heagg.NodeID
	config Config

	objectstore.ObjectStore
	batches *batch.Store

	compute *compute.Service

	grpcServer *centralized.AggregationServer
	httpServer *http.Server
}

// New creates a new node from the provided config.
func New(config Config) (node *Node, err error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	node = new(Node)
	node.id = config.ID
	node.config = config

	if node.config.ObjectStoreConfig.BackendName == "" {
		node.config.ObjectStoreConfig.BackendName = DefaultObjectStoreBackend
	}
	node.ObjectStore, err = objectstore.NewObjectStoreFromConfig(node.config.ObjectStoreConfig)
	if err != nil {
		return nil, err
	}
	node.batches = batch.NewStore(node.ObjectStore)

	node.compute, err = compute.NewComputeService(node.id, config.ComputeConfig)
	if err != nil {
		node.ObjectStore.Close()
		return nil, fmt.Errorf("failed to load the compute service: %w", err)
	}

	node.grpcServer = centralized.NewAggregationServer(node.id, node.compute)
	node.httpServer = &http.Server{
		Handler:           jsonapi.NewHandler(node.id, node.compute, config.MaxBodySize),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return node, nil
}

// ID returns the id of the node.
func (node *Node) ID() heagg.NodeID {
	return node.id
}

// Compute returns the compute service of the node.
func (node *Node) Compute() *compute.Service {
	return node.compute
}

// Batches returns the batch store of the node.
func (node *Node) Batches() *batch.Store {
	return node.batches
}

// AggregateBatch computes op over the stored batch with the given name.
func (node *Node) AggregateBatch(ctx context.Context, name string, op heagg.Operation) (*compute.Result, error) {
	b, err := node.batches.Get(name)
	if err != nil {
		return nil, err
	}
	node.Logf("aggregating %s", b)
	return batch.Aggregate(ctx, node.compute, b, op)
}

// Run listens on the configured addresses and serves the transports until
// ctx is done.
func (node *Node) Run(ctx context.Context) error {
	var grpcLis, httpLis net.Listener
	var err error
	if node.config.Address != "" {
		if grpcLis, err = net.Listen("tcp", node.config.Address.String()); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", node.config.Address, err)
		}
	}
	if node.config.HTTPAddress != "" {
		if httpLis, err = net.Listen("tcp", node.config.HTTPAddress.String()); err != nil {
			if grpcLis != nil {
				grpcLis.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", node.config.HTTPAddress, err)
		}
	}
	return node.Serve(ctx, grpcLis, httpLis)
}

// Serve serves the gRPC transport on grpcLis and the JSON gateway on httpLis
// until ctx is done. A nil listener disables the corresponding transport.
func (node *Node) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	if grpcLis == nil && httpLis == nil {
		return fmt.Errorf("no listener to serve")
	}

	g, gctx := errgroup.WithContext(ctx)
	if grpcLis != nil {
		grpcLis = node.limit(grpcLis)
		node.Logf("serving gRPC on %s", grpcLis.Addr())
		g.Go(func() error {
			return node.grpcServer.Serve(grpcLis)
		})
	}
	if httpLis != nil {
		httpLis = node.limit(httpLis)
		node.Logf("serving HTTP on %s", httpLis.Addr())
		g.Go(func() error {
			if err := node.httpServer.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		node.Logf("stopping")
		if grpcLis != nil {
			node.grpcServer.GracefulStop()
		}
		if httpLis != nil {
			sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			return node.httpServer.Shutdown(sctx)
		}
		return nil
	})

	return g.Wait()
}

func (node *Node) limit(lis net.Listener) net.Listener {
	if node.config.MaxConnections > 0 {
		return netutil.LimitListener(lis, node.config.MaxConnections)
	}
	return lis
}

// GetNetworkStats returns the network statistics of the gRPC transport.
func (node *Node) GetNetworkStats() centralized.NetStats {
	return node.grpcServer.GetStats()
}

// Close releases the resources of the node. It must be called after Run or
// Serve returned.
func (node *Node) Close() error {
	return node.ObjectStore.Close()
}

// Logf writes a log line prefixed with the node id.
func (node *Node) Logf(msg string, v ...any) {
	log.Printf("%s | [node] %s\n", node.id, fmt.Sprintf(msg, v...))
}
