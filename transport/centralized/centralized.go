// Package centralized defines a client-server transport for the aggregation
// service. This transport is based on gRPC services.
package centralized

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ChristianMct/heagg/utils"
)

const (
	// MaxMsgSize is the maximum size of a gRPC message.
	MaxMsgSize = 64 * 1024 * 1024
	// ClientConnectTimeout is the timeout for establishing a connection to the server.
	ClientConnectTimeout = 3 * time.Second
)

// Dialer is a function that returns a net.Conn to the provided address.
type Dialer = func(c context.Context, addr string) (net.Conn, error)

// NetStats contains the network statistics of a connection.
type NetStats struct {
	DataSent, DataRecv uint64
	Calls              uint64
}

// String returns a string representation of the network statistics.
func (s NetStats) String() string {
	return fmt.Sprintf("Sent: %s, Received: %s, Calls: %d", utils.ByteCountSI(s.DataSent), utils.ByteCountSI(s.DataRecv), s.Calls)
}
