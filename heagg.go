// Package heagg provides the types shared by the heagg packages: node identities,
// the aggregation operations and the error taxonomy of the aggregation protocol.
//
// The heagg system lets an originator compute sums and averages over values
// held by an aggregation service that only ever sees CKKS ciphertexts and a
// public evaluation context. See the session package for the scheme context
// and ciphertext types, and the services/compute package for the evaluation.
package heagg

import "fmt"

// NodeID is the unique identifier of a node.
type NodeID string

// NodeAddress is the network address of a node.
type NodeAddress string

// String returns a string representation of the node address.
func (na NodeAddress) String() string {
	return string(na)
}

// NodeInfo contains the unique identifier and the network address of a node.
type NodeInfo struct {
	NodeID
	NodeAddress
}

// String returns a string representation of the node info.
func (ni NodeInfo) String() string {
	return fmt.Sprintf("{ID: %s, Address: %s}", ni.NodeID, ni.NodeAddress)
}

// RequestID identifies an aggregation request in logs and error reports.
type RequestID string
