// Package batch implements the offline path of the aggregation service:
// encrypting a column of a dataset into a batch that holds the public
// context and the ciphertexts, persisting batches, and aggregating them
// through a compute service.
//
// A batch never holds secret material. Batches are created from the public
// projection of a full context, and loading a batch rejects any context
// encoding that carries a secret key.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/services/compute"
	"github.com/ChristianMct/heagg/session"
	"github.com/ChristianMct/heagg/utils"
)

// Batch is a set of encrypted values along with the public context
// they are encrypted under.
type Batch struct {
	Name            string    `json:"name"`
	PublicContext   []byte    `json:"public_context"`
	EncryptedValues [][]byte  `json:"encrypted_values"`
	CreatedAt       time.Time `json:"created_at"`
}

// Encrypt encrypts values under sc and returns the corresponding batch.
func Encrypt(sc *session.Context, name string, values []float64) (*Batch, error) {
	if name == "" {
		return nil, fmt.Errorf("batch name is empty")
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: batch %s has no values", heagg.ErrEmptyInput, name)
	}

	pub, err := sc.Public().MarshalBinary()
	if err != nil {
		return nil, err
	}
	cts, err := sc.EncryptValues(values)
	if err != nil {
		return nil, err
	}

	b := &Batch{Name: name, PublicContext: pub, EncryptedValues: make([][]byte, len(cts)), CreatedAt: time.Now().UTC()}
	for i, ct := range cts {
		if b.EncryptedValues[i], err = ct.MarshalBinary(); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return b, nil
}

// Len returns the number of values in the batch.
func (b *Batch) Len() int {
	return len(b.EncryptedValues)
}

// Load decodes the public context and the ciphertexts of the batch.
func (b *Batch) Load() (*session.PublicContext, []*session.Ciphertext, error) {
	if len(b.EncryptedValues) == 0 {
		return nil, nil, fmt.Errorf("%w: batch %s has no values", heagg.ErrEmptyInput, b.Name)
	}
	pc, err := session.LoadPublic(b.PublicContext)
	if err != nil {
		return nil, nil, fmt.Errorf("batch %s: %w", b.Name, err)
	}
	cts := make([]*session.Ciphertext, len(b.EncryptedValues))
	for i, data := range b.EncryptedValues {
		if cts[i], err = session.UnmarshalCiphertext(pc, data); err != nil {
			return nil, nil, fmt.Errorf("batch %s, value %d: %w", b.Name, i, err)
		}
	}
	return pc, cts, nil
}

// Validate checks that the batch has a name, and that its context and
// ciphertexts can be loaded.
func (b *Batch) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("batch name is empty")
	}
	_, _, err := b.Load()
	return err
}

// String returns a short description of the batch.
func (b *Batch) String() string {
	return fmt.Sprintf("Batch[name=%s, values=%d, created=%s]", b.Name, b.Len(), b.CreatedAt.Format(time.RFC3339))
}

// MarshalBinary returns the JSON encoding of the batch.
func (b *Batch) MarshalBinary() ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBinary decodes a JSON-encoded batch.
func (b *Batch) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, b)
}

// WriteFile writes the batch to a JSON file.
func (b *Batch) WriteFile(filename string) error {
	return utils.MarshalJSONToFile(b, filename, 0o644)
}

// ReadFile reads and validates a batch from a JSON file.
func ReadFile(filename string) (*Batch, error) {
	b := new(Batch)
	if err := utils.UnmarshalJSONFromFile(filename, b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Aggregate computes op over the values of b with the compute service svc.
// The batch goes through the same request processing as the requests
// received from the transports.
func Aggregate(ctx context.Context, svc *compute.Service, b *Batch, op heagg.Operation) (*compute.Result, error) {
	return svc.Aggregate(ctx, compute.Request{
		ID:              heagg.RequestID("batch-" + b.Name),
		PublicContext:   b.PublicContext,
		EncryptedValues: b.EncryptedValues,
		Operation:       op.String(),
	})
}
