package artifact

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vinayprograms/renderkit/errors"
)

// NATSStore keeps artifacts in a JetStream object store bucket so several
// machines rendering the same manifest see each other's output.
type NATSStore struct {
	conn   *nats.Conn
	obs    jetstream.ObjectStore
	config NATSStoreConfig
	closed atomic.Bool
}

// NATSStoreConfig holds object store configuration.
type NATSStoreConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the object store bucket name.
	Bucket string

	// Description is stored with the bucket.
	Description string

	// MaxBytes caps the bucket size. 0 = unlimited
	MaxBytes int64

	// OpTimeout bounds each call when ctx has no deadline.
	// Default: 30s
	OpTimeout time.Duration
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:    "renderkit-artifacts",
		OpTimeout: 30 * time.Second,
	}
}

// NewNATSStore creates or binds the object store bucket.
func NewNATSStore(ctx context.Context, cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	def := DefaultNATSStoreConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = def.Bucket
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      cfg.Bucket,
		Description: cfg.Description,
		MaxBytes:    cfg.MaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store: %w", err)
	}

	return &NATSStore{conn: cfg.Conn, obs: obs, config: cfg}, nil
}

func (s *NATSStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.OpTimeout)
}

// Exists reports whether a non-deleted object exists for id.
func (s *NATSStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	if s.closed.Load() {
		return false, ErrClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	info, err := s.obs.GetInfo(ctx, id)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return false, nil
		}
		return false, errors.WrapWithCode(err, errors.ErrCodeIO, "object info",
			errors.WithMetadata("artifact", id))
	}
	return !info.Deleted && info.Size > 0, nil
}

// Write stores data under id.
func (s *NATSStore) Write(ctx context.Context, id string, data []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.obs.PutBytes(ctx, id, data); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeIO, "put object",
			errors.WithMetadata("artifact", id))
	}
	return nil
}

// Read returns the bytes stored under id.
func (s *NATSStore) Read(ctx context.Context, id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	data, err := s.obs.GetBytes(ctx, id)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.WrapWithCode(err, errors.ErrCodeIO, "get object",
			errors.WithMetadata("artifact", id))
	}
	return data, nil
}

// Close marks the store closed. The connection is left open.
func (s *NATSStore) Close() error {
	s.closed.Store(true)
	return nil
}
