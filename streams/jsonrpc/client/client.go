// Package client maintains a live read-only mirror of a remote converter
// registry over JSON-RPC. It subscribes to the server's update stream,
// rebuilds the registry from the opening snapshot, and keeps it current by
// applying diffs; any gap in the diff sequence forces a resubscribe for a
// fresh snapshot.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/converter-registry-go/ownership"
	"github.com/defistate/converter-registry-go/registry"
	"github.com/defistate/converter-registry-go/registry/indexer"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RPCNamespace is the namespace under which the registry server is registered.
	RPCNamespace              = "registry"
	UpdatesSubscriptionMethod = "subscribeUpdates"
)

// Update types carried by SubscriptionEvent.
const (
	UpdateTypeFull  = "full"
	UpdateTypeDiff  = "diff"
	UpdateTypeOwner = "owner"
)

// ErrOutOfSync marks processing failures after which the mirror no longer
// tracks the server and must resubscribe for a fresh snapshot.
var ErrOutOfSync = errors.New("client: mirror out of sync")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor handles the business logic of parsing update events,
// maintaining the latest view, applying diffs, and broadcasting mirrors.
// It is decoupled from the networking layer.
type StreamProcessor struct {
	lastView     *registry.View
	owner        common.Address
	pendingOwner common.Address
	indexer      *indexer.Indexer
	mirrorCh     chan *Mirror
	logger       Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint) *StreamProcessor {
	return &StreamProcessor{
		indexer:  indexer.New(),
		mirrorCh: make(chan *Mirror, bufferSize),
		logger:   logger,
	}
}

// Mirrors returns a read-only channel for receiving new mirrors.
func (sp *StreamProcessor) Mirrors() <-chan *Mirror {
	return sp.mirrorCh
}

// ProcessMessage accepts a raw JSON update, processes it, and updates the
// mirror. Errors wrapping ErrOutOfSync mean the mirror has lost the stream
// and only a fresh snapshot can recover it.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case UpdateTypeFull:
		return sp.handleFull(event, processingStart)
	case UpdateTypeDiff:
		return sp.handleDiff(event, processingStart)
	case UpdateTypeOwner:
		return sp.handleOwnerUpdate(event)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFull(event SubscriptionEvent, start time.Time) error {
	var state registry.State
	if err := json.Unmarshal(event.Payload, &state); err != nil {
		return fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}

	// Rebuilding the registry from the view rejects payloads that break the
	// registry invariants before they become the mirror's baseline.
	if _, err := registry.NewConverterRegistryFromView(state.Registry); err != nil {
		return fmt.Errorf("rejected full state: %w", err)
	}

	// A snapshot is authoritative and replaces the mirror wholesale, even at
	// a lower version: a restarted server may resume from an older state.
	sp.lastView = state.Registry
	sp.owner = state.Owner
	sp.pendingOwner = state.PendingOwner

	sp.logUpdate(UpdateTypeFull, event.SentAt, start)
	sp.emit()
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var diff registry.Diff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	if sp.lastView == nil {
		return fmt.Errorf("%w: received diff before full state; from_version: %d, to_version: %d",
			ErrOutOfSync, diff.FromVersion, diff.ToVersion)
	}

	// The server streams one snapshot per subscription, so a diff that does
	// not apply cleanly can never heal on this connection.
	newView, err := registry.Patch(sp.lastView, &diff)
	if err != nil {
		return fmt.Errorf("%w: failed to patch view: %w", ErrOutOfSync, err)
	}
	sp.lastView = newView

	sp.logUpdate(UpdateTypeDiff, event.SentAt, start)
	sp.emit()
	return nil
}

func (sp *StreamProcessor) handleOwnerUpdate(event SubscriptionEvent) error {
	var update ownership.OwnerUpdate
	if err := json.Unmarshal(event.Payload, &update); err != nil {
		return fmt.Errorf("failed to unmarshal owner update payload: %w", err)
	}

	if sp.lastView == nil {
		return fmt.Errorf("%w: received owner update before full state", ErrOutOfSync)
	}

	// A completed handshake installs the new owner and clears the proposal.
	sp.owner = update.NewOwner
	sp.pendingOwner = common.Address{}

	sp.logger.Debug("owner update processed",
		"previous_owner", update.PreviousOwner,
		"new_owner", update.NewOwner,
	)
	sp.emit()
	return nil
}

func (sp *StreamProcessor) emit() {
	sp.mirrorCh <- &Mirror{
		Registry:     sp.indexer.Index(sp.lastView),
		Owner:        sp.owner,
		PendingOwner: sp.pendingOwner,
	}
}

func (sp *StreamProcessor) logUpdate(updateType string, sentAt int64, start time.Time) {
	processingDur := time.Since(start)
	transportTime := start.Sub(time.Unix(0, sentAt))

	bindings := 0
	for _, list := range sp.lastView.Converters {
		bindings += len(list)
	}

	sp.logger.Debug("update processed",
		"type", updateType,
		"version", sp.lastView.Version,
		"tokens", len(sp.lastView.Tokens),
		"bindings", bindings,
		"latency_transport_ms", transportTime.Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Mirrors delegates to the processor's mirror channel.
func (c *Client) Mirrors() <-chan *Mirror {
	return c.processor.Mirrors()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RPCNamespace, rawCh, UpdatesSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for updates...")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				if errors.Is(err, ErrOutOfSync) {
					// Resubscribing replays a fresh snapshot.
					return err
				}
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}
