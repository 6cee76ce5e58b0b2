// Package server exposes a registry System over JSON-RPC. Reads and writes
// are plain calls; subscribers of the update stream receive one full
// snapshot followed by incremental diffs and ownership updates.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/converter-registry-go/ownership"
	"github.com/defistate/converter-registry-go/registry"
)

const (
	// RPCNamespace is the namespace under which the service is registered.
	RPCNamespace = "registry"

	// UpdatesSubscriptionMethod is the pub/sub method clients subscribe with.
	UpdatesSubscriptionMethod = "subscribeUpdates"
)

// Update types carried by SubscriptionEvent.
const (
	UpdateTypeFull  = "full"
	UpdateTypeDiff  = "diff"
	UpdateTypeOwner = "owner"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SubscriptionEvent is the wrapper object sent to stream subscribers.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// Config holds the configuration for the Service.
type Config struct {
	System     *registry.System
	Logger     Logger
	Registry   prometheus.Registerer
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.System == nil {
		return errors.New("config: System cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	return nil
}

// Service is the RPC-facing wrapper around a registry System. The transport
// carries no identity, so write methods take the caller explicitly;
// deployments that need authentication terminate it in front of the server.
type Service struct {
	system  *registry.System
	logger  Logger
	metrics *Metrics
	buffer  uint
}

// NewService constructs a Service from a configuration, returning an error
// if the config is invalid.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		system:  cfg.System,
		logger:  cfg.Logger,
		metrics: NewMetrics(cfg.Registry),
		buffer:  cfg.BufferSize,
	}
	// Prime the gauges so a system restored from a snapshot reports its
	// actual size before the first mutation.
	s.refreshGauges()
	return s, nil
}

// Register exposes the service on an rpc server under RPCNamespace. Every
// exported method of Service becomes an RPC method, so registration lives
// outside the type.
func Register(server *rpc.Server, svc *Service) error {
	return server.RegisterName(RPCNamespace, svc)
}

// --- Write Methods ---

// RegisterConverter binds converter to token on behalf of caller.
func (s *Service) RegisterConverter(caller, token, converter common.Address) error {
	timer := prometheus.NewTimer(s.metrics.opDuration.WithLabelValues("register"))
	defer timer.ObserveDuration()

	err := s.system.RegisterConverter(caller, token, converter)
	s.metrics.observeOp("register", err)
	if err != nil {
		s.logger.Warn("register rejected",
			"caller", caller, "token", token, "converter", converter, "error", err)
		return err
	}

	s.logger.Info("converter registered", "token", token, "converter", converter)
	s.refreshGauges()
	return nil
}

// UnregisterConverter removes the converter at position index of token's
// list on behalf of caller, returning the removed converter.
func (s *Service) UnregisterConverter(caller, token common.Address, index int) (common.Address, error) {
	timer := prometheus.NewTimer(s.metrics.opDuration.WithLabelValues("unregister"))
	defer timer.ObserveDuration()

	converter, err := s.system.UnregisterConverter(caller, token, index)
	s.metrics.observeOp("unregister", err)
	if err != nil {
		s.logger.Warn("unregister rejected",
			"caller", caller, "token", token, "index", index, "error", err)
		return common.Address{}, err
	}

	s.logger.Info("converter unregistered", "token", token, "converter", converter, "index", index)
	s.refreshGauges()
	return converter, nil
}

// TransferOwnership proposes newOwner as the registry's next owner.
func (s *Service) TransferOwnership(caller, newOwner common.Address) error {
	err := s.system.TransferOwnership(caller, newOwner)
	s.metrics.observeOp("transfer_ownership", err)
	if err != nil {
		s.logger.Warn("ownership transfer rejected", "caller", caller, "newOwner", newOwner, "error", err)
		return err
	}
	s.logger.Info("ownership transfer proposed", "newOwner", newOwner)
	return nil
}

// AcceptOwnership completes an in-flight ownership transfer.
func (s *Service) AcceptOwnership(caller common.Address) error {
	err := s.system.AcceptOwnership(caller)
	s.metrics.observeOp("accept_ownership", err)
	if err != nil {
		s.logger.Warn("ownership accept rejected", "caller", caller, "error", err)
		return err
	}
	s.logger.Info("ownership transferred", "newOwner", caller)
	return nil
}

// --- Read Methods ---

// TokenCount returns the size of the token enumeration.
func (s *Service) TokenCount() int {
	return s.system.TokenCount()
}

// ConverterCount returns the size of token's converter list.
func (s *Service) ConverterCount(token common.Address) int {
	return s.system.ConverterCount(token)
}

// ConverterAt returns the converter at the given position of token's list,
// or the zero address when out of range.
func (s *Service) ConverterAt(token common.Address, index int) common.Address {
	return s.system.ConverterAt(token, index)
}

// TokenOf returns the token a converter is bound to, or the zero address.
func (s *Service) TokenOf(converter common.Address) common.Address {
	return s.system.TokenOf(converter)
}

// TokenAt returns the token at position i of the enumeration, or the zero
// address when out of range.
func (s *Service) TokenAt(i int) common.Address {
	return s.system.TokenAt(i)
}

// Tokens returns the token enumeration, insertion-ordered.
func (s *Service) Tokens() []common.Address {
	return s.system.Tokens()
}

// Version returns the current registry version.
func (s *Service) Version() uint64 {
	return s.system.Version()
}

// Owner returns the current owner.
func (s *Service) Owner() common.Address {
	return s.system.Owner()
}

// PendingOwner returns the proposed new owner, or the zero address.
func (s *Service) PendingOwner() common.Address {
	return s.system.PendingOwner()
}

// View returns a snapshot of the registry indices.
func (s *Service) View() *registry.View {
	return s.system.View()
}

// Snapshot returns the registry view together with the owner pair.
func (s *Service) Snapshot() *registry.State {
	return s.system.Snapshot()
}

// --- Update Stream ---

// SubscribeUpdates streams the registry to a subscriber: one full snapshot,
// then every diff and ownership update in operation order. Diffs already
// covered by the snapshot are dropped by version. The feeds are subscribed
// before the snapshot is taken, so no operation can fall in between.
func (s *Service) SubscribeUpdates(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	diffs := make(chan registry.Diff, s.buffer)
	owners := make(chan ownership.OwnerUpdate, s.buffer)
	diffSub := s.system.SubscribeDiffs(diffs)
	ownerSub := s.system.SubscribeOwnerUpdates(owners)

	rpcSub := notifier.CreateSubscription()
	s.metrics.subscribers.Inc()
	s.logger.Info("stream subscriber connected", "subscription", rpcSub.ID)

	go func() {
		defer diffSub.Unsubscribe()
		defer ownerSub.Unsubscribe()
		defer s.metrics.subscribers.Dec()
		defer s.logger.Info("stream subscriber disconnected", "subscription", rpcSub.ID)

		state := s.system.Snapshot()
		if err := s.notify(notifier, rpcSub.ID, UpdateTypeFull, state); err != nil {
			return
		}
		version := state.Registry.Version

		for {
			select {
			case diff := <-diffs:
				if diff.ToVersion <= version {
					// Already covered by the snapshot.
					continue
				}
				if err := s.notify(notifier, rpcSub.ID, UpdateTypeDiff, diff); err != nil {
					return
				}
				version = diff.ToVersion
			case update := <-owners:
				if err := s.notify(notifier, rpcSub.ID, UpdateTypeOwner, update); err != nil {
					return
				}
			case <-rpcSub.Err():
				return
			}
		}
	}()

	return rpcSub, nil
}

func (s *Service) notify(notifier *rpc.Notifier, id rpc.ID, updateType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal update payload", "type", updateType, "error", err)
		return err
	}

	event := &SubscriptionEvent{
		Type:    updateType,
		Payload: data,
		SentAt:  time.Now().UnixNano(),
	}
	if err := notifier.Notify(id, event); err != nil {
		s.logger.Warn("failed to notify subscriber", "type", updateType, "error", err)
		return err
	}

	s.metrics.updatesSent.WithLabelValues(updateType).Inc()
	return nil
}

func (s *Service) refreshGauges() {
	view := s.system.View()
	bindings := 0
	for _, list := range view.Converters {
		bindings += len(list)
	}
	s.metrics.tokens.Set(float64(len(view.Tokens)))
	s.metrics.bindings.Set(float64(bindings))
	s.metrics.version.Set(float64(view.Version))
}
