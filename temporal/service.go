// Package temporal implements the Temporal Metadata Service (spec.md
// §4.2): every write to the graph carries created_at, updated_at and
// updated_by, and updated_by must be one of a closed set of actors.
package temporal

import (
	"context"
	"time"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

// Actor is the closed set of writers the graph recognizes.
type Actor string

const (
	ActorPipeline  Actor = "pipeline"
	ActorAgent     Actor = "agent"
	ActorManual    Actor = "manual"
	ActorMigration Actor = "migration"
)

var validActors = map[Actor]bool{
	ActorPipeline:  true,
	ActorAgent:     true,
	ActorManual:    true,
	ActorMigration: true,
}

// IsValid reports whether a is one of the recognized actors.
func (a Actor) IsValid() bool {
	return validActors[a]
}

// actorKey is the context key the Service reads the current actor from.
// logging.WithActor/logging.GetActor use their own key and a string
// value, so an actor attached here is not visible to logging.GetActor.
type actorKey struct{}

// WithActor attaches an actor to ctx for the duration of a write.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext extracts the actor set by WithActor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// Stamp is the temporal metadata attached to every node and edge write.
type Stamp struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy Actor
}

// Service resolves and validates the Stamp for a write, given the actor
// carried on ctx.
type Service struct {
	now func() time.Time
}

// New constructs a Service using time.Now as its clock.
func New() *Service {
	return &Service{now: time.Now}
}

// NewWithClock constructs a Service with an injected clock, for
// deterministic tests.
func NewWithClock(now func() time.Time) *Service {
	return &Service{now: now}
}

// StampForCreate builds a Stamp for a brand-new node or edge: created_at
// and updated_at are both set to the current time.
func (s *Service) StampForCreate(ctx context.Context) (Stamp, error) {
	actor, err := s.resolveActor(ctx)
	if err != nil {
		return Stamp{}, err
	}
	now := s.now()
	return Stamp{CreatedAt: now, UpdatedAt: now, UpdatedBy: actor}, nil
}

// StampForUpdate builds a Stamp for an existing node or edge: created_at
// is preserved from the prior stamp, updated_at advances.
func (s *Service) StampForUpdate(ctx context.Context, createdAt time.Time) (Stamp, error) {
	actor, err := s.resolveActor(ctx)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{CreatedAt: createdAt, UpdatedAt: s.now(), UpdatedBy: actor}, nil
}

func (s *Service) resolveActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor == "" {
		return "", irerrors.MissingActor()
	}
	if !actor.IsValid() {
		return "", irerrors.MissingActor().WithDetails("offending_actor", string(actor))
	}
	return actor, nil
}
