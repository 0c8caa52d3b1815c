// Package application orchestrates the permissions pipeline for a
// serving process: it loads compile inputs through the rules source,
// keeps one compiled Permissions per session in the registry, and fronts
// the decision engine's operations for the transport layer.
package application

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/permissions/engine"
	"github.com/replicore/permcore/internal/permissions/ports"
	"github.com/replicore/permcore/internal/permissions/rules"
	"github.com/replicore/permcore/internal/platform/apperror"
	"github.com/replicore/permcore/internal/platform/eventbus"
	"github.com/replicore/permcore/internal/platform/events"
	"github.com/replicore/permcore/internal/platform/logger"
	"github.com/replicore/permcore/internal/platform/sessions"
)

// Service wires the rules compiler, decision engine and session
// registry together behind the operations the transport exposes.
type Service struct {
	rulesSource  ports.RulesSource
	checker      ports.CheckCompiler
	transientLUT ports.TransientStore
	registry     sessions.Registry
	readGraph    domain.Graph
	writeGraph   domain.Graph
	bus          *eventbus.Bus
	logger       logger.Logger
}

// NewService creates the permissions application service. readGraph and
// writeGraph may be the same provider; the write buffer layers pending
// changes over writeGraph on its own.
func NewService(
	rulesSource ports.RulesSource,
	checker ports.CheckCompiler,
	transientLUT ports.TransientStore,
	registry sessions.Registry,
	readGraph domain.Graph,
	writeGraph domain.Graph,
	bus *eventbus.Bus,
	logger logger.Logger,
) *Service {
	return &Service{
		rulesSource:  rulesSource,
		checker:      checker,
		transientLUT: transientLUT,
		registry:     registry,
		readGraph:    readGraph,
		writeGraph:   writeGraph,
		bus:          bus,
		logger:       logger,
	}
}

// PermissionsFor returns the session's compiled Permissions, compiling
// on first use. Anonymous sessions (no user id) are compiled fresh each
// call - they hold no per-user roles worth caching under a key.
func (s *Service) PermissionsFor(ctx context.Context, auth domain.Auth) (domain.Permissions, error) {
	if userID := auth.UserIDOrEmpty(); userID != "" {
		if perms, ok := s.registry.Get(userID); ok {
			return perms, nil
		}
	}
	return s.compile(ctx, auth)
}

// Refresh discards any cached Permissions for the session and compiles
// from the current rules. Callers use it after a rules change
// notification.
func (s *Service) Refresh(ctx context.Context, auth domain.Auth) (domain.Permissions, error) {
	if userID := auth.UserIDOrEmpty(); userID != "" {
		s.registry.Drop(userID)
	}
	return s.compile(ctx, auth)
}

func (s *Service) compile(ctx context.Context, auth domain.Auth) (domain.Permissions, error) {
	rulesIn, roles, err := s.rulesSource.LoadRules(ctx, auth.UserIDOrEmpty())
	if err != nil {
		return domain.Permissions{}, err
	}

	perms := rules.New(auth, s.transientLUT)
	perms, err = rules.Update(ctx, perms, rules.Partial{
		Rules: &rulesIn,
		Roles: roles,
	}, s.checker, s.logger)
	if err != nil {
		return domain.Permissions{}, apperror.Wrap(err,
			apperror.CodeInvalidRules, apperror.BusinessCodeGeneral,
			"compiling permission rules", http.StatusUnprocessableEntity)
	}

	s.store(auth, perms)
	return perms, nil
}

// ValidateWrite validates an inbound transaction for the session. On
// success the advanced Permissions (its write buffer now carrying the
// transaction) replaces the session's cached value; on denial the
// session is left exactly as it was.
func (s *Service) ValidateWrite(ctx context.Context, auth domain.Auth, tx domain.Transaction) error {
	perms, err := s.PermissionsFor(ctx, auth)
	if err != nil {
		return err
	}

	next, err := engine.ValidateWrite(ctx, perms, s.writeGraph, tx, s.logger)
	if err != nil {
		return err
	}

	s.store(auth, next)
	return nil
}

// FilterRead filters an outbound transaction for the session and
// publishes one MoveOutEvent per dropped-and-moved-out change.
func (s *Service) FilterRead(ctx context.Context, auth domain.Auth, tx domain.Transaction) (domain.Transaction, []domain.MoveOut, error) {
	perms, err := s.PermissionsFor(ctx, auth)
	if err != nil {
		return domain.Transaction{}, nil, err
	}

	filtered, moveOuts, err := engine.FilterRead(ctx, perms, s.readGraph, tx, s.logger)
	if err != nil {
		return domain.Transaction{}, nil, err
	}

	if s.bus != nil {
		for _, mo := range moveOuts {
			s.bus.Publish(ctx, eventbus.Event{
				Topic: events.MoveOutTopic,
				Payload: events.MoveOutEvent{
					EventID:    uuid.New(),
					UserID:     auth.UserIDOrEmpty(),
					MoveOut:    mo,
					LSN:        tx.LSN,
					OccurredAt: time.Now(),
				},
			})
		}
	}

	return filtered, moveOuts, nil
}

// ReceiveTransaction observes the session's own transaction looping
// back from upstream, letting the write buffer drop its now-redundant
// overlay.
func (s *Service) ReceiveTransaction(ctx context.Context, auth domain.Auth, tx domain.Transaction) error {
	userID := auth.UserIDOrEmpty()
	if userID == "" {
		return nil
	}
	perms, ok := s.registry.Get(userID)
	if !ok {
		return nil
	}

	next, err := engine.ReceiveTransaction(ctx, perms, tx)
	if err != nil {
		return err
	}
	s.registry.Put(userID, next)
	return nil
}

// AssignedRoles lists the distinct roles the session's compiled
// Permissions holds.
func (s *Service) AssignedRoles(ctx context.Context, auth domain.Auth) ([]domain.Role, error) {
	perms, err := s.PermissionsFor(ctx, auth)
	if err != nil {
		return nil, err
	}
	return rules.AssignedRoleValues(perms), nil
}

func (s *Service) store(auth domain.Auth, perms domain.Permissions) {
	if userID := auth.UserIDOrEmpty(); userID != "" {
		s.registry.Put(userID, perms)
	}
}
