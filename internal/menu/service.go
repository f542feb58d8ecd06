package menu

import (
	"context"
	"log/slog"

	"github.com/proteamcare/access-engine/internal/audit"
	"github.com/proteamcare/access-engine/internal/authz"
)

// Service resolves permission-filtered menu trees.
type Service struct {
	resolver        *authz.Resolver
	catalog         CatalogSource
	recorder        *audit.Recorder
	devMenusEnabled bool
	logger          *slog.Logger
}

// NewService constructs a Service. devMenusEnabled is the deployment-level
// switch; even when true, dev menus require a system admin in system scope.
func NewService(resolver *authz.Resolver, catalog CatalogSource, recorder *audit.Recorder, devMenusEnabled bool, logger *slog.Logger) *Service {
	return &Service{
		resolver:        resolver,
		catalog:         catalog,
		recorder:        recorder,
		devMenusEnabled: devMenusEnabled,
		logger:          logger,
	}
}

// GetMenuTree resolves the target user's permissions and returns the pruned
// navigation forest. When the actor differs from the target the access is
// audited durably before the result is returned.
func (s *Service) GetMenuTree(ctx context.Context, actorID, targetID int64, scope authz.Context, includeDev bool) ([]*TreeNode, error) {
	granted, user, err := s.resolver.Resolve(ctx, targetID, scope)
	if err != nil {
		return nil, err
	}

	nodes, err := s.catalog.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	if !s.devMenusEnabled {
		includeDev = false
	}
	tree := BuildTree(nodes, granted, user, scope, includeDev)

	rec := audit.Record{
		ActorID:  actorID,
		TargetID: targetID,
		Scope:    scope,
		Action:   audit.ActionMenuResolve,
		Decision: audit.DecisionAllow,
	}
	if actorID != targetID {
		if err := s.recorder.Record(ctx, rec); err != nil {
			// Impersonation reads must not complete without a durable record.
			return nil, err
		}
	} else {
		s.recorder.RecordAsync(ctx, rec)
	}
	return tree, nil
}
