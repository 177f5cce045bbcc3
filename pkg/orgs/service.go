package orgs

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/audit"
)

// DefaultBcryptCost is the cost used to hash admin passwords
const DefaultBcryptCost = 10

// Namespaces creates and drops tenant namespaces. *tenant.Provisioner
// satisfies it.
type Namespaces interface {
	NamespaceExists(ctx context.Context, slug string) (bool, error)
	CreateTenantNamespace(ctx context.Context, slug string) error
	DropTenantNamespace(ctx context.Context, slug string) error
}

// PoolEvicter forgets the connection pool of a tenant. *tenant.Gateway
// satisfies it.
type PoolEvicter interface {
	Evict(slug string)
}

// Invalidator drops cached permission decisions of an organization.
// *permissions.Resolver satisfies it.
type Invalidator interface {
	InvalidateOrganization(ctx context.Context, orgID string)
}

// ServiceConfig wires the collaborators of a Service
type ServiceConfig struct {
	Namespaces  Namespaces
	Pools       PoolEvicter
	Invalidator Invalidator
	Audit       audit.Logger
	Logger      *logrus.Logger
	BcryptCost  int
}

// Service manages the organization lifecycle: creation with a tenant
// namespace, soft deactivation and hard deletion.
type Service struct {
	store       Store
	namespaces  Namespaces
	pools       PoolEvicter
	invalidator Invalidator
	audit       audit.Logger
	log         *logrus.Logger
	cost        int
}

// NewService creates a new organization service
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOp()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	return &Service{
		store:       store,
		namespaces:  cfg.Namespaces,
		pools:       cfg.Pools,
		invalidator: cfg.Invalidator,
		audit:       cfg.Audit,
		log:         cfg.Logger,
		cost:        cfg.BcryptCost,
	}
}

// CreateOrganization creates the organization row and its admin user, then
// the tenant namespace with its baseline tables. A slug whose namespace
// already exists is refused, so a new organization never inherits tenant
// data left behind by an earlier one. If the namespace cannot be created
// the organization is removed again and a provisioning error is returned.
func (s *Service) CreateOrganization(ctx context.Context, actor *string, req CreateOrgRequest) (*CreateOrgResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	org := &Organization{
		Name:     req.Name,
		Slug:     req.Slug,
		Type:     req.Type,
		Settings: req.Settings,
	}
	if req.Domain != "" {
		org.Domain = &req.Domain
	}
	admin := &AdminUser{
		Email: req.AdminEmail,
		Name:  req.AdminName,
		Role:  RoleAdmin,
	}

	if s.namespaces != nil {
		exists, err := s.namespaces.NamespaceExists(ctx, org.Slug)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperrors.Conflict(apperrors.CodeDuplicateOrganization,
				fmt.Sprintf("tenant namespace %s already exists", org.Slug))
		}
	}

	if err := s.store.CreateWithAdmin(ctx, org, admin, string(hashed)); err != nil {
		return nil, err
	}

	logger := s.log.WithFields(logrus.Fields{"org_id": org.ID, "tenant": org.Slug})
	if s.namespaces != nil {
		if err := s.namespaces.CreateTenantNamespace(ctx, org.Slug); err != nil {
			logger.WithError(err).Error("tenant namespace creation failed, removing organization")
			if delErr := s.store.Delete(context.WithoutCancel(ctx), org.ID); delErr != nil {
				logger.WithError(delErr).Error("failed to remove organization after provisioning failure")
			}
			if apperrors.IsProvisioning(err) {
				return nil, err
			}
			return nil, apperrors.Provisioning(fmt.Sprintf("failed to create namespace for %s", org.Slug), err)
		}
	}

	logger.Info("organization created")
	s.record(ctx, audit.EventTypeAdminOrgCreate, actor, org.ID,
		fmt.Sprintf("created organization %s with admin %s", org.Slug, admin.Email))

	return &CreateOrgResult{Organization: org, AdminUser: admin}, nil
}

// GetOrganization retrieves an organization by ID
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	return s.store.GetOrganization(ctx, id)
}

// ListOrganizations lists organizations
func (s *Service) ListOrganizations(ctx context.Context, includeInactive bool) ([]*Organization, error) {
	return s.store.ListOrganizations(ctx, includeInactive)
}

// DeactivateOrganization marks the organization and its users inactive.
// Grants, assignments and tenant data are kept.
func (s *Service) DeactivateOrganization(ctx context.Context, actor *string, id string) (*Organization, error) {
	org, err := s.store.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"org_id": id, "tenant": org.Slug}).Info("organization deactivated")
	s.record(ctx, audit.EventTypeAdminOrgDeactivate, actor, id,
		fmt.Sprintf("deactivated organization %s", org.Slug))
	if s.invalidator != nil {
		s.invalidator.InvalidateOrganization(ctx, id)
	}
	return org, nil
}

// DeleteOrganization permanently removes an organization. Grants are
// revoked, the tenant pool is closed and the namespace is dropped before the
// organization row goes, so a failed drop leaves the organization in place
// and the call can be retried.
func (s *Service) DeleteOrganization(ctx context.Context, actor *string, id string) error {
	org, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return err
	}
	logger := s.log.WithFields(logrus.Fields{"org_id": id, "tenant": org.Slug})

	if err := s.store.RevokeGrants(ctx, id); err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateOrganization(ctx, id)
	}
	if s.pools != nil {
		s.pools.Evict(org.Slug)
	}
	if s.namespaces != nil {
		if err := s.namespaces.DropTenantNamespace(ctx, org.Slug); err != nil {
			logger.WithError(err).Error("namespace drop failed, organization kept")
			return err
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		logger.WithError(err).Error("namespace dropped but organization row delete failed")
		return err
	}

	logger.Info("organization deleted")
	s.record(ctx, audit.EventTypeAdminOrgDelete, actor, id,
		fmt.Sprintf("deleted organization %s and dropped its namespace", org.Slug))
	return nil
}

func (s *Service) record(ctx context.Context, eventType audit.EventType, actor *string, orgID, message string) {
	if err := s.audit.LogAdminAction(ctx, eventType, actor, &orgID, message); err != nil {
		s.log.WithError(err).Warn("failed to write audit event")
	}
}
