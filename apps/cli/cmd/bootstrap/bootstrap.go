package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/apps/cli/cmd/cliconfig"
	usersrepo "github.com/tourdesk/tourdesk-saas/domains/users/be/repo"
	usersservice "github.com/tourdesk/tourdesk-saas/domains/users/be/service"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// Notes/constraints:
// - Every step is idempotent; rerunning bootstrap against a live database is safe.
// - The platform tenant is an ordinary tenant whose admins may operate the tenant config API.

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	var settings cliconfig.Settings

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap database schema and the platform tenant",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cliconfig.Resolve(cmd, &settings)
		},
	}
	cliconfig.BindFlags(cmd, &settings)

	cmd.AddCommand(schemaCommand(&settings))
	cmd.AddCommand(platformCommand(&settings))
	return cmd
}

func schemaCommand(settings *cliconfig.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the tenant registry, app users and operational tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			deps, err := cliconfig.Open(ctx, *settings)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := persistence.BootstrapSchema(ctx, deps.Pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
}

func platformCommand(settings *cliconfig.Settings) *cobra.Command {
	var (
		clientID      string
		adminUserID   string
		adminEmail    string
		adminFullName string
	)

	c := &cobra.Command{
		Use:   "platform",
		Short: "Apply the schema, store the platform tenant config and link its first admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			deps, err := cliconfig.Open(ctx, *settings)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := persistence.BootstrapSchema(ctx, deps.Pool); err != nil {
				return err
			}

			cfg, err := ensurePlatformTenant(ctx, deps, clientID)
			if err != nil {
				return err
			}

			appUsers, err := persistence.NewAppUserStore(deps.Pool)
			if err != nil {
				return err
			}
			userSvc := usersservice.New(usersrepo.NewPostgresRepository(appUsers))

			audit := requesttrace.System("cli-bootstrap")
			audit.ClientID = clientID
			ctxTenant := tenant.WithSpace(ctx, tenant.Space{ClientID: clientID, Config: cfg})
			user, err := ensureAdminUser(ctxTenant, userSvc, audit, usersservice.CreateInput{
				AuthUserID: adminUserID,
				Email:      adminEmail,
				FullName:   adminFullName,
				Role:       persistence.RoleAdmin,
			})
			if err != nil {
				return err
			}

			deps.Logger.Info("platform bootstrap complete", zap.String("client_id", clientID), zap.String("admin_email", user.Email))
			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. Tenant: %s (%s) | Admin user: %s (%s)\n", clientID, cfg.DisplayName, user.Email, user.ID)
			return nil
		},
	}

	c.Flags().StringVar(&clientID, "client-id", "tourdesk", "client id of the platform tenant (PLATFORM_CLIENT_ID)")
	c.Flags().StringVar(&adminUserID, "admin-user-id", "", "identity provider subject of the first admin")
	c.Flags().StringVar(&adminEmail, "admin-email", "", "Initial admin user email")
	c.Flags().StringVar(&adminFullName, "admin-full-name", "", "Initial admin user full name")

	_ = c.MarkFlagRequired("admin-user-id")
	_ = c.MarkFlagRequired("admin-email")
	_ = c.MarkFlagRequired("admin-full-name")

	return c
}

// ensurePlatformTenant resolves the platform tenant and stores its file config when the
// database does not hold it yet.
func ensurePlatformTenant(ctx context.Context, deps *cliconfig.Deps, clientID string) (tenantconfig.TenantConfig, error) {
	_, found, err := deps.Store.GetTenant(ctx, clientID)
	if err != nil {
		return tenantconfig.TenantConfig{}, err
	}
	if !found && !deps.Resolver.IsYAMLOnly(clientID) {
		cfg, err := deps.Resolver.LoadFromFiles(ctx, clientID)
		if err != nil {
			return tenantconfig.TenantConfig{}, fmt.Errorf("platform tenant %s needs a config file before bootstrap: %w", clientID, err)
		}
		if err := deps.Resolver.SaveConfig(ctx, clientID, cfg); err != nil {
			return tenantconfig.TenantConfig{}, fmt.Errorf("store platform tenant config: %w", err)
		}
	}
	return deps.Resolver.GetConfig(ctx, clientID)
}

// ensureAdminUser links the admin, returning the existing row when it is already linked.
func ensureAdminUser(ctx context.Context, svc usersservice.Service, audit requesttrace.AuditInfo, input usersservice.CreateInput) (usersservice.User, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.FullName = strings.TrimSpace(input.FullName)
	if input.Email == "" || input.FullName == "" {
		return usersservice.User{}, errors.New("admin email and full name are required")
	}

	user, err := svc.Create(ctx, audit, input)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, usersservice.ErrConflict) {
		return usersservice.User{}, fmt.Errorf("create admin user: %w", err)
	}

	email := input.Email
	existing, err := svc.List(ctx, usersservice.ListOptions{Email: &email, IncludeInactive: true, Page: 1, PageSize: 1})
	if err != nil {
		return usersservice.User{}, fmt.Errorf("lookup existing admin user: %w", err)
	}
	if len(existing.Users) == 0 {
		return usersservice.User{}, fmt.Errorf("admin user conflicts with an existing identity link")
	}
	return existing.Users[0], nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
