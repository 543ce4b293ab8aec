package tenantcmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tourdesk/tourdesk-saas/apps/cli/cmd/cliconfig"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// Command groups tenant configuration helpers.
func Command() *cobra.Command {
	var settings cliconfig.Settings

	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant configuration utilities (list, show, import, validate, cache, status)",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cliconfig.Resolve(cmd, &settings)
		},
	}
	cliconfig.BindFlags(cmd, &settings)

	cmd.AddCommand(listCommand(&settings))
	cmd.AddCommand(showCommand(&settings))
	cmd.AddCommand(importCommand(&settings))
	cmd.AddCommand(validateCommand())
	cmd.AddCommand(cacheFlushCommand(&settings))
	cmd.AddCommand(statusCommand(&settings, "activate", tenantconfig.StatusActive))
	cmd.AddCommand(statusCommand(&settings, "deactivate", tenantconfig.StatusInactive))
	return cmd
}

func withDeps(cmd *cobra.Command, settings *cliconfig.Settings, fn func(ctx context.Context, deps *cliconfig.Deps) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := cliconfig.Open(ctx, *settings)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(ctx, deps)
}

func listCommand(settings *cliconfig.Settings) *cobra.Command {
	var includeFiles bool

	c := &cobra.Command{
		Use:   "list",
		Short: "List active tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, settings, func(ctx context.Context, deps *cliconfig.Deps) error {
				for _, id := range deps.Resolver.ListTenants(ctx, includeFiles) {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
	c.Flags().BoolVar(&includeFiles, "include-files", false, "also list tenants that only exist as YAML files")
	return c
}

func showCommand(settings *cliconfig.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show <client-id>",
		Short: "Print the effective configuration of a tenant with secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, settings, func(ctx context.Context, deps *cliconfig.Deps) error {
				cfg, err := deps.Resolver.GetConfig(ctx, args[0])
				if err != nil {
					return fmt.Errorf("resolve %s: %w", args[0], err)
				}
				return printRedacted(cmd, cfg)
			})
		},
	}
}

func printRedacted(cmd *cobra.Command, cfg tenantconfig.TenantConfig) error {
	doc, err := cfg.Redacted()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func importCommand(settings *cliconfig.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "import <client-id>...",
		Short: "Copy tenant YAML files into the database (secrets stay in the environment)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, settings, func(ctx context.Context, deps *cliconfig.Deps) error {
				var failed []string
				for _, clientID := range args {
					cfg, err := deps.Resolver.LoadFromFiles(ctx, clientID)
					if err == nil {
						err = deps.Resolver.SaveConfig(ctx, clientID, cfg)
					}
					if err != nil {
						deps.Logger.Error("tenant import failed", zap.String("client_id", clientID), zap.Error(err))
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", clientID, describeError(err))
						failed = append(failed, clientID)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", clientID)
				}
				if len(failed) > 0 {
					return fmt.Errorf("import failed for %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a tenant YAML file against the configuration schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := tenantconfig.ParseYAML(data, tenantconfig.OSLookupEnv)
			if err != nil {
				return err
			}
			validator, err := tenantconfig.NewValidator()
			if err != nil {
				return err
			}
			if err := validator.Validate(cfg); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), describeError(err))
				return fmt.Errorf("%s is not a valid tenant config", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (client_id %s)\n", args[0], cfg.ClientID)
			return nil
		},
	}
}

func cacheFlushCommand(settings *cliconfig.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-flush [client-id]",
		Short: "Drop one tenant, or every tenant, from the shared Redis cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if settings.RedisURL == "" {
				return errors.New("redis url is required (--redis-url or REDIS_URL); in-process caches expire on their own")
			}
			return withDeps(cmd, settings, func(ctx context.Context, deps *cliconfig.Deps) error {
				return flushCache(ctx, cmd.OutOrStdout(), deps.Resolver, args)
			})
		},
	}
}

// cacheEvicter is the part of the resolver cache-flush needs.
type cacheEvicter interface {
	Evict(ctx context.Context, clientID string) error
	EvictAll(ctx context.Context) error
}

var _ cacheEvicter = (*tenantconfig.Service)(nil)

func flushCache(ctx context.Context, out io.Writer, cache cacheEvicter, args []string) error {
	if len(args) == 1 {
		if err := cache.Evict(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "invalidated %s\n", args[0])
		return nil
	}
	if err := cache.EvictAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "tenant config cache flushed")
	return nil
}

func statusCommand(settings *cliconfig.Settings, verb, status string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <client-id>",
		Short: "Mark a stored tenant " + status,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, settings, func(ctx context.Context, deps *cliconfig.Deps) error {
				if err := deps.Store.SetStatus(ctx, args[0], status); err != nil {
					if errors.Is(err, persistence.ErrTenantNotFound) {
						return fmt.Errorf("%s has no stored config; import it first", args[0])
					}
					return err
				}
				deps.Resolver.Invalidate(ctx, args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], status)
				return nil
			})
		},
	}
}

// describeError renders schema failures one field per line.
func describeError(err error) string {
	var validationErr *tenantconfig.ValidationError
	if !errors.As(err, &validationErr) {
		return err.Error()
	}

	fields := make([]string, 0, len(validationErr.Fields))
	for field := range validationErr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, field := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", field, strings.Join(validationErr.Fields[field], "; "))
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}
