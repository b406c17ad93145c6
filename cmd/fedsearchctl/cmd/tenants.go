package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fedsearch/internal/config"
	"github.com/kailas-cloud/fedsearch/internal/domain/tenant"
)

// tenantIndexes is one tenant with the physical index of every mapping.
type tenantIndexes struct {
	Tenant  string   `json:"tenant"`
	Default bool     `json:"default"`
	Indexes []string `json:"indexes"`
	Error   string   `json:"error,omitempty"`
}

func newTenantsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tenants",
		Short: "List configured tenants and their physical index names",
		Long: `tenants resolves every mapped index for each configured tenant.
It reads the configuration only and does not connect to the engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rows, err := listTenants(cfg)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			return renderTenants(cmd.OutOrStdout(), rows)
		},
	}
}

// listTenants resolves the mapped indexes per tenant. Without tenancy, or without
// any configured tenant, a single shared row is returned.
func listTenants(cfg config.Config) ([]tenantIndexes, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	bases := reg.IndexNames()
	resolver := tenant.NewResolver(cfg.Tenancy.Enabled, cfg.Tenancy.RequireTenant)

	ids := []string{""}
	if cfg.Tenancy.Enabled {
		ids = append([]string{}, cfg.Tenancy.Tenants...)
		if cfg.Tenancy.DefaultTenant != "" && len(ids) == 0 {
			ids = append(ids, cfg.Tenancy.DefaultTenant)
		}
		if len(ids) == 0 {
			ids = []string{""}
		}
	}

	rows := make([]tenantIndexes, 0, len(ids))
	for _, id := range ids {
		row := tenantIndexes{
			Tenant:  id,
			Default: cfg.Tenancy.Enabled && id != "" && id == cfg.Tenancy.DefaultTenant,
			Indexes: []string{},
		}
		physical, err := resolver.ResolveAll(bases, id)
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Indexes = physical
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func renderTenants(w io.Writer, rows []tenantIndexes) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tDEFAULT\tINDEXES\tERROR")
	for _, r := range rows {
		id := r.Tenant
		if id == "" {
			id = "-"
		}
		def := ""
		if r.Default {
			def = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, def, strings.Join(r.Indexes, ","), r.Error)
	}
	return tw.Flush()
}
