package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fedsearch/internal/app"
	"github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

// errDoctorFailed makes the process exit non-zero without printing a second message.
var errDoctorFailed = errors.New("doctor found errors")

func newDoctorCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, connectivity and index drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report := a.Health.Doctor(ctx)
				var err error
				if g.jsonOutput {
					err = writeJSON(cmd.OutOrStdout(), report)
				} else {
					err = renderDoctor(cmd.OutOrStdout(), report)
				}
				if err != nil {
					return err
				}
				if report.Severity == health.SeverityError {
					return errDoctorFailed
				}
				return nil
			})
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show source record counts against indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireIndexing(a); err != nil {
					return err
				}
				st, err := a.Indexing.Status(ctx, g.tenant)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), st)
				}
				return renderStatus(cmd.OutOrStdout(), st)
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderDoctor(w io.Writer, r health.DoctorReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tCHECK\tSUBJECT\tMESSAGE")
	for _, f := range r.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Severity, f.Check, f.Subject, f.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nOverall: %s\n", r.Severity)
	return err
}

func renderStatus(w io.Writer, st []indexing.IndexStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTENANT\tINDEX\tRECORDS\tDOCUMENTS\tVERSION\tERROR")
	for _, s := range st {
		tenantID := s.Tenant
		if tenantID == "" {
			tenantID = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.SourceType, tenantID, s.Index, s.SourceCount, s.Documents, s.Version, s.Error)
	}
	return tw.Flush()
}
