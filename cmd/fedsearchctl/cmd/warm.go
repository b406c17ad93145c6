package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fedsearch/internal/app"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
)

func newWarmCacheCmd(g *globalFlags) *cobra.Command {
	var (
		queries []string
		file    string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "warm-cache",
		Short: "Run queries to populate the result cache",
		Long: `warm-cache runs each query through federated search so the results
are cached for the current index versions. Queries come from --query
(repeatable) and from --file, one per line. An empty line warms the
match-all query.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				fromFile, err := readQueries(file)
				if err != nil {
					return err
				}
				queries = append(queries, fromFile...)
			}
			if len(queries) == 0 {
				return fmt.Errorf("no queries: use --query or --file")
			}

			return g.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var failed int
				for _, q := range queries {
					res, err := a.Federation.Search(ctx, federation.Request{Query: q, Limit: limit, Tenant: g.tenant})
					if err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "%q: %v\n", q, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%q: %d hits\n", q, len(res.Hits))
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d queries failed", failed, len(queries))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "Query to warm (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "File with one query per line")
	cmd.Flags().IntVar(&limit, "limit", 0, "Result limit (0: server default)")
	return cmd
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open queries: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return out, nil
}
