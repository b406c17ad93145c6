package cmd

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/fedsearch/internal/config"
	"github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"reindex", "index", "delete", "flush", "sync-settings", "warm-cache", "doctor", "status", "tenants", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "fedsearchctl dev"))
}

func TestFlushCmd_RequiresIndexArg(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"flush"})

	assert.Error(t, root.Execute())
}

func TestWarmCacheCmd_RequiresQueries(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"warm-cache"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no queries")
}

func TestReadQueries(t *testing.T) {
	path := t.TempDir() + "/queries.txt"
	require.NoError(t, writeFile(path, "# popular\nshoes\n\n  red boots  \n"))

	qs, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"shoes", "", "red boots"}, qs)
}

func TestRenderDoctor(t *testing.T) {
	var buf bytes.Buffer
	err := renderDoctor(&buf, health.DoctorReport{
		Severity: health.SeverityWarn,
		Findings: []health.Finding{
			{Check: "connectivity", Subject: "engine", Severity: health.SeverityOK},
			{Check: "index", Subject: "products", Severity: health.SeverityWarn, Message: "index not found"},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "index not found")
	assert.Contains(t, out, "Overall: warn")
}

func TestRenderStatus(t *testing.T) {
	var buf bytes.Buffer
	err := renderStatus(&buf, []indexing.IndexStatus{
		{SourceType: "product", Index: "products", SourceCount: 10, Documents: 9, Version: 3},
		{SourceType: "article", Tenant: "acme", Index: "content_acme", Error: "boom"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "products")
	assert.Contains(t, lines[1], " - ")
	assert.Contains(t, lines[2], "content_acme")
	assert.Contains(t, lines[2], "boom")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, health.DoctorReport{Severity: health.SeverityOK, Findings: []health.Finding{}}))
	assert.Contains(t, buf.String(), `"severity": "ok"`)
}

const tenantsBaseConfig = `
database:
  addrs: ["localhost:6379"]
queue:
  driver: memory
mappings:
  - source_type: products
    index_name: products
  - source_type: articles
    index_name: content
`

func TestListTenants_ResolvesEveryMapping(t *testing.T) {
	cfg, err := config.Parse([]byte(tenantsBaseConfig + `
tenancy:
  enabled: true
  default_tenant: acme
  tenants: ["acme", "Globex Corp"]
`))
	require.NoError(t, err)

	rows, err := listTenants(cfg)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tenantIndexes{Tenant: "acme", Default: true, Indexes: []string{"products_acme", "content_acme"}}, rows[0])
	assert.Equal(t, []string{"products_globex-corp", "content_globex-corp"}, rows[1].Indexes)
	assert.False(t, rows[1].Default)
}

func TestListTenants_SingleTenantUsesBaseNames(t *testing.T) {
	cfg, err := config.Parse([]byte(tenantsBaseConfig))
	require.NoError(t, err)

	rows, err := listTenants(cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Tenant)
	assert.Equal(t, []string{"products", "content"}, rows[0].Indexes)
}

func TestListTenants_RequiredTenantMissing(t *testing.T) {
	cfg, err := config.Parse([]byte(tenantsBaseConfig + `
tenancy:
  enabled: true
  require_tenant: true
`))
	require.NoError(t, err)

	rows, err := listTenants(cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Indexes)
	assert.Contains(t, rows[0].Error, "tenant required")
}

func TestRenderTenants(t *testing.T) {
	var buf bytes.Buffer
	err := renderTenants(&buf, []tenantIndexes{
		{Tenant: "acme", Default: true, Indexes: []string{"products_acme", "content_acme"}},
		{Tenant: "", Indexes: []string{}, Error: "tenant required"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TENANT")
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[1], "products_acme,content_acme")
	assert.True(t, strings.HasPrefix(lines[2], "-"))
	assert.Contains(t, lines[2], "tenant required")
}

func TestTenantsCmd_JSON(t *testing.T) {
	path := t.TempDir() + "/fedsearch.yaml"
	require.NoError(t, writeFile(path, tenantsBaseConfig))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"tenants", "--config", path, "--json"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"indexes": [`)
	assert.Contains(t, out.String(), `"products"`)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
