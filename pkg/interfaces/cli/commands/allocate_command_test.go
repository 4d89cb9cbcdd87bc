package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/batchalloc/pkg/domain/allocation"
	"github.com/vsinha/batchalloc/pkg/infrastructure/config"
)

const (
	stockFixture = `center,mill,shipped_at,batch_id,product_id,arrived_mass,in_transit_mass,1001,1002
port,mill a,2024-02-27,B1,PA,10,0,1,1
port,mill b,2024-01-21,B2,PA,6,4,1,1
`
	requestsFixture = `client_name,client_id,client_group,location,product_id,requested
acme,1001,one,mill a,PA,10
beta,1002,two,mill b,PA,10
`
	prioritiesFixture = `client_id,importance
1001,5
1002,1
`
)

func writeScenario(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	settings := config.Defaults()
	settings.Solver.Name = "exhaustive"
	settings.Inputs.Requests = write("requests.csv", requestsFixture)
	settings.Inputs.Stock = write("stock.csv", stockFixture)
	settings.Inputs.Priorities = write("priorities.csv", prioritiesFixture)
	settings.Inputs.AsOf = "2024-03-01"
	return &settings
}

func TestAllocateCommand_Text(t *testing.T) {
	settings := writeScenario(t)
	var out bytes.Buffer

	require.NoError(t, NewAllocateCommand(settings, nil, &out).Execute(context.Background()))

	assert.Contains(t, out.String(), "Allocation Plan (as of 2024-03-01)")
	assert.Contains(t, out.String(), "Status: Optimal (optimal)")
	assert.Contains(t, out.String(), "Batches: 2 assigned, 0 unassigned of 2")
}

func TestAllocateCommand_JSONWithArtifacts(t *testing.T) {
	settings := writeScenario(t)
	dir := t.TempDir()
	settings.Output.Format = "json"
	settings.Output.ExportLP = filepath.Join(dir, "model.lp")
	settings.Output.MetricsFile = filepath.Join(dir, "metrics.prom")
	var out bytes.Buffer

	require.NoError(t, NewAllocateCommand(settings, nil, &out).Execute(context.Background()))

	var plan struct {
		Status      string `json:"status"`
		Assignments []struct {
			Client string `json:"client"`
			Batch  string `json:"batch"`
		} `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &plan))
	assert.Equal(t, "Optimal", plan.Status)
	assert.Len(t, plan.Assignments, 2)
	assert.Equal(t, "1001", plan.Assignments[0].Client)

	lp, err := os.ReadFile(settings.Output.ExportLP)
	require.NoError(t, err)
	assert.Contains(t, string(lp), "Subject To")

	prom, err := os.ReadFile(settings.Output.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "batchalloc_assigned_batches 2")
}

func TestAllocateCommand_Errors(t *testing.T) {
	t.Run("missing stock flag", func(t *testing.T) {
		settings := writeScenario(t)
		settings.Inputs.Stock = ""
		err := NewAllocateCommand(settings, nil, &bytes.Buffer{}).Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must specify both --requests and --stock")
	})

	t.Run("missing priorities file", func(t *testing.T) {
		settings := writeScenario(t)
		settings.Inputs.Priorities = filepath.Join(t.TempDir(), "absent.csv")
		err := NewAllocateCommand(settings, nil, &bytes.Buffer{}).Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Priorities file not found")
	})

	t.Run("malformed model", func(t *testing.T) {
		settings := writeScenario(t)
		settings.Model.ExcessTolerance = -1
		err := NewAllocateCommand(settings, nil, &bytes.Buffer{}).Execute(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, allocation.ErrMalformedInput)
	})

	t.Run("metrics still written on failure", func(t *testing.T) {
		settings := writeScenario(t)
		settings.Model.ExcessTolerance = -1
		settings.Output.MetricsFile = filepath.Join(t.TempDir(), "metrics.prom")
		require.Error(t, NewAllocateCommand(settings, nil, &bytes.Buffer{}).Execute(context.Background()))

		prom, err := os.ReadFile(settings.Output.MetricsFile)
		require.NoError(t, err)
		assert.Contains(t, string(prom), `batchalloc_run_failures_total{kind="MalformedInput"} 1`)
	})
}

func TestAllocateCommand_WithoutPriorities(t *testing.T) {
	settings := writeScenario(t)
	settings.Inputs.Priorities = ""
	var out bytes.Buffer

	require.NoError(t, NewAllocateCommand(settings, nil, &out).Execute(context.Background()))
	assert.Contains(t, out.String(), "2 assigned")
}
