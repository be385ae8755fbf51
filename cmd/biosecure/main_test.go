package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biosecure/internal/casefile"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, "classify", "Spodoptera", "frugiperda")
	require.NoError(t, err)
	assert.Contains(t, out, "Threat:  HIGH")
	assert.Contains(t, out, "Hosts:   maize, sweet corn, sorghum")

	out, err = execute(t, "classify", "Apis mellifera")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:  Benign")
	assert.Contains(t, out, "Threat:  LOW")
	assert.NotContains(t, out, "Hosts:")
}

func TestClassifyRequiresSpecies(t *testing.T) {
	_, err := execute(t, "classify")
	assert.Error(t, err)
}

func TestInvestigateOffline(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("IMAGE_BUCKET", "new-zealand-insects")
	t.Setenv("REPORT_BUCKET", "")

	out, err := execute(t, "--offline", "--log-level", "error", "investigate", "--location", "Pukekohe", "--json")
	require.NoError(t, err)

	var cf casefile.CaseFile
	require.NoError(t, json.Unmarshal([]byte(out), &cf))
	assert.Equal(t, casefile.StatusReported, cf.Status)
	assert.Equal(t, "Pukekohe", cf.Location.Description)
	assert.NotEmpty(t, cf.ReportURL)
}

func TestInvestigateRequiresLocation(t *testing.T) {
	_, err := execute(t, "--offline", "investigate")
	assert.ErrorContains(t, err, "location")
}
