package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/scorer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	c1 := Default()
	c1.Eps = 2.5
	c1.MinSamples = 8
	c1.Source = string(dataset.SourceErrorIfMissing)

	err := Save(path, c1)
	require.NoError(t, err)

	c2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.Equal(t, dataset.SourceErrorIfMissing, c2.InputSource())
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, scorer.EpsDefault, c.Eps)
	assert.Equal(t, scorer.MinSamplesDefault, c.MinSamples)
	assert.Equal(t, dataset.SourceUploaded, c.InputSource())
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("min_samples: 10\n"), 0600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, c.MinSamples)
	assert.Equal(t, scorer.EpsDefault, c.Eps)
	assert.Equal(t, scorer.LabelColumnDefault, c.LabelColumn)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"bad eps":     "eps: 0\n",
		"bad source":  "source: s3\n",
		"bad sample":  "sample_size: 0\n",
		"bad preview": "preview_rows: -1\n",
		"not yaml":    "eps: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSave_Errors(t *testing.T) {
	assert.Error(t, Save("", Default()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), FileName), nil))
}

func TestScorerOptions(t *testing.T) {
	c := Default()
	c.Workers = 3
	o := c.ScorerOptions()
	assert.Equal(t, c.Eps, o.Eps)
	assert.Equal(t, c.MinSamples, o.MinSamples)
	assert.Equal(t, c.LabelColumn, o.LabelColumn)
	assert.Equal(t, 3, o.Workers)
}
