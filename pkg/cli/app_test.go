package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/outlier/pkg/config"
	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureCSV = `Time,Amount,Class
0,1,0
0.1,1.1,0
0.2,1.2,0
0.3,1.3,0
0.4,1.4,0
90,900,1
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.csv")
	require.NoError(t, os.WriteFile(path, []byte(fixtureCSV), 0o600))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	err := app.Run(t.Context(), append([]string{appName}, args...))
	return buf.String(), err
}

func TestScoreCommand(t *testing.T) {
	in := writeFixture(t)
	out := filepath.Join(t.TempDir(), "results.csv")

	stdout, err := runApp(t, "score", "-i", in, "-o", out, "--eps", "1.0", "--min-samples", "3")
	require.NoError(t, err)

	var res ScoreResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "fixture.csv", res.Source)
	assert.Equal(t, out, res.Output)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 6, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Outliers)
	assert.Equal(t, 1, res.Summary.Clusters)
	assert.Equal(t, []string{"Time", "Amount"}, res.Summary.Features)
	require.NotNil(t, res.Evaluation)
	assert.Equal(t, 1, res.Evaluation.Confusion.TruePositive)
	require.NotNil(t, res.Preview)
	assert.Equal(t, []string{"Time", "Amount", "Class"}, res.Preview.Columns)
	assert.Equal(t, [][]string{{"0", "1", "0"}, {"0.1", "1.1", "0"}, {"0.2", "1.2", "0"}, {"0.3", "1.3", "0"}, {"0.4", "1.4", "0"}}, res.Preview.Rows)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	ds, err := dataset.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"Time", "Amount", "Class", "cluster", "is_outlier"}, ds.Columns)
	assert.Equal(t, "True", ds.Rows[5][4])
	assert.Equal(t, "-1", ds.Rows[5][3])
	assert.Equal(t, "False", ds.Rows[0][4])
}

func TestScoreCommand_Sample(t *testing.T) {
	stdout, err := runApp(t, "--format", "yaml", "score", "--sample")
	require.NoError(t, err)
	assert.Contains(t, stdout, "source: "+dataset.SampleName)
	assert.Contains(t, stdout, "label_column: Class")
}

func TestScoreCommand_NoInputFallsBackToSample(t *testing.T) {
	stdout, err := runApp(t, "score")
	require.NoError(t, err)

	var res ScoreResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, dataset.SampleName, res.Source)
}

func TestScoreCommand_URL(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, fixtureCSV)
	}))
	defer s.Close()

	stdout, err := runApp(t, "score", "-i", s.URL+"/data/fixture.csv", "--eps", "1.0", "--min-samples", "3")
	require.NoError(t, err)

	var res ScoreResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "fixture.csv", res.Source)
	assert.Equal(t, 1, res.Summary.Outliers)
}

func TestScoreCommand_Stdin(t *testing.T) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	app.Reader = strings.NewReader(fixtureCSV)
	require.NoError(t, app.Run(t.Context(), []string{appName, "score", "-i", "-"}))

	var res ScoreResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.Equal(t, "stdin", res.Source)
	assert.Equal(t, 6, res.Summary.Total)
}

func TestScoreCommand_ErrorIfMissing(t *testing.T) {
	_, err := runApp(t, "score", "--source", "error-if-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), dataset.ErrNoInput.Error())
}

func TestScoreCommand_InvalidSettings(t *testing.T) {
	in := writeFixture(t)

	_, err := runApp(t, "score", "-i", in, "--eps", "0")
	assert.Error(t, err)

	_, err = runApp(t, "score", "-i", in, "--min-samples", "0")
	assert.Error(t, err)

	_, err = runApp(t, "score", "-i", in, "--source", "bogus")
	assert.Error(t, err)
}

func TestScoreCommand_MissingFile(t *testing.T) {
	_, err := runApp(t, "score", "-i", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestScoreCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.FileName)
	cfg := config.Default()
	cfg.Eps = 1.0
	cfg.MinSamples = 7
	require.NoError(t, config.Save(cfgPath, cfg))

	stdout, err := runApp(t, "-c", cfgPath, "score", "-i", writeFixture(t))
	require.NoError(t, err)

	var res ScoreResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, 7, res.Summary.MinSamples)
	assert.Equal(t, 6, res.Summary.Outliers)
}

func TestConfigCommand(t *testing.T) {
	stdout, err := runApp(t, "--format", "yaml", "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "eps: 1.8")
	assert.Contains(t, stdout, "min_samples: 5")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", config.FileName)

	_, err := runApp(t, "config", "init", "--path", path)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestEncode(t *testing.T) {
	v := map[string]int{"outliers": 3}

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, formatJSON, v))
	assert.JSONEq(t, `{"outliers": 3}`, buf.String())

	buf.Reset()
	require.NoError(t, encode(&buf, formatYAML, v))
	assert.Equal(t, "outliers: 3\n", buf.String())
}

func TestUserError(t *testing.T) {
	assert.True(t, userError(dataset.ErrInput))
	assert.True(t, userError(dataset.ErrNoInput))
	assert.False(t, userError(os.ErrNotExist))
}
