package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

type workspace struct {
	dir, model, frames, dict, config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:    dir,
		model:  filepath.Join(dir, "model.gob"),
		frames: filepath.Join(dir, "frames.txt"),
		dict:   filepath.Join(dir, "dict.tsv"),
		config: filepath.Join(dir, "dflat.yaml"),
	}
	require.NoError(t, os.WriteFile(w.dict, []byte("か\tk a\nい\ti\nき\tk i\n"), 0o644))
	require.NoError(t, os.WriteFile(w.config, []byte("log_level: error\ndecoder:\n  workers: 2\n"), 0o644))

	_, err := run(t, "synth", "--config", w.config,
		"--phones", "SIL,a,i,k", "--dim", "8", "-o", w.model,
		"--say", "SIL k a i", "--frames", w.frames)
	require.NoError(t, err)
	return w
}

func TestDecodeCommand(t *testing.T) {
	w := newWorkspace(t)
	out, err := run(t, "decode", w.frames, "--config", w.config,
		"--model", w.model, "--dict", w.dict, "--words", "か,い,き", "--loop",
		"--ref", "かい", "--timings")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "かい", lines[0])
	assert.Contains(t, out, "final true")
	assert.Contains(t, out, "[6-17] か")
	assert.Contains(t, out, "cer 0.0000 (0/2)")
}

func TestAlignCommand(t *testing.T) {
	w := newWorkspace(t)
	out, err := run(t, "align", w.frames, "か", "い", "--config", w.config, "--model", w.model, "--dict", w.dict)
	require.NoError(t, err)
	assert.Contains(t, out, "[0-17] か")
	assert.Contains(t, out, "[18-23] い")
}

func TestGraphCommand(t *testing.T) {
	w := newWorkspace(t)
	out, err := run(t, "graph", "--config", w.config, "--model", w.model, "--dict", w.dict, "--words", "か,い")
	require.NoError(t, err)
	assert.Contains(t, out, "pronunciation")
	assert.Contains(t, out, "reachable")

	out, err = run(t, "graph", "--config", w.config, "--model", w.model, "--phone-loop", "--dump")
	require.NoError(t, err)
	assert.Contains(t, out, "\tinitial\t")
	assert.Contains(t, out, "branch")
}

func TestGraphCommandFromLanguageModel(t *testing.T) {
	w := newWorkspace(t)
	arpa := filepath.Join(w.dir, "lm.arpa")
	require.NoError(t, os.WriteFile(arpa, []byte(`\data\
ngram 1=4
ngram 2=2

\1-grams:
-1.0	</s>
-1.0	<s>	-0.5
-0.5	か	-0.2
-0.7	い	-0.3

\2-grams:
-0.3	<s>	か
-0.4	か	い

\end\
`), 0o644))
	out, err := run(t, "decode", w.frames, "--config", w.config, "--model", w.model, "--dict", w.dict, "--lm", arpa)
	require.NoError(t, err)
	assert.Equal(t, "かい\n", out)
}

func TestCommandErrors(t *testing.T) {
	w := newWorkspace(t)
	_, err := run(t, "graph", "--model", w.model, "--dict", w.dict)
	assert.ErrorContains(t, err, "--words")

	_, err = run(t, "graph", "--model", w.model, "--words", "か", "--lm", "x.arpa")
	assert.Error(t, err, "grammar sources are exclusive")

	_, err = run(t, "decode", w.frames, "--model", filepath.Join(w.dir, "missing.gob"), "--words", "か")
	assert.Error(t, err)

	bad := filepath.Join(w.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("decoder:\n  beam_width: -1\n"), 0o644))
	_, err = run(t, "graph", "--config", bad, "--model", w.model, "--phone-loop")
	assert.ErrorContains(t, err, "beam_width")
}
