// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exdb/repoload/repo"
)

const dictYAML = `
version: "1.0"
categories:
  - name: entry
    attributes:
      - {name: id, type: string}
      - {name: title, type: string, nullable: true}
  - name: status
    attributes:
      - {name: status_code, type: string, nullable: true}
  - name: entity
    attributes:
      - {name: id, type: string}
      - {name: type, type: string, nullable: true}
`

const rulesYAML = `
schemas:
  core:
    cardinality:
      - {category: entity, parent: {category: entity, attribute: id}}
    slices:
      entity:
        parent: {category: entity, attribute: id}
        extras: [entry]
collections:
  core_entry:
    schema: core
    exclude: [entity]
    privateKeys:
      - {source: {category: entry, attribute: id}, name: _entry_id, mandatory: true}
  core_entity:
    schema: core
    slice: entity
    privateKeys:
      - {source: {category: entry, attribute: id}, name: _entry_id, mandatory: true}
      - {source: {category: entity, attribute: id}, name: _entity_id, mandatory: true}
`

func writeFixtures(t *testing.T, recordIDs ...string) (dictPath, rulePath, repoDir string) {
	t.Helper()
	dir := t.TempDir()
	dictPath = filepath.Join(dir, "dict.yaml")
	require.NoError(t, os.WriteFile(dictPath, []byte(dictYAML), 0o644))
	rulePath = filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulePath, []byte(rulesYAML), 0o644))
	repoDir = filepath.Join(dir, "records")
	require.NoError(t, os.Mkdir(repoDir, 0o755))
	for _, id := range recordIDs {
		record := fmt.Sprintf(`
id: %q
categories:
  entry:
    - {id: %q, title: "record %s"}
  status:
    - {status_code: REL}
  entity:
    - {id: "1", type: polymer}
    - {id: "2", type: polymer}
`, id, id, id)
		require.NoError(t, os.WriteFile(filepath.Join(repoDir, id+".yaml"), []byte(record), 0o644))
	}
	return dictPath, rulePath, repoDir
}

func TestRunLoaderCommand(t *testing.T) {
	dictPath, rulePath, repoDir := writeFixtures(t, "01", "02")
	outDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	cmd := NewRunLoaderCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.Dictionaries = []string{dictPath}
	cmd.Rules = rulePath
	cmd.Schema = "core"
	cmd.Dir = repoDir
	cmd.NumProc = 1
	cmd.ChunkSize = 1
	cmd.FailListPath = filepath.Join(outDir, "fail.txt")
	cmd.SaveListPath = filepath.Join(outDir, "save.txt")

	require.NoError(t, cmd.Run(context.Background()))
	assert.Contains(t, stdout.String(), "attempted 2, failed 0")

	saved, err := repo.ReadIDList(cmd.SaveListPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, saved)
}

func TestSetupLoggerRoutesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "repoload.log")
	var stdout, stderr bytes.Buffer
	cio := NewCmdIO(strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, cio.SetupLogger(logPath))
	cio.Logger().Infof("redirect check")

	out, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "redirect check")
	assert.Empty(t, stderr.String())
}

func TestRunLoaderCommandLogsToFile(t *testing.T) {
	dictPath, rulePath, repoDir := writeFixtures(t, "01")
	logPath := filepath.Join(t.TempDir(), "load.log")

	var stdout, stderr bytes.Buffer
	cmd := NewRunLoaderCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.Dictionaries = []string{dictPath}
	cmd.Rules = rulePath
	cmd.Schema = "core"
	cmd.Dir = repoDir
	cmd.NumProc = 1
	cmd.ChunkSize = 1
	require.NoError(t, cmd.SetupLogger(logPath))

	require.NoError(t, cmd.Run(context.Background()))
	out, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "attempted 1")
}

func TestSetupLoggerEmptyPathKeepsStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cio := NewCmdIO(strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, cio.SetupLogger(""))
	cio.Logger().Infof("stderr check")
	assert.Contains(t, stderr.String(), "stderr check")
}

func TestRunLoaderCommandRejectsBadLoadType(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewRunLoaderCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.LoadType = "incremental"
	err := cmd.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, UsageError)
}

func TestCompileSchemaCommand(t *testing.T) {
	dictPath, rulePath, _ := writeFixtures(t)

	var stdout, stderr bytes.Buffer
	cmd := NewCompileSchemaCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.Dictionaries = []string{dictPath}
	cmd.Rules = rulePath
	cmd.Schema = "core"

	require.NoError(t, cmd.Run(context.Background()))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, "core", decoded["name"])

	stdout.Reset()
	cmd.DigestOnly = true
	require.NoError(t, cmd.Run(context.Background()))
	assert.Len(t, strings.TrimSpace(stdout.String()), 16)
}

func TestCompileSchemaCommandMissingInputs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewCompileSchemaCommand(strings.NewReader(""), &stdout, &stderr)
	err := cmd.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, UsageError)
}

func TestSplitIDListCommand(t *testing.T) {
	_, _, repoDir := writeFixtures(t, "01", "02", "03")
	outDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	cmd := NewSplitIDListCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.Dir = repoDir
	cmd.NumLists = 2
	cmd.OutputDir = outDir

	require.NoError(t, cmd.Run(context.Background()))
	paths := strings.Fields(stdout.String())
	require.Len(t, paths, 2)
	first, err := repo.ReadIDList(paths[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, first)
}

func TestWipeTargetCommandRejectsValueWithoutField(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewWipeTargetCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.Collections = []string{"core_entry"}
	cmd.KeyValue = "01"
	err := cmd.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, UsageError)
}

func TestETLDerivedCommandRequiresStatusCollection(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewETLDerivedCommand(strings.NewReader(""), &stdout, &stderr)
	err := cmd.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, UsageError)
}
