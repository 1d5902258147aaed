package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"metro-assistant/internal/domain"
)

type fakeStore struct {
	saved   domain.Knowledge
	loaded  domain.Knowledge
	saveErr error
}

func (f *fakeStore) LoadKnowledge(context.Context) (domain.Knowledge, error) {
	return f.loaded, nil
}

func (f *fakeStore) SaveKnowledge(_ context.Context, k domain.Knowledge) (int, error) {
	f.saved = k
	return len(k.FAQ) + len(k.Synonyms) + len(k.Sections), f.saveErr
}

func run(t *testing.T, store *fakeStore, args ...string) (string, error) {
	t.Helper()
	var gotTable string
	open := func(_ context.Context, table string) (knowledgeStore, error) {
		gotTable = table
		return store, nil
	}
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		require.Equal(t, "metro-kb", gotTable)
	}
	return out.String(), err
}

func TestSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"faq": [{"q": "Are pets allowed?", "a": "Small pets in carriers."}],
		"synonyms": {"Swargate": ["sbs"]},
		"sections": {"parking": {"available": true}}
	}`), 0o600))

	store := &fakeStore{}
	out, err := run(t, store, "seed", "--table", "metro-kb", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, "wrote 3 items to metro-kb")
	require.Equal(t, "Are pets allowed?", store.saved.FAQ[0].Question)
	require.Equal(t, []string{"sbs"}, store.saved.Synonyms["Swargate"])
}

func TestSeed_Errors(t *testing.T) {
	_, err := run(t, &fakeStore{}, "seed", "--table", "metro-kb", "-f", filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorContains(t, err, "read")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	_, err = run(t, &fakeStore{}, "seed", "--table", "metro-kb", "-f", bad)
	require.ErrorContains(t, err, "parse")

	good := filepath.Join(t.TempDir(), "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"faq":[]}`), 0o600))
	_, err = run(t, &fakeStore{saveErr: errors.New("throttled")}, "seed", "--table", "metro-kb", "-f", good)
	require.ErrorContains(t, err, "throttled")
}

func TestDump(t *testing.T) {
	store := &fakeStore{loaded: domain.Knowledge{
		FAQ: []domain.FAQEntry{{Question: "Is there parking?", Answer: "At Vanaz."}},
	}}
	out, err := run(t, store, "dump", "--table", "metro-kb")
	require.NoError(t, err)

	var k domain.Knowledge
	require.NoError(t, json.Unmarshal([]byte(out), &k))
	require.Equal(t, "At Vanaz.", k.FAQ[0].Answer)
}

func TestRequiresTable(t *testing.T) {
	t.Setenv("KNOWLEDGE_TABLE", "")
	_, err := run(t, &fakeStore{}, "dump")
	require.ErrorContains(t, err, "--table is required")
}
