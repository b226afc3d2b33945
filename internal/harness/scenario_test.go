package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/reply_thread.yaml")
	require.NoError(t, err)

	assert.Equal(t, "reply_thread", s.Name)
	require.Len(t, s.Setup, 1)
	assert.Equal(t, "root", s.Setup[0].As)
	assert.Equal(t, map[string]string{"entry_type": "post", "content": "hello"}, s.Setup[0].Args)

	require.Len(t, s.Flow, 6)
	assert.Equal(t, "$root", s.Flow[1].Args["base"])
	require.NotNil(t, s.Flow[3].Expect)
	require.NotNil(t, s.Flow[3].Expect.Found)
	assert.True(t, *s.Flow[3].Expect.Found)
	assert.Equal(t, []string{"$reply"}, s.Flow[2].Expect.Links)
	assert.Nil(t, s.Flow[5].Expect)

	assert.Len(t, s.Assertions, 8)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, "name: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: typo
description: d
flow:
  - invoke: get_links
    args: { base: b, tag: t }
assertion:
  - type: verify
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing name",
			doc:  "description: d\nflow: [{invoke: get_links, args: {}}]\nassertions: [{type: verify}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			doc:  "name: n\nflow: [{invoke: get_links, args: {}}]\nassertions: [{type: verify}]\n",
			want: "description is required",
		},
		{
			name: "missing flow",
			doc:  "name: n\ndescription: d\nassertions: [{type: verify}]\n",
			want: "flow list is required",
		},
		{
			name: "missing assertions",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links, args: {}}]\n",
			want: "assertions list is required",
		},
		{
			name: "missing invoke",
			doc:  "name: n\ndescription: d\nflow: [{args: {}}]\nassertions: [{type: verify}]\n",
			want: "flow[0]: invoke is required",
		},
		{
			name: "unknown action",
			doc:  "name: n\ndescription: d\nflow: [{invoke: delete, args: {}}]\nassertions: [{type: verify}]\n",
			want: `flow[0]: unknown action "delete"`,
		},
		{
			name: "missing args",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links}]\nassertions: [{type: verify}]\n",
			want: "flow[0]: args is required",
		},
		{
			name: "label on non-commit",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links, as: x, args: {}}]\nassertions: [{type: verify}]\n",
			want: "as is only valid on commit",
		},
		{
			name: "duplicate label",
			doc: "name: n\ndescription: d\n" +
				"setup: [{invoke: commit, as: x, args: {entry_type: a, content: b}}]\n" +
				"flow: [{invoke: commit, as: x, args: {entry_type: a, content: c}}]\n" +
				"assertions: [{type: verify}]\n",
			want: `flow[0]: label "x" is already used`,
		},
		{
			name: "expect in setup",
			doc: "name: n\ndescription: d\n" +
				"setup: [{invoke: get_links, args: {}, expect: {case: ok}}]\n" +
				"flow: [{invoke: get_links, args: {}}]\nassertions: [{type: verify}]\n",
			want: "setup[0]: expect is not allowed",
		},
		{
			name: "bad expect case",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links, args: {}, expect: {case: Success}}]\nassertions: [{type: verify}]\n",
			want: "expect.case must be",
		},
		{
			name: "unknown assertion",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links, args: {}}]\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "trace_count negative",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links, args: {}}]\nassertions: [{type: trace_count, action: commit, count: -1}]\n",
			want: "count must be non-negative",
		},
		{
			name: "top without entry",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links, args: {}}]\nassertions: [{type: top}]\n",
			want: "entry is required for top",
		},
		{
			name: "trace_order without actions",
			doc:  "name: n\ndescription: d\nflow: [{invoke: get_links, args: {}}]\nassertions: [{type: trace_order}]\n",
			want: "actions list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_TraceCountZeroAllowed(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: zero
description: d
flow:
  - invoke: get_links
    args: { base: b, tag: t }
assertions:
  - type: trace_count
    action: commit
    count: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Assertions[0].Count)
}

func TestParseScenario_NumericArgsDecodeAsStrings(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: numeric
description: d
flow:
  - invoke: commit
    args: { entry_type: counter, content: 42 }
assertions:
  - type: verify
`))
	require.NoError(t, err)
	assert.Equal(t, "42", s.Flow[0].Args["content"])
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "trace_contains", AssertTraceContains)
	assert.Equal(t, "trace_order", AssertTraceOrder)
	assert.Equal(t, "trace_count", AssertTraceCount)
	assert.Equal(t, "chain_length", AssertChainLength)
	assert.Equal(t, "chain_types", AssertChainTypes)
	assert.Equal(t, "top", AssertTop)
	assert.Equal(t, "verify", AssertVerify)
}
