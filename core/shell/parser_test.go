package shell

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []Stage
	}{
		{
			name: "empty line",
			raw:  "",
			want: nil,
		},
		{
			name: "whitespace only",
			raw:  "   \t ",
			want: nil,
		},
		{
			name: "single command",
			raw:  "ls",
			want: []Stage{{Cmd: "ls", Args: []string{"ls"}}},
		},
		{
			name: "arguments",
			raw:  "  ls   -l  /tmp ",
			want: []Stage{{Cmd: "ls", Args: []string{"ls", "-l", "/tmp"}}},
		},
		{
			name: "two stages",
			raw:  "ls -l | wc -l",
			want: []Stage{
				{Cmd: "ls", Args: []string{"ls", "-l"}},
				{Cmd: "wc", Args: []string{"wc", "-l"}},
			},
		},
		{
			name: "three stages",
			raw:  "cat f | sort | uniq",
			want: []Stage{
				{Cmd: "cat", Args: []string{"cat", "f"}},
				{Cmd: "sort", Args: []string{"sort"}},
				{Cmd: "uniq", Args: []string{"uniq"}},
			},
		},
		{
			name: "redirects in either order",
			raw:  "cat > out.txt < in.txt",
			want: []Stage{{Cmd: "cat", Args: []string{"cat"}, Input: "in.txt", Output: "out.txt"}},
		},
		{
			name: "redirect glued to marker",
			raw:  "cat <in.txt",
			want: []Stage{{Cmd: "cat", Args: []string{"cat"}, Input: "in.txt"}},
		},
		{
			name: "first redirect of a direction wins",
			raw:  "cat < a < b > x > y",
			want: []Stage{{Cmd: "cat", Args: []string{"cat"}, Input: "a", Output: "x"}},
		},
		{
			name: "marker without path is ignored",
			raw:  "cat <",
			want: []Stage{{Cmd: "cat", Args: []string{"cat"}}},
		},
		{
			name: "redirect path never reaches args",
			raw:  "grep foo < in.txt bar",
			want: []Stage{{Cmd: "grep", Args: []string{"grep", "foo", "bar"}, Input: "in.txt"}},
		},
		{
			name: "empty segments are dropped",
			raw:  "| sort |",
			want: []Stage{{Cmd: "sort", Args: []string{"sort"}}},
		},
		{
			name: "background single",
			raw:  "sleep 10 &",
			want: []Stage{{Cmd: "sleep", Args: []string{"sleep", "10"}, Background: true}},
		},
		{
			name: "background pipeline",
			raw:  "ls | wc &",
			want: []Stage{
				{Cmd: "ls", Args: []string{"ls"}},
				{Cmd: "wc", Args: []string{"wc"}, Background: true},
			},
		},
		{
			name: "lone background marker",
			raw:  "&",
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Stages)
		})
	}
}

func TestParseRedirectOrderIndependent(t *testing.T) {
	a, err := Parse("cat < in.txt > out.txt")
	require.NoError(t, err)
	b, err := Parse("cat > out.txt < in.txt")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a.Stages, 1)
	assert.Equal(t, "cat", a.Stages[0].Cmd)
	assert.Equal(t, []string{"cat"}, a.Stages[0].Args)
	assert.Equal(t, "in.txt", a.Stages[0].Input)
	assert.Equal(t, "out.txt", a.Stages[0].Output)
}

func TestParseBackgroundBeforePipe(t *testing.T) {
	cases := []string{
		"cmd1 & | cmd2",
		"cmd1 & | cmd2 | cmd3",
		"cmd1 | cmd2 & | cmd3",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			p, err := Parse(raw)

			assert.Nil(t, p, "no partial pipeline may be returned")
			var syntaxErr *SyntaxError
			require.ErrorAs(t, err, &syntaxErr)
			assert.Contains(t, syntaxErr.Error(), "syntax error")
		})
	}
}

func TestParseGolden(t *testing.T) {
	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	cases := map[string]string{
		"redirects":  "cat < in.txt > out.txt",
		"background": "ls -l | wc -l &",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := Parse(raw)
			require.NoError(t, err)

			out, err := json.MarshalIndent(p, "", "  ")
			require.NoError(t, err)

			g.Assert(t, name, append(out, '\n'))
		})
	}
}
