package dzip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortEntries(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "byte-wise",
			in:   []string{"src/deeper/more.js", "index.js", "src/blah.js"},
			want: []string{"index.js", "src/blah.js", "src/deeper/more.js"},
		},
		{
			name: "upper case before lower case",
			in:   []string{"b", "a", "B", "A"},
			want: []string{"A", "B", "a", "b"},
		},
		{
			name: "separator sorts below letters",
			in:   []string{"a_b", "a/b", "a.b", "a-b"},
			want: []string{"a-b", "a.b", "a/b", "a_b"},
		},
		{
			name: "non-ascii after ascii",
			in:   []string{"é", "z", "e"},
			want: []string{"e", "z", "é"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]Entry, len(tt.in))
			for i, p := range tt.in {
				entries[i] = Entry{RelativePath: p, IsFile: true}
			}

			SortEntries(entries)

			got := make([]string, len(entries))
			for i, e := range entries {
				got[i] = e.RelativePath
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortEntries_Stable(t *testing.T) {
	entries := []Entry{
		{RelativePath: "dir", IsDir: true, AbsolutePath: "first"},
		{RelativePath: "a", IsFile: true, AbsolutePath: "/a"},
		{RelativePath: "dir", IsDir: true, AbsolutePath: "second"},
	}

	SortEntries(entries)
	assert.Equal(t, "first", entries[1].AbsolutePath)
	assert.Equal(t, "second", entries[2].AbsolutePath)
}

func TestValidate_DirectoriesMayRepeat(t *testing.T) {
	err := validate([]Entry{
		{RelativePath: "dir", IsDir: true},
		{RelativePath: "dir", IsDir: true},
		{RelativePath: "dir", AbsolutePath: "/dir/file"},
	})
	assert.NoError(t, err)
}
