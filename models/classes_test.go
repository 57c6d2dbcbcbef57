package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInClassSets(t *testing.T) {
	assert.Equal(t, 81, COCOClasses.Len())
	assert.Equal(t, "__background__", COCOClasses.Name(0))

	assert.Equal(t, 80, YOLOClasses.Len())
	assert.Equal(t, "person", YOLOClasses.Name(0))
	assert.Equal(t, "toothbrush", YOLOClasses.Name(79))
	for i, c := range YOLOClasses.Classes {
		assert.Equal(t, i, c.Index, "YOLO class ids are zero-based positions")
	}

	assert.Equal(t, 21, PascalVOCClasses.Len())
}

func TestOutputClassSet_Name(t *testing.T) {
	set := NewOutputClassSet(ModelFamilyCustom, "cat", "dog")

	assert.Equal(t, "cat", set.Name(0))
	assert.Equal(t, "dog", set.Name(1))
	assert.Equal(t, "class 2", set.Name(2))
	assert.Equal(t, "class -1", set.Name(-1))
}

func TestOutputClassSet_ClassIDs(t *testing.T) {
	ids, err := YOLOClasses.ClassIDs([]string{"person", " car ", "dog"})
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 2: true, 16: true}, ids)

	ids, err = YOLOClasses.ClassIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = YOLOClasses.ClassIDs([]string{"person", "unicorn"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unicorn")
}

func TestOutputClassSet_Index(t *testing.T) {
	set := NewOutputClassSet(ModelFamilyCustom, "a", "b", "a")

	idx, ok := set.Index("b")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = set.Index("a")
	assert.True(t, ok)
	assert.Equal(t, 0, idx, "the first occurrence of a duplicate name wins")

	_, ok = set.Index("c")
	assert.False(t, ok)
}

func TestLoadClasses(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"unix line endings", "person\nbicycle\ncar\n", []string{"person", "bicycle", "car"}, false},
		{"windows line endings", "person\r\nbicycle\r\ncar\r\n", []string{"person", "bicycle", "car"}, false},
		{"no trailing newline", "person\nbicycle", []string{"person", "bicycle"}, false},
		{"trailing blank lines", "person\nbicycle\n\n\n", []string{"person", "bicycle"}, false},
		{"names with spaces", "traffic light\nstop sign\n", []string{"traffic light", "stop sign"}, false},
		{"interior blank line", "person\n\nbicycle\n", nil, true},
		{"empty", "", nil, true},
		{"only blank lines", "\n\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := LoadClasses(strings.NewReader(tt.input), ModelFamilyCustom)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			got := make([]string, 0, set.Len())
			for i := 0; i < set.Len(); i++ {
				got = append(got, set.Name(i))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, ModelFamilyCustom, set.Style)
		})
	}
}

func TestResolveClasses(t *testing.T) {
	set, err := ResolveClasses("")
	require.NoError(t, err)
	assert.Equal(t, ModelFamilyYOLO, set.Style)

	set, err = ResolveClasses("VOC")
	require.NoError(t, err)
	assert.Equal(t, ModelFamilyVOC, set.Style)

	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("helmet\nvest\n"), 0o600))

	set, err = ResolveClasses(path)
	require.NoError(t, err)
	assert.Equal(t, ModelFamilyCustom, set.Style)
	assert.Equal(t, "vest", set.Name(1))

	_, err = ResolveClasses(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
