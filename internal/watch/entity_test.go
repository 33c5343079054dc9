package watch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    Entity
		wantErr bool
	}{
		{raw: "rust-lang/rust", want: Entity{Owner: "rust-lang", Name: "rust"}},
		{raw: "  golang/go ", want: Entity{Owner: "golang", Name: "go"}},
		{raw: "golang", wantErr: true},
		{raw: "/go", wantErr: true},
		{raw: "golang/", wantErr: true},
		{raw: "a/b/c", wantErr: true},
		{raw: "go lang/go", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidEntity))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want.Owner+"/"+tt.want.Name, got.Key())
		})
	}
}

func TestParseListKeepsOrderAndRejectsDuplicates(t *testing.T) {
	t.Parallel()
	got, err := ParseList(SplitCSV("b/two, a/one,,c/three"))
	require.NoError(t, err)
	require.Equal(t, []Entity{{"b", "two"}, {"a", "one"}, {"c", "three"}}, got)

	_, err = ParseList([]string{"a/one", "A/One"})
	require.ErrorIs(t, err, ErrInvalidEntity)
}

func TestEventDedupKey(t *testing.T) {
	t.Parallel()
	ev := Event{Entity: Entity{Owner: "o", Name: "r"}, Identifier: "v2"}
	require.Equal(t, "o/r@v2", ev.DedupKey())
}
