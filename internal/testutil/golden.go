package testutil

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/eventidx/internal/mutation"
)

// RenderMutations writes one mutation per line in its String form.
func RenderMutations(ms []mutation.Mutation) []byte {
	var buf bytes.Buffer
	for _, m := range ms {
		buf.WriteString(m.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// AssertGolden compares data against testdata/golden/{name}.golden in the
// calling package.
//
// To regenerate golden files, run:
//
//	go test ./internal/... -update
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
