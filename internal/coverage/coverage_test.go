package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinkman-dev/pinkman/internal/diffparse"
	"github.com/pinkman-dev/pinkman/internal/observability"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

const lcovSample = `TN:
SF:src/checkout.ts
DA:10,1
DA:11,0
DA:12,0
DA:13,1
end_of_record
SF:src/legacy.ts
DA:1,0
DA:2,0
DA:3,1
end_of_record
`

const goCoverSample = `mode: set
example.com/pkg/cart.go:10.2,12.10 2 1
example.com/pkg/cart.go:14.2,16.3 1 0
example.com/pkg/tax.go:5.1,9.2 3 1
`

const istanbulSample = `{
  "src/cart.ts": {
    "path": "src/cart.ts",
    "statementMap": {
      "0": {"start": {"line": 4}},
      "1": {"start": {"line": 9}}
    },
    "s": {"0": 5, "1": 0}
  }
}`

const coberturaSample = `<?xml version="1.0"?>
<coverage line-rate="0.5">
  <packages>
    <package name="app">
      <classes>
        <class filename="src/api.ts" line-rate="0.5" branch-rate="0.25">
          <lines>
            <line number="7" hits="0"/>
            <line number="8" hits="3"/>
          </lines>
        </class>
      </classes>
    </package>
  </packages>
</coverage>`

func TestSniff(t *testing.T) {
	cases := []struct {
		name string
		data string
		want models.CoverageFormat
	}{
		{"lcov", lcovSample, models.FormatLCOV},
		{"gocover", goCoverSample, models.FormatGoCoverProfile},
		{"istanbul", istanbulSample, models.FormatIstanbul},
		{"cobertura", coberturaSample, models.FormatCobertura},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			format, err := Sniff([]byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.want, format)
		})
	}
}

func TestSniff_Unrecognized(t *testing.T) {
	for _, data := range []string{"", "random text", `{"no": "markers"}`} {
		_, err := Sniff([]byte(data))
		require.ErrorIs(t, err, qaerrors.ErrUnrecognizedFormat, "input %q", data)
	}
}

func TestParse_LCOV(t *testing.T) {
	report, err := Parse([]byte(lcovSample))
	require.NoError(t, err)
	assert.Equal(t, models.FormatLCOV, report.Format)
	require.Len(t, report.Files, 2)

	checkout := report.Files["src/checkout.ts"]
	assert.InDelta(t, 50.0, checkout.LinePercent, 0.01)
	assert.Equal(t, []int{11, 12}, checkout.UncoveredLines)
}

func TestParse_GoCover(t *testing.T) {
	report, err := Parse([]byte(goCoverSample))
	require.NoError(t, err)

	cart := report.Files["example.com/pkg/cart.go"]
	assert.InDelta(t, 50.0, cart.LinePercent, 0.01)
	assert.Equal(t, []int{14}, cart.UncoveredLines)

	tax := report.Files["example.com/pkg/tax.go"]
	assert.InDelta(t, 100.0, tax.LinePercent, 0.01)
	assert.Empty(t, tax.UncoveredLines)
}

func TestParse_Istanbul(t *testing.T) {
	report, err := Parse([]byte(istanbulSample))
	require.NoError(t, err)

	cart := report.Files["src/cart.ts"]
	assert.InDelta(t, 50.0, cart.LinePercent, 0.01)
	assert.Equal(t, []int{9}, cart.UncoveredLines)
}

func TestParse_Cobertura(t *testing.T) {
	report, err := Parse([]byte(coberturaSample))
	require.NoError(t, err)

	api := report.Files["src/api.ts"]
	assert.InDelta(t, 50.0, api.LinePercent, 0.01)
	assert.InDelta(t, 25.0, api.BranchPercent, 0.01)
	assert.Equal(t, []int{7}, api.UncoveredLines)
}

const checkoutDiff = `diff --git a/src/checkout.ts b/src/checkout.ts
--- a/src/checkout.ts
+++ b/src/checkout.ts
@@ -10,2 +10,4 @@
 context line
+added one
+added two
 another context line
`

func TestAnalyze_RanksTouchedUncoveredFirst(t *testing.T) {
	changes, err := diffparse.Parse(checkoutDiff)
	require.NoError(t, err)

	analysis, err := New(observability.NewNop()).Analyze([]byte(lcovSample), changes)
	require.NoError(t, err)
	require.NotEmpty(t, analysis.Suggestions)

	first := analysis.Suggestions[0]
	assert.True(t, first.Touched)
	assert.Equal(t, "src/checkout.ts", first.FilePath)
	assert.Equal(t, 11, first.Line)

	second := analysis.Suggestions[1]
	assert.True(t, second.Touched)
	assert.Equal(t, 12, second.Line)

	last := analysis.Suggestions[len(analysis.Suggestions)-1]
	assert.False(t, last.Touched)
	assert.Equal(t, "src/legacy.ts", last.FilePath)
}

func TestAnalyze_SuggestionOrderIsReproducible(t *testing.T) {
	changes, err := diffparse.Parse(checkoutDiff)
	require.NoError(t, err)
	analyzer := New(observability.NewNop())

	baseline, err := analyzer.Analyze([]byte(lcovSample), changes)
	require.NoError(t, err)
	require.NotEmpty(t, baseline.Suggestions)

	for i := 0; i < 20; i++ {
		rerun, err := analyzer.Analyze([]byte(lcovSample), changes)
		require.NoError(t, err)
		assert.Equal(t, baseline.Suggestions, rerun.Suggestions)
	}
}

func TestAnalyze_UnrecognizedFormat(t *testing.T) {
	_, err := New(observability.NewNop()).Analyze([]byte("not coverage"), nil)
	require.ErrorIs(t, err, qaerrors.ErrUnrecognizedFormat)
}
