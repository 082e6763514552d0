package recur

import (
	"testing"
	"time"

	"github.com/cuemby/instance-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, field Field, spec string) types.RecurrenceExpr {
	t.Helper()
	expr, err := ParseField(field, spec)
	require.NoError(t, err)
	return expr
}

func TestContainsAllAndUnion(t *testing.T) {
	dt := time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)

	ok, err := Contains(FieldMonth, types.All{}, dt)
	require.NoError(t, err)
	assert.True(t, ok)

	union := types.Union{Exprs: []types.RecurrenceExpr{
		types.SingleValueNumeric{Value: 3},
		types.SingleValueNumeric{Value: 4},
	}}
	ok, err = Contains(FieldMonth, union, dt)
	require.NoError(t, err)
	assert.True(t, ok, "union should match if any member matches")

	union = types.Union{Exprs: []types.RecurrenceExpr{
		types.SingleValueNumeric{Value: 1},
		types.SingleValueNumeric{Value: 2},
	}}
	ok, err = Contains(FieldMonth, union, dt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMonthdayRangeDoesNotWrap(t *testing.T) {
	tests := []struct {
		name  string
		start int
		end   int
		day   int
		want  bool
	}{
		{"within range", 25, 5, 27, false}, // monthdays never wrap: 25-5 in April is empty
		{"start beyond month end", 31, 31, 30, false},
		{"normal ascending range contains middle", 10, 20, 15, true},
		{"normal ascending range excludes outside", 10, 20, 25, false},
		{"inverted range excludes its own start day", 20, 10, 20, false},
		{"inverted range excludes its own end day", 20, 10, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := time.Date(2024, time.April, tt.day, 0, 0, 0, 0, time.UTC)
			expr := types.Range{Start: tt.start, End: tt.end, Interval: 1}
			got, err := Contains(FieldMonthday, expr, dt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonthWeekdayRangesWrap(t *testing.T) {
	novToFeb := types.Range{Start: 11, End: 2, Interval: 1}
	for month := time.November; month <= time.December; month++ {
		dt := time.Date(2024, month, 1, 0, 0, 0, 0, time.UTC)
		got, err := Contains(FieldMonth, novToFeb, dt)
		require.NoError(t, err)
		assert.True(t, got, "month %s should be in wrapped Nov-Feb range", month)
	}
	dt := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	got, err := Contains(FieldMonth, novToFeb, dt)
	require.NoError(t, err)
	assert.True(t, got)

	dt = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	got, err = Contains(FieldMonth, novToFeb, dt)
	require.NoError(t, err)
	assert.False(t, got)

	friToMon := types.Range{Start: 4, End: 0, Interval: 1} // Friday=4 .. Monday=0
	dt = time.Date(2024, time.April, 13, 0, 0, 0, 0, time.UTC) // a Saturday
	got, err = Contains(FieldWeekday, friToMon, dt)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestNthWeekday(t *testing.T) {
	tests := []struct {
		day  int
		want bool
	}{
		{1, true},
		{8, false},
		{15, false},
		{22, false},
		{29, false},
	}
	expr := types.NthWeekday{Weekday: 0, N: 1} // first Monday
	for _, tt := range tests {
		dt := time.Date(2024, time.April, tt.day, 0, 0, 0, 0, time.UTC)
		got, err := Contains(FieldWeekday, expr, dt)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "day %d", tt.day)
	}
}

func TestNearestWeekdayBumpLogic(t *testing.T) {
	// June 2024: the 1st is a Saturday, the 30th is a Sunday.
	assert.Equal(t, 3, ResolveNearestWeekday(1, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 28, ResolveNearestWeekday(30, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))

	// An ordinary Saturday mid-month bumps back to Friday.
	assert.Equal(t, 14, ResolveNearestWeekday(15, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
	// An ordinary Sunday mid-month bumps forward to Monday.
	assert.Equal(t, 17, ResolveNearestWeekday(16, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseFieldTokenGrammar(t *testing.T) {
	dt := time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC) // a Monday

	expr := mustParse(t, FieldWeekday, "Mon#1")
	// April 1, 2024 is the first Monday of the month; the 15th is the third.
	got, err := Contains(FieldWeekday, expr, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, got)

	expr = mustParse(t, FieldMonth, "*")
	got, err = Contains(FieldMonth, expr, dt)
	require.NoError(t, err)
	assert.True(t, got)

	expr = mustParse(t, FieldMonthday, "L")
	got, err = Contains(FieldMonthday, expr, time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, got)

	_, err = ParseField(FieldMonth, "Mon#1")
	assert.Error(t, err, "nth-weekday should be rejected outside a weekday field")
}
