package filter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// VALIDATE
// ============================================================================

func TestValidate_Absent(t *testing.T) {
	got, invalid := Validate(Absent(), NewKeys("region"))
	assert.True(t, got.IsAbsent())
	assert.Empty(t, invalid)
	assert.NotNil(t, invalid)
}

func TestValidate_MapKeepsOrderAndReportsInvalid(t *testing.T) {
	in := FromMap(NewMap(P("year", 2024), P("data_type", "sales"), P("region", "us")))

	got, invalid := Validate(in, NewKeys("region", "year"))

	require.Equal(t, KindMap, got.Kind())
	assert.Equal(t, []string{"year", "region"}, got.Keys())
	assert.Equal(t, []string{"data_type"}, invalid)

	_, present := got.Map().Get("data_type")
	assert.False(t, present, "invalid key must be removed, not only reported")
}

func TestValidate_ListKeepsOrderAndReportsInvalidOnce(t *testing.T) {
	in := FromList([]Expr{
		EQ("region", "us"),
		EQ("bogus", 1),
		GT("year", 2020),
		NE("bogus", 2),
		EQ("other", true),
	})

	got, invalid := Validate(in, NewKeys("region", "year"))

	require.Equal(t, KindList, got.Kind())
	assert.Equal(t, []Expr{EQ("region", "us"), GT("year", 2020)}, got.Exprs())
	assert.Equal(t, []string{"bogus", "other"}, invalid)
}

func TestValidate_EmptyValidKeysRejectsEverything(t *testing.T) {
	tests := []struct {
		name string
		in   Set
		kind Kind
		keys []string
	}{
		{
			name: "map",
			in:   FromMap(NewMap(P("a", 1), P("b", 2))),
			kind: KindMap,
			keys: []string{"a", "b"},
		},
		{
			name: "list",
			in:   FromList([]Expr{EQ("a", 1), EQ("b", 2)}),
			kind: KindList,
			keys: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, invalid := Validate(tt.in, NewKeys())
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, 0, got.Len())
			assert.Equal(t, tt.keys, invalid)

			got, invalid = Validate(tt.in, nil)
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, 0, got.Len())
			assert.Equal(t, tt.keys, invalid)
		})
	}
}

func TestValidate_DoesNotReturnCallerStorage(t *testing.T) {
	exprs := []Expr{EQ("region", "us"), EQ("bogus", 1)}
	in := FromList(exprs)

	got, invalid := Validate(in, NewKeys("region"))

	assert.Equal(t, []string{"bogus"}, invalid)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, 2, in.Len(), "input must be left untouched")
	assert.Equal(t, EQ("bogus", 1), exprs[1])
}

// ============================================================================
// RECONCILE
// ============================================================================

func TestReconcile_OneSideAbsent(t *testing.T) {
	sets := []Set{
		Absent(),
		FromMap(NewMap(P("region", "us"))),
		FromList([]Expr{EQ("year", 2024)}),
	}

	for _, x := range sets {
		assert.Equal(t, x, Reconcile(Absent(), x), "reconcile(absent, %s)", x)
		assert.Equal(t, x, Reconcile(x, Absent()), "reconcile(%s, absent)", x)
	}
}

func TestReconcile_MapMapUserWins(t *testing.T) {
	agentic := FromMap(NewMap(P("region", "us")))
	user := FromMap(NewMap(P("region", "eu"), P("year", 2024)))

	got := Reconcile(agentic, user)

	require.Equal(t, KindMap, got.Kind())
	assert.Equal(t, []Pair{P("region", "eu"), P("year", 2024)}, got.Map().Pairs())
}

func TestReconcile_MapMapKeepsAgenticPositions(t *testing.T) {
	agentic := FromMap(NewMap(P("quarter", "Q1"), P("region", "us")))
	user := FromMap(NewMap(P("year", 2024), P("region", "eu")))

	got := Reconcile(agentic, user)

	assert.Equal(t, []Pair{P("quarter", "Q1"), P("region", "eu"), P("year", 2024)}, got.Map().Pairs())
	// inputs stay as they were
	v, _ := agentic.Map().Get("region")
	assert.Equal(t, "us", v)
}

func TestReconcile_ListListConcatenatesAgenticFirst(t *testing.T) {
	got := Reconcile(FromList([]Expr{EQ("a", 1)}), FromList([]Expr{EQ("b", 2)}))
	assert.Equal(t, FromList([]Expr{EQ("a", 1), EQ("b", 2)}), got)
}

func TestReconcile_ListListKeepsDuplicates(t *testing.T) {
	got := Reconcile(FromList([]Expr{EQ("a", 1)}), FromList([]Expr{EQ("a", 1)}))
	assert.Equal(t, []Expr{EQ("a", 1), EQ("a", 1)}, got.Exprs())
}

func TestReconcile_ShapeConflictNormalizes(t *testing.T) {
	tests := []struct {
		name    string
		agentic Set
		user    Set
		want    []Expr
	}{
		{
			name:    "map_then_list",
			agentic: FromMap(NewMap(P("region", "us"))),
			user:    FromList([]Expr{EQ("year", 2024)}),
			want:    []Expr{EQ("region", "us"), EQ("year", 2024)},
		},
		{
			name:    "list_then_map",
			agentic: FromList([]Expr{GT("year", 2020)}),
			user:    FromMap(NewMap(P("region", "us"), P("quarter", "Q1"))),
			want:    []Expr{GT("year", 2020), EQ("region", "us"), EQ("quarter", "Q1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Set
			require.NotPanics(t, func() { got = Reconcile(tt.agentic, tt.user) })
			assert.Equal(t, KindList, got.Kind())
			assert.Equal(t, tt.want, got.Exprs())
		})
	}
}

func TestValidateThenReconcile_EndToEnd(t *testing.T) {
	valid := NewKeys("region", "quarter", "year")
	agentic := FromMap(NewMap(P("quarter", "Q1"), P("data_type", "sales")))
	user := FromList([]Expr{EQ("region", "north_america")})

	validAgentic, invalidAgentic := Validate(agentic, valid)
	assert.Equal(t, []Pair{P("quarter", "Q1")}, validAgentic.Map().Pairs())
	assert.Equal(t, []string{"data_type"}, invalidAgentic)

	validUser, invalidUser := Validate(user, valid)
	assert.Equal(t, user, validUser)
	assert.Empty(t, invalidUser)

	var merged Set
	require.NotPanics(t, func() { merged = Reconcile(validAgentic, validUser) })
	assert.Equal(t, []Expr{EQ("quarter", "Q1"), EQ("region", "north_america")}, merged.Exprs())
	assert.Equal(t, KindList, merged.Kind())
}

// ============================================================================
// SET
// ============================================================================

func TestSet_ZeroValueIsAbsent(t *testing.T) {
	var s Set
	assert.True(t, s.IsAbsent())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "<absent>", s.String())
}

func TestSet_EmptyListIsNotAbsent(t *testing.T) {
	s := FromList(nil)
	assert.False(t, s.IsAbsent())
	assert.Equal(t, KindList, s.Kind())
}

func TestSet_AsMap(t *testing.T) {
	m, ok := FromList([]Expr{EQ("a", 1), EQ("b", "x")}).AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	_, ok = FromList([]Expr{EQ("a", 1), GT("b", 2)}).AsMap()
	assert.False(t, ok)

	_, ok = FromList([]Expr{EQ("a", 1), EQ("a", 2)}).AsMap()
	assert.False(t, ok)
}

func TestSet_String(t *testing.T) {
	assert.Equal(t, `{region: "us", year: 2024}`, FromMap(NewMap(P("region", "us"), P("year", 2024))).String())
	assert.Equal(t, `[region == "us", year >= 2020]`, FromList([]Expr{EQ("region", "us"), GTE("year", 2020)}).String())
}

func TestSet_JSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		kind Kind
		keys []string
	}{
		{name: "null", json: `null`, kind: KindAbsent},
		{name: "object", json: `{"year":2024,"region":"us"}`, kind: KindMap, keys: []string{"year", "region"}},
		{name: "array", json: `[{"key":"region","op":"eq","value":"us"},{"key":"year","value":2024}]`, kind: KindList, keys: []string{"region", "year"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Set
			require.NoError(t, json.Unmarshal([]byte(tt.json), &s))
			assert.Equal(t, tt.kind, s.Kind())
			assert.Equal(t, tt.keys, s.Keys())

			out, err := json.Marshal(s)
			require.NoError(t, err)

			var again Set
			require.NoError(t, json.Unmarshal(out, &again))
			assert.Equal(t, s.Kind(), again.Kind())
			assert.Equal(t, s.Keys(), again.Keys())
		})
	}

	var s Set
	assert.Error(t, json.Unmarshal([]byte(`[{"key":"a","op":"between","value":1}]`), &s))
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestSet_JSONRejectsEntriesWithoutKey(t *testing.T) {
	for _, in := range []string{
		`[{"region":"us"}]`,
		`[{"key":"region","value":"us"},{"op":"eq","value":"x"}]`,
		`[{"key":"","value":"us"}]`,
	} {
		var s Set
		err := json.Unmarshal([]byte(in), &s)
		assert.Error(t, err, in)
		assert.True(t, s.IsAbsent(), in)
	}
}

// ============================================================================
// PARSE
// ============================================================================

func newCaptureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestParse_Shapes(t *testing.T) {
	log, _ := newCaptureLogger()

	set, dropped := Parse(nil, log)
	assert.True(t, set.IsAbsent())
	assert.Empty(t, dropped)

	set, dropped = Parse(map[string]any{"region": "us", "year": float64(2024)}, log)
	assert.Equal(t, KindMap, set.Kind())
	assert.Equal(t, []string{"region", "year"}, set.Keys())
	assert.Empty(t, dropped)

	set, dropped = Parse([]any{
		map[string]any{"key": "year", "op": ">=", "value": float64(2020)},
		map[string]any{"region": "us"},
		EQ("quarter", "Q1"),
	}, log)
	assert.Equal(t, KindList, set.Kind())
	assert.Equal(t, []Expr{GTE("year", float64(2020)), EQ("region", "us"), EQ("quarter", "Q1")}, set.Exprs())
	assert.Empty(t, dropped)
}

func TestParse_LonePredicateObjectIsAList(t *testing.T) {
	log, _ := newCaptureLogger()

	for _, raw := range []any{
		`{"key":"year","op":"gte","value":2024}`,
		map[string]any{"key": "year", "op": "gte", "value": 2024},
	} {
		set, dropped := Parse(raw, log)
		require.Equal(t, KindList, set.Kind(), "%v", raw)
		assert.Empty(t, dropped)
		exprs := set.Exprs()
		require.Len(t, exprs, 1)
		assert.Equal(t, "year", exprs[0].Key)
		assert.Equal(t, OpGte, exprs[0].Op)
	}

	// A mapping that merely has a "key" field stays a mapping.
	set, _ := Parse(map[string]any{"key": "abc", "region": "us"}, log)
	assert.Equal(t, KindMap, set.Kind())
	assert.Equal(t, []string{"key", "region"}, set.Keys())
}

func TestParse_JSONStringKeepsOrder(t *testing.T) {
	set, dropped := Parse(`{"year": 2024, "region": "us", "quarter": "Q1"}`, nil)
	require.Empty(t, dropped)
	assert.Equal(t, []string{"year", "region", "quarter"}, set.Keys())

	set, dropped = Parse(`[{"year": 2024, "region": "us"}]`, nil)
	require.Empty(t, dropped)
	assert.Equal(t, []string{"year", "region"}, set.Keys())
}

func TestParse_InOperatorWrapsScalar(t *testing.T) {
	set, dropped := Parse([]any{map[string]any{"key": "region", "op": "in", "value": "us"}}, nil)
	require.Empty(t, dropped)
	assert.Equal(t, []Expr{IN("region", "us")}, set.Exprs())
}

func TestParse_UnrecognizedEntriesAreDroppedAndLogged(t *testing.T) {
	log, buf := newCaptureLogger()

	set, dropped := Parse([]any{
		EQ("region", "us"),
		"just a string",
		float64(42),
		map[string]any{"key": "year", "op": "between", "value": float64(1)},
		map[string]any{"key": "year"},
		map[string]any{},
	}, log)

	assert.Equal(t, []Expr{EQ("region", "us")}, set.Exprs())
	require.Len(t, dropped, 5)
	assert.Equal(t, 1, dropped[0].Index)
	assert.Equal(t, "just a string", dropped[0].Entry)
	assert.Equal(t, 2, dropped[1].Index)
	assert.Equal(t, "year", dropped[2].Key)

	logs := buf.String()
	assert.Contains(t, logs, "level=WARN")
	assert.Contains(t, logs, "Dropping unrecognized filter entry")
	assert.Contains(t, logs, "just a string")
	assert.Contains(t, logs, "between")
}

func TestParse_MappingWithNestedValueDropsEntry(t *testing.T) {
	log, buf := newCaptureLogger()

	set, dropped := Parse(map[string]any{
		"region": "us",
		"year":   map[string]any{"$gte": float64(2020)},
	}, log)

	assert.Equal(t, KindMap, set.Kind())
	assert.Equal(t, []string{"region"}, set.Keys())
	require.Len(t, dropped, 1)
	assert.Equal(t, "year", dropped[0].Key)
	assert.Contains(t, buf.String(), "year")
}

func TestParse_UnsupportedInput(t *testing.T) {
	log, buf := newCaptureLogger()

	set, dropped := Parse(3.14, log)
	assert.True(t, set.IsAbsent())
	require.Len(t, dropped, 1)
	assert.Equal(t, -1, dropped[0].Index)
	assert.Contains(t, buf.String(), "unsupported filter type float64")

	set, dropped = Parse("not json", log)
	assert.True(t, set.IsAbsent())
	assert.Len(t, dropped, 1)
}

// ============================================================================
// MATCH
// ============================================================================

func TestMatch(t *testing.T) {
	meta := map[string]any{
		"region": "us",
		"year":   "2024",
		"score":  float64(0.8),
		"tags":   []any{"sales", "q1"},
		"active": "true",
	}

	tests := []struct {
		name string
		set  Set
		want bool
	}{
		{"absent", Absent(), true},
		{"eq_string", FromList([]Expr{EQ("region", "us")}), true},
		{"eq_number_vs_string", FromMap(NewMap(P("year", 2024))), true},
		{"eq_bool_vs_string", FromList([]Expr{EQ("active", true)}), true},
		{"ne", FromList([]Expr{NE("region", "eu")}), true},
		{"ne_missing_field", FromList([]Expr{NE("missing", "x")}), true},
		{"eq_missing_field", FromList([]Expr{EQ("missing", "x")}), false},
		{"gt", FromList([]Expr{GT("year", 2023)}), true},
		{"gte_equal", FromList([]Expr{GTE("year", 2024)}), true},
		{"lt_fails", FromList([]Expr{LT("score", 0.5)}), false},
		{"lte", FromList([]Expr{LTE("score", 0.8)}), true},
		{"in", FromList([]Expr{IN("region", "eu", "us")}), true},
		{"in_miss", FromList([]Expr{IN("region", "eu", "apac")}), false},
		{"contains_list", FromList([]Expr{Contains("tags", "q1")}), true},
		{"contains_string", FromList([]Expr{Contains("region", "u")}), true},
		{"and", FromList([]Expr{EQ("region", "us"), EQ("year", 2023)}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.set, meta))
		})
	}
}

func TestParseOp(t *testing.T) {
	for in, want := range map[string]Op{
		"":         OpEq,
		"==":       OpEq,
		"$ne":      OpNe,
		">":        OpGt,
		"GTE":      OpGte,
		"<":        OpLt,
		"le":       OpLte,
		"$in":      OpIn,
		"CONTAINS": OpContains,
	} {
		got, ok := ParseOp(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseOp("between")
	assert.False(t, ok)
}
