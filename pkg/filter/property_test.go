package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var keyPool = []string{"region", "quarter", "year", "data_type", "author", "team", "status"}

func genKey() *rapid.Generator[string] {
	return rapid.SampledFrom(keyPool)
}

func genValue() *rapid.Generator[any] {
	return rapid.OneOf(
		rapid.Map(rapid.StringMatching(`[a-z]{1,6}`), func(s string) any { return s }),
		rapid.Map(rapid.IntRange(0, 3000), func(i int) any { return i }),
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
	)
}

func genExpr() *rapid.Generator[Expr] {
	return rapid.Custom(func(t *rapid.T) Expr {
		op := rapid.SampledFrom([]Op{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte}).Draw(t, "op")
		return Expr{Key: genKey().Draw(t, "key"), Op: op, Value: genValue().Draw(t, "value")}
	})
}

func genMap() *rapid.Generator[*Map] {
	return rapid.Custom(func(t *rapid.T) *Map {
		keys := rapid.SliceOfDistinct(genKey(), func(k string) string { return k }).Draw(t, "keys")
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			pairs[i] = P(k, genValue().Draw(t, "value"))
		}
		return NewMap(pairs...)
	})
}

func genValidKeys() *rapid.Generator[Keys] {
	return rapid.Map(rapid.SliceOf(genKey()), func(names []string) Keys { return NewKeys(names...) })
}

func genSet() *rapid.Generator[Set] {
	return rapid.OneOf(
		rapid.Just(Absent()),
		rapid.Map(genMap(), FromMap),
		rapid.Map(rapid.SliceOf(genExpr()), FromList),
	)
}

func TestProperty_ValidateMap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := genMap().Draw(t, "filters")
		valid := genValidKeys().Draw(t, "valid")

		got, invalid := Validate(FromMap(m), valid)

		require.Equal(t, KindMap, got.Kind())
		var wantKept, wantInvalid []string
		for _, k := range m.Keys() {
			if valid.Has(k) {
				wantKept = append(wantKept, k)
			} else {
				wantInvalid = append(wantInvalid, k)
			}
		}
		assert.ElementsMatch(t, wantKept, got.Keys())
		assert.Equal(t, len(wantKept), got.Len())
		assert.ElementsMatch(t, wantInvalid, invalid)
	})
}

func TestProperty_ValidateListKeepsRelativeOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		exprs := rapid.SliceOf(genExpr()).Draw(t, "filters")
		valid := genValidKeys().Draw(t, "valid")

		got, _ := Validate(FromList(exprs), valid)

		require.Equal(t, KindList, got.Kind())
		want := []Expr{}
		for _, e := range exprs {
			if valid.Has(e.Key) {
				want = append(want, e)
			}
		}
		assert.Equal(t, want, got.Exprs())
	})
}

func TestProperty_ValidateNeverReturnsUnfilteredInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := genSet().Draw(t, "filters")
		valid := genValidKeys().Draw(t, "valid")

		got, invalid := Validate(in, valid)

		assert.Equal(t, in.Kind(), got.Kind())
		if len(invalid) > 0 {
			assert.Less(t, got.Len(), in.Len())
			for _, k := range got.Keys() {
				assert.True(t, valid.Has(k), "key %q survived validation", k)
			}
		}
	})
}

func TestProperty_ReconcileAbsentIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := genSet().Draw(t, "x")
		assert.Equal(t, x, Reconcile(Absent(), x))
		assert.Equal(t, x, Reconcile(x, Absent()))
	})
}

func TestProperty_ReconcileMapUserPrecedence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agentic := genMap().Draw(t, "agentic")
		user := genMap().Draw(t, "user")

		got := Reconcile(FromMap(agentic), FromMap(user))

		require.Equal(t, KindMap, got.Kind())
		merged := got.Map()
		for _, p := range user.Pairs() {
			v, ok := merged.Get(p.Key)
			require.True(t, ok)
			assert.Equal(t, p.Value, v)
		}
		for _, p := range agentic.Pairs() {
			if _, inUser := user.Get(p.Key); inUser {
				continue
			}
			v, ok := merged.Get(p.Key)
			require.True(t, ok)
			assert.Equal(t, p.Value, v)
		}
	})
}

func TestProperty_ReconcileListConcatenates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agentic := rapid.SliceOf(genExpr()).Draw(t, "agentic")
		user := rapid.SliceOf(genExpr()).Draw(t, "user")

		got := Reconcile(FromList(agentic), FromList(user))

		want := append(append([]Expr{}, agentic...), user...)
		assert.Equal(t, want, got.Exprs())
	})
}

func TestProperty_ReconcileShapeConflictNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := genMap().Draw(t, "map")
		l := rapid.SliceOf(genExpr()).Draw(t, "list")

		for _, pair := range [][2]Set{{FromMap(m), FromList(l)}, {FromList(l), FromMap(m)}} {
			var got Set
			require.NotPanics(t, func() { got = Reconcile(pair[0], pair[1]) })
			assert.Equal(t, KindList, got.Kind())
			want := append(pair[0].Exprs(), pair[1].Exprs()...)
			assert.Equal(t, want, got.Exprs())
		}
	})
}
