package permissions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_Can(t *testing.T) {
	eval := NewEvaluator(16)

	tests := []struct {
		name   string
		grants Grants
		perm   string
		value  Value
		want   bool
	}{
		{"missing grant", Grants{}, "p", NoValue, false},
		{"false grant", Grants{"p": BoolGrant(false)}, "p", NoValue, false},
		{"false grant with value", Grants{"p": BoolGrant(false)}, "p", StringValue("x"), false},
		{"true grant", Grants{"p": BoolGrant(true)}, "p", NoValue, true},
		{"true grant is value independent", Grants{"p": BoolGrant(true)}, "p", StringValue("anything"), true},
		{"array grant without value", Grants{"p": PatternGrant("a/*")}, "p", NoValue, true},
		{"empty array grant without value", Grants{"p": PatternGrant()}, "p", NoValue, true},
		{"empty array grant with value", Grants{"p": PatternGrant()}, "p", StringValue("a"), false},
		{"wildcard match", Grants{"p": PatternGrant("a/*")}, "p", StringValue("a/b"), true},
		{"wildcard mismatch", Grants{"p": PatternGrant("a/*")}, "p", StringValue("c/b"), false},
		{"case insensitive", Grants{"p": PatternGrant("A/*")}, "p", StringValue("a/b"), true},
		{"anchored start", Grants{"p": PatternGrant("a/*")}, "p", StringValue("xa/b"), false},
		{"anchored end", Grants{"p": PatternGrant("*/b")}, "p", StringValue("a/bc"), false},
		{"exact literal", Grants{"p": PatternGrant("app.example")}, "p", StringValue("app.example"), true},
		{"dot is literal", Grants{"p": PatternGrant("app.example")}, "p", StringValue("appXexample"), false},
		{"second pattern matches", Grants{"p": PatternGrant("x/*", "charlie/*")}, "p", StringValue("charlie/1"), true},
		{"lone star", Grants{"p": PatternGrant("*")}, "p", StringValue("anything/at/all"), true},
		{"superuser bypass", Grants{Superuser: BoolGrant(true)}, "modify users", NoValue, true},
		{"superuser bypass with value", Grants{Superuser: BoolGrant(true)}, "access app", StringValue("x"), true},
		{"superuser false", Grants{Superuser: BoolGrant(false)}, "modify users", NoValue, false},
		{"superuser as array does not bypass", Grants{Superuser: PatternGrant("*")}, "modify users", NoValue, false},
		{"other permission", Grants{"q": BoolGrant(true)}, "p", NoValue, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval.Can(tt.grants, tt.perm, tt.value))
		})
	}
}

func TestEvaluator_AccessApp(t *testing.T) {
	eval := NewEvaluator(0)
	grants := Grants{AccessApp: PatternGrant("charlie/*")}

	assert.True(t, eval.Can(grants, AccessApp, StringValue("charlie/foo")))
	assert.False(t, eval.Can(grants, AccessApp, StringValue("marak/foo")))
}

func TestEvaluator_CachesPatterns(t *testing.T) {
	eval := NewEvaluator(4)
	grants := Grants{"p": PatternGrant("a/*")}

	assert.True(t, eval.Can(grants, "p", StringValue("a/1")))
	assert.Equal(t, 1, eval.patterns.Len())
	assert.True(t, eval.Can(grants, "p", StringValue("a/2")))
	assert.Equal(t, 1, eval.patterns.Len())
}

func TestGrant_JSON(t *testing.T) {
	grants := Grants{
		"modify users": BoolGrant(true),
		"access app":   PatternGrant("charlie/*"),
		"empty":        PatternGrant(),
	}

	data, err := json.Marshal(grants)
	require.NoError(t, err)
	assert.JSONEq(t, `{"modify users":true,"access app":["charlie/*"],"empty":[]}`, string(data))

	var decoded Grants
	require.NoError(t, json.Unmarshal([]byte(`{"a":true,"b":false,"c":["x/*"],"d":null}`), &decoded))
	assert.Equal(t, BoolGrant(true), decoded["a"])
	assert.False(t, decoded["b"].Truthy())
	assert.True(t, decoded["c"].IsArray())
	assert.Equal(t, []string{"x/*"}, decoded["c"].Patterns())
	assert.False(t, decoded["d"].Truthy())

	assert.Error(t, json.Unmarshal([]byte(`{"a":"yes"}`), &decoded))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     string
		want    Value
		wantErr bool
	}{
		{"", NoValue, false},
		{"null", NoValue, false},
		{"true", BoolValue(true), false},
		{"false", BoolValue(false), false},
		{`"charlie/*"`, StringValue("charlie/*"), false},
		{`""`, NoValue, false},
		{"12", NoValue, true},
		{`{"a":1}`, NoValue, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseValue(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
