package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webserv/webserv/config"
)

func srv(locs ...*config.Location) *config.Server {
	return &config.Server{Root: "/srv", Index: "index.html", Locations: locs}
}

func loc(pattern string, methods ...string) *config.Location {
	m := make(map[string]bool)
	for _, meth := range methods {
		m[meth] = true
	}
	return &config.Location{Pattern: pattern, Methods: m}
}

func TestResolvePrefixLongestWins(t *testing.T) {
	s := srv(loc("/", "GET"), loc("/images", "GET"))
	got := Resolve(s, "/images/cat.png", "GET")
	require.NotNil(t, got)
	assert.Equal(t, "/images", got.Pattern)
}

func TestResolveSuffixBeatsPrefixWhenBothAllow(t *testing.T) {
	s := srv(loc("/cgi", "GET"), loc("*.py", "GET"))
	got := Resolve(s, "/cgi/script.py", "GET")
	require.NotNil(t, got)
	assert.Equal(t, "*.py", got.Pattern)
}

func TestResolveFallsBackToPrefixWhenSuffixForbidsMethod(t *testing.T) {
	s := srv(loc("/cgi", "POST"), loc("*.py", "GET"))
	got := Resolve(s, "/cgi/script.py", "POST")
	require.NotNil(t, got)
	assert.Equal(t, "/cgi", got.Pattern)
}

func TestResolveSuffixWinsEvenWhenNeitherAllowsMethod(t *testing.T) {
	// spec.md §4.2 selection order: (iii) suffixMatch regardless beats
	// (iv) prefixMatch regardless. This is the idiosyncratic tie-break
	// spec.md §9 says must stay literal.
	s := srv(loc("/cgi", "GET"), loc("*.py", "POST"))
	got := Resolve(s, "/cgi/script.py", "DELETE")
	require.NotNil(t, got)
	assert.Equal(t, "*.py", got.Pattern)
}

func TestResolveNoMatch(t *testing.T) {
	s := srv(loc("/images", "GET"))
	got := Resolve(s, "/other", "GET")
	assert.Nil(t, got)
}

func TestResolveEmptyMethodSetRejectsEverything(t *testing.T) {
	s := srv(loc("/x"))
	got := Resolve(s, "/x/file", "GET")
	require.NotNil(t, got)
	assert.False(t, got.Allows("GET"))
}

func TestEffectiveRootOverride(t *testing.T) {
	s := srv()
	l := &config.Location{Root: "/override"}
	assert.Equal(t, "/override", EffectiveRoot(s, l))
	assert.Equal(t, "/srv", EffectiveRoot(s, nil))
}

func TestSelectServerByName(t *testing.T) {
	a := &config.Server{Name: "a.test"}
	b := &config.Server{Name: "b.test"}
	got := SelectServer([]*config.Server{a, b}, "b.test:8080")
	assert.Same(t, b, got)
}

func TestSelectServerDefaultsToFirst(t *testing.T) {
	a := &config.Server{Name: "a.test"}
	b := &config.Server{Name: "b.test"}
	got := SelectServer([]*config.Server{a, b}, "unknown.test")
	assert.Same(t, a, got)
}
