// Package scope implements the dotted-identifier prefix matcher used by
// the alarm engine to target subsets of the field.
package scope

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const cacheSize = 256

var matchCache *lru.Cache[string, bool]

func init() {
	c, err := lru.New[string, bool](cacheSize)
	if err != nil {
		panic(err)
	}
	matchCache = c
}

// Matches reports whether scope covers target: every segment of scope
// equals the corresponding segment of target, and scope has no more
// segments than target. The empty scope covers every target.
func Matches(scope, target string) bool {
	key := scope + "\x00" + target
	if v, ok := matchCache.Get(key); ok {
		return v
	}
	v := matchesUncached(scope, target)
	matchCache.Add(key, v)
	return v
}

func matchesUncached(scope, target string) bool {
	if scope == "" {
		return true
	}
	scopeSegs := strings.Split(scope, ".")
	targetSegs := strings.Split(target, ".")
	if len(scopeSegs) > len(targetSegs) {
		return false
	}
	for i, s := range scopeSegs {
		if s != targetSegs[i] {
			return false
		}
	}
	return true
}
