//go:build !poolsafety

package pool

// Without the poolsafety build tag, debugAssert is a no-op: the free path
// must always succeed, so production builds silently ignore
// inconsistencies that the poolsafety build would have caught in testing.
func debugAssert(cond bool, msg string) {}

const debugAssertsEnabled = false
