// Package rule hooks dataset declarations into Go tests.
//
// Run applies setup declarations before the test body and registers the
// expectation check, teardown and connection close with t.Cleanup, so they
// run however the test ends.
package rule
