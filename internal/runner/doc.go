// Package runner orchestrates dataset setup, expectation checks and teardown
// around one test invocation.
//
// An invocation runs in four phases:
//
//  1. BeforeTest applies each setup group, suite level first.
//  2. The test body runs. Its failure is recorded on the Context.
//  3. AfterTest verifies expectations (skipped after a failure) and applies
//     each teardown group.
//  4. The connections of the invocation are closed, whatever happened.
//
// Connections are resolved lazily through a ConnectionSource so that a test
// without declarations never opens a database.
package runner
