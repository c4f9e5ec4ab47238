// Package workflow assembles the result of one query.
//
// The supervisor and its branches report agent runs and tool audits to a
// Recorder while the workflow executes. Aggregate turns them into a Result
// whose trace is ordered by round and declared index and whose agent
// references have all passed through the mask package.
package workflow
