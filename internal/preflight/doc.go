// Package preflight provides readiness checks for the directories, queue
// store, and producer endpoints FileDrop depends on.
//
// The "filedrop doctor" command runs them before a deployment goes live:
// RunProducer covers what "serve" needs and RunCollector covers what
// "collect" needs. Checks never modify state beyond opening and closing the
// queue store.
package preflight
