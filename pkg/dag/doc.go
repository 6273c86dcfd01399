// Package dag models the task dependency graph for one batch run.
//
// # Overview
//
// Each node is an executable task. A node may only run after every one of
// its dependencies has completed successfully. The graph is built once from
// an ordered [Spec] and then mutated only through the state transitions the
// scheduler performs:
//
//	Pending → Ready → Running → Completed
//	                          ↘ Failed
//
// # Basic Usage
//
//	g, err := dag.New(dag.Spec{
//	    {ID: "extract.py"},
//	    {ID: "transform.py", Dependencies: []string{"extract.py"}},
//	    {ID: "load.py", Dependencies: []string{"transform.py"}, Timeout: time.Minute},
//	})
//	ready := g.InitialReady()        // ["extract.py"]
//	_ = g.Start("extract.py")
//	next, _ := g.Complete("extract.py") // ["transform.py"]
//
// # Ordering
//
// Declaration order in the [Spec] is significant. [Graph.InitialReady] and
// every dependents list preserve it, so a scheduler that appends newly ready
// nodes to a FIFO queue launches siblings in the order they were declared.
//
// # Validation
//
// [New] rejects duplicate IDs and dependencies on undeclared IDs with a
// CONFIG_ERROR. Cycles are not rejected at construction: the nodes on a cycle
// simply never become ready. [Graph.FindCycle] reports one such cycle for
// diagnostics.
//
// # Concurrency
//
// Graph instances are not safe for concurrent use. The scheduler owns the
// graph for the duration of a run and is its only mutator.
package dag
