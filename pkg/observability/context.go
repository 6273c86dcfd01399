package observability

import "context"

type nodeKey struct{}

type nodeRef struct {
	runID string
	node  string
}

// WithNode returns a context tagged with the run and node being worked on.
// The scheduler tags the context it hands to resource gates so that wait
// events can be attributed to the node they delay.
func WithNode(ctx context.Context, runID, node string) context.Context {
	return context.WithValue(ctx, nodeKey{}, nodeRef{runID: runID, node: node})
}

// NodeFromContext returns the run and node set by [WithNode].
func NodeFromContext(ctx context.Context) (runID, node string, ok bool) {
	ref, ok := ctx.Value(nodeKey{}).(nodeRef)
	return ref.runID, ref.node, ok
}
