package gqlrequest

import "context"

type contextKey int

const (
	analysisKey contextKey = iota
	execMetaKey
)

// ExecMeta describes the store action a GraphQL request was issued for.
type ExecMeta struct {
	Action string
	Entity string

	OperationName string
	OperationType string
	OperationHash string

	// SchemaFingerprint identifies the introspection result the document
	// was built against.
	SchemaFingerprint string
}

// WithAnalysis attaches the analysis of the document about to be sent.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return context.WithValue(ctx, analysisKey, analysis)
}

// AnalysisFromContext returns the attached analysis, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	analysis, _ := ctx.Value(analysisKey).(*Analysis)
	return analysis
}

// WithExecMeta attaches execution metadata.
func WithExecMeta(ctx context.Context, meta ExecMeta) context.Context {
	return context.WithValue(ctx, execMetaKey, meta)
}

// ExecMetaFromContext returns the attached execution metadata.
func ExecMetaFromContext(ctx context.Context) (ExecMeta, bool) {
	meta, ok := ctx.Value(execMetaKey).(ExecMeta)
	return meta, ok
}
