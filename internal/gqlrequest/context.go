package gqlrequest

import "context"

type analysisContextKey struct{}
type execMetaContextKey struct{}

// ExecMeta describes where a request executes.
type ExecMeta struct {
	// Databases is the path-selected database, or empty for all attached.
	Databases   []string
	Fingerprint string
}

// WithAnalysis stores request analysis in ctx.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return context.WithValue(ctx, analysisContextKey{}, analysis)
}

// AnalysisFromContext returns the analysis stored by WithAnalysis, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	analysis, _ := ctx.Value(analysisContextKey{}).(*Analysis)
	return analysis
}

// WithExecMeta stores execution metadata in ctx.
func WithExecMeta(ctx context.Context, meta ExecMeta) context.Context {
	return context.WithValue(ctx, execMetaContextKey{}, meta)
}

// ExecMetaFromContext returns the metadata stored by WithExecMeta.
func ExecMetaFromContext(ctx context.Context) (ExecMeta, bool) {
	meta, ok := ctx.Value(execMetaContextKey{}).(ExecMeta)
	return meta, ok
}
