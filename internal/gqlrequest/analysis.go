package gqlrequest

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/source"
)

const anonymousOperationName = "<anonymous>"

// Analysis stages reported by AnalysisError.
const (
	StageParse        = "parse"
	StageSelect       = "select"
	StageCanonicalize = "canonicalize"
)

// AnalysisError reports the stage at which a document could not be analyzed.
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("graphql document %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Analysis describes one outgoing GraphQL document: the operation it runs,
// its size and the canonical hash used for cache keys and telemetry.
type Analysis struct {
	Envelope Envelope

	Document  *ast.Document
	Operation *ast.OperationDefinition

	OperationName string
	OperationType string

	FieldCount     int
	SelectionDepth int
	VariableCount  int
	// FragmentNames lists the fragments the operation reaches, sorted.
	FragmentNames []string

	CanonicalOperation string
	OperationHash      string

	err *AnalysisError
}

// Err returns the analysis failure, or nil.
func (a *Analysis) Err() error {
	if a == nil || a.err == nil {
		return nil
	}
	return a.err
}

func (a *Analysis) fail(stage string, err error) *Analysis {
	a.err = &AnalysisError{Stage: stage, Err: err}
	return a
}

// Parse parses GraphQL document text.
func Parse(text string) (*ast.Document, error) {
	return parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(text),
			Name: "graphql",
		}),
	})
}

// AnalyzeText parses text and analyzes the operation named operationName.
// Blank text yields an empty analysis without error.
func AnalyzeText(text, operationName string) *Analysis {
	env := Envelope{Query: text, OperationName: operationName}
	if strings.TrimSpace(text) == "" {
		return &Analysis{Envelope: env}
	}
	doc, err := Parse(text)
	if err != nil {
		return (&Analysis{Envelope: env}).fail(StageParse, err)
	}
	analysis := AnalyzeDocument(doc, operationName)
	analysis.Envelope = env
	return analysis
}

// AnalyzeDocument analyzes an already parsed document. operationName picks
// the operation when the document holds several.
func AnalyzeDocument(doc *ast.Document, operationName string) *Analysis {
	analysis := &Analysis{
		Envelope: Envelope{OperationName: operationName},
		Document: doc,
	}

	op, err := selectOperation(doc, operationName)
	if err != nil {
		return analysis.fail(StageSelect, err)
	}
	analysis.Operation = op
	analysis.OperationName = effectiveOperationName(op)
	analysis.OperationType = string(op.Operation)
	analysis.VariableCount = len(op.VariableDefinitions)

	w := newWalker(doc)
	analysis.SelectionDepth = w.walk(op.SelectionSet, 1)
	analysis.FieldCount = w.fields
	analysis.FragmentNames = w.reachedFragments()

	canonical, err := w.canonical(op, analysis.FragmentNames)
	if err != nil {
		return analysis.fail(StageCanonicalize, err)
	}
	analysis.CanonicalOperation = canonical
	analysis.OperationHash = framedSHA256(canonical, analysis.OperationName)
	return analysis
}

func selectOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok && op != nil {
			if operationName != "" && op.Name != nil && op.Name.Value == operationName {
				return op, nil
			}
			operations = append(operations, op)
		}
	}

	switch {
	case operationName != "":
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	case len(operations) == 1:
		return operations[0], nil
	case len(operations) == 0:
		return nil, fmt.Errorf("document does not include an operation")
	default:
		return nil, fmt.Errorf("operation name is required when a document has %d operations", len(operations))
	}
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// printDefinitions renders definitions through the graphql-go printer, which drops
// comments and normalizes whitespace.
func printDefinitions(definitions []ast.Node) (string, error) {
	printed := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions}))
	text, ok := printed.(string)
	if !ok {
		return "", fmt.Errorf("unexpected printed document type %T", printed)
	}
	return text, nil
}
