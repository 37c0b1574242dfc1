package gqlrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"gqlorm/internal/record"
)

// Envelope is the JSON body of a GraphQL-over-HTTP request.
type Envelope struct {
	Query         string
	OperationName string
	Variables     *record.Record
}

// Encode renders the envelope with variables in insertion order. Empty
// operation names and variable sets are left out.
func (e Envelope) Encode() ([]byte, error) {
	body := record.New()
	body.Set("query", e.Query)
	if e.OperationName != "" {
		body.Set("operationName", e.OperationName)
	}
	if e.Variables != nil && e.Variables.Len() > 0 {
		body.Set("variables", e.Variables)
	}
	return json.Marshal(body)
}

// DocumentSizeBytes is the length of the query text.
func (e Envelope) DocumentSizeBytes() int { return len(e.Query) }

// DecodeEnvelope reads a GraphQL payload back out of an HTTP request and
// rewinds the body so the next handler can read it again.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("request is nil")
	}

	var env Envelope
	if r.Method == http.MethodGet {
		env.Query = r.URL.Query().Get("query")
		env.OperationName = r.URL.Query().Get("operationName")
		return env, nil
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return env, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return env, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	contentType := r.Header.Get("Content-Type")
	mediaType, _, parseErr := mime.ParseMediaType(contentType)
	if parseErr != nil || mediaType == "" {
		mediaType = strings.TrimSpace(contentType)
	}
	if mediaType == "application/graphql" {
		env.Query = string(body)
		return env, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return env, nil
	}
	payload, err := record.DecodeObject(trimmed)
	if err != nil {
		return env, err
	}
	env.Query, _ = payload.Value("query").(string)
	env.OperationName, _ = payload.Value("operationName").(string)
	env.Variables, _ = record.AsRecord(payload.Value("variables"))
	return env, nil
}
