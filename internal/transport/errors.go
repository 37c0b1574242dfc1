package transport

import (
	"fmt"
	"strings"
)

// HTTPStatusError reports a non-2xx response from the GraphQL endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("graphql endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("graphql endpoint returned status %d: %s", e.StatusCode, body)
}

// GraphQLError is one entry of the errors array of a response.
type GraphQLError struct {
	Message string
	Path    []any
}

// GraphQLErrors is returned when a response carries errors, even if it also
// has partial data.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, gqlErr := range e {
		if len(gqlErr.Path) > 0 {
			messages = append(messages, fmt.Sprintf("%s (path %v)", gqlErr.Message, gqlErr.Path))
			continue
		}
		messages = append(messages, gqlErr.Message)
	}
	return "graphql: " + strings.Join(messages, "; ")
}
