package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"gqlorm/internal/model"
	"gqlorm/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Endpoint.validate(result)
	c.Schema.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)
	validateModels(result, c.Models)

	return result
}

func (e *EndpointConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(e.URL) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "endpoint.url",
			Message: "endpoint URL is required",
			Hint:    "set endpoint.url or GQLORM_ENDPOINT_URL",
		})
	} else if parsed, err := url.Parse(e.URL); err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "endpoint.url",
			Message: fmt.Sprintf("invalid endpoint URL %q", e.URL),
			Hint:    "use an absolute http:// or https:// URL",
		})
	} else if parsed.Scheme == "http" && e.AuthToken != "" && !isLoopback(parsed.Hostname()) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "endpoint.url",
			Message: "auth token is sent over plain http",
			Hint:    "use https:// for remote endpoints",
		})
	}

	if e.Timeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "endpoint.timeout",
			Message: "timeout cannot be negative",
		})
	}
	if e.CacheSize < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "endpoint.cache_size",
			Message: "cache_size cannot be negative",
		})
	}
	if !e.CacheEnabled && e.CacheSize > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "endpoint.cache_size",
			Message: "cache size is set but caching is disabled",
			Hint:    "enable endpoint.cache_enabled to cache query responses",
		})
	}

	for name := range e.Headers {
		if strings.EqualFold(name, "Authorization") && e.AuthToken != "" {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "endpoint.headers",
				Message: "Authorization header is overridden by the configured auth token",
			})
		}
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	if _, err := s.Mode(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "schema.connection_mode",
			Message: err.Error(),
			Hint:    "valid values are: auto, nodes, edges, plain",
		})
	}
	if s.RefreshMinInterval < 0 || s.RefreshMaxInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "schema.refresh_min_interval",
			Message: "refresh intervals cannot be negative",
		})
	}
	if s.RefreshMaxInterval > 0 && s.RefreshMaxInterval < s.RefreshMinInterval {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "schema.refresh_max_interval",
			Message: "refresh_max_interval is lower than refresh_min_interval",
			Hint:    "the minimum interval is used for both",
		})
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	check := func(field string, overrides map[string]string) {
		for from, to := range overrides {
			if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("override %q -> %q cannot have an empty side", from, to),
				})
			}
		}
	}
	check("naming.plural_overrides", cfg.PluralOverrides)
	check("naming.singular_overrides", cfg.SingularOverrides)
}

func validateModels(result *ValidationResult, decls []model.Declaration) {
	if len(decls) == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "models",
			Message: "no models declared",
			Hint:    "declare entities under models to fetch and persist them",
		})
		return
	}

	entities := make(map[string]bool, len(decls))
	for i, decl := range decls {
		prefix := fmt.Sprintf("models[%d]", i)
		entity := strings.TrimSpace(decl.Entity)
		if entity == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".entity",
				Message: "entity name is required",
			})
			continue
		}
		if entities[entity] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".entity",
				Message: fmt.Sprintf("entity %q is declared twice", entity),
			})
		}
		entities[entity] = true

		fields := make(map[string]bool, len(decl.Fields))
		for j, field := range decl.Fields {
			fieldPrefix := fmt.Sprintf("%s.fields[%d]", prefix, j)
			if strings.TrimSpace(field.Name) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   fieldPrefix + ".name",
					Message: "field name is required",
				})
				continue
			}
			if fields[field.Name] {
				result.Errors = append(result.Errors, ValidationError{
					Field:   fieldPrefix + ".name",
					Message: fmt.Sprintf("field %q is declared twice on %q", field.Name, entity),
				})
			}
			fields[field.Name] = true

			descriptor, err := field.Descriptor()
			if err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   fieldPrefix + ".type",
					Message: err.Error(),
				})
				continue
			}
			if descriptor.IsRelation() && descriptor.Related == "" {
				result.Warnings = append(result.Warnings, ValidationWarning{
					Field:   fieldPrefix + ".related",
					Message: fmt.Sprintf("relation %q has no related entity", field.Name),
					Hint:    "the field name is used as the related entity",
				})
			}
			if descriptor.Kind == model.KindBelongsTo && descriptor.ForeignKey == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   fieldPrefix + ".foreign_key",
					Message: fmt.Sprintf("belongs_to relation %q needs a foreign key", field.Name),
				})
			}
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	// Log level validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	// Log format validation
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio),
		})
	}

	if o.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(o.MetricsListen); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "observability.metrics_listen",
				Message: fmt.Sprintf("invalid listen address %q", o.MetricsListen),
				Hint:    "use host:port or :port",
			})
		}
		if !o.MetricsEnabled {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "observability.metrics_listen",
				Message: "metrics listener configured but metrics are disabled",
			})
		}
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
