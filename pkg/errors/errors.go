// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeGraphQueryUpstreamFailure Code = "kg.query.upstream.failure"
	CodeGraphQueryResponseInvalid Code = "kg.query.response.invalid"
	CodeGraphQueryTimeout         Code = "kg.query.timeout"
	CodeGraphRequestInvalid       Code = "kg.request.invalid"
	CodeGraphStoreDatabaseFailure Code = "kg.store.database.failure"
	CodeGraphBackendUnsupported   Code = "kg.backend.unsupported"
	CodeGraphCacheFailure         Code = "kg.cache.failure"
	CodeGraphLabelsInvalidFormat  Code = "kg.labels.parse.invalid_format"

	CodeScorerUpstreamFailure  Code = "scorer.score.upstream.failure"
	CodeScorerRequestInvalid   Code = "scorer.request.invalid"
	CodeScorerResponseInvalid  Code = "scorer.response.invalid"
	CodeScorerBackendUnsupport Code = "scorer.backend.unsupported"

	CodeRetrieverRequestInvalid  Code = "retriever.request.invalid"
	CodeRetrieverConfigInvalid   Code = "retriever.config.invalid"
	CodePathfinderRequestInvalid Code = "pathfinder.request.invalid"
	CodePathfinderConfigInvalid  Code = "pathfinder.config.invalid"
	CodeSupervisionInputInvalid  Code = "supervision.input.invalid"

	CodeDatasetRecordInvalid Code = "dataset.record.invalid"
	CodeDatasetIOFailure     Code = "dataset.io.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerConfigInvalid    Code = "server.config.invalid"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"
	CodeServerNotImplemented   Code = "server.method.not_implemented"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"

	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldSampleID(value string) Attr {
	return Field("sample_id", value)
}

func FieldEntity(value string) Attr {
	return Field("entity", value)
}

func FieldRelation(value string) Attr {
	return Field("relation", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// IsGraphQueryError reports whether err is a graph gateway failure: transport,
// timeout, or malformed response. These are recoverable per expansion.
func IsGraphQueryError(err error) bool {
	switch CodeOf(err) {
	case CodeGraphQueryUpstreamFailure, CodeGraphQueryResponseInvalid, CodeGraphQueryTimeout:
		return true
	}
	return false
}

// IsScorerError reports whether err came from a relevance scorer call.
func IsScorerError(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "scorer.")
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeServerNotImplemented):
		return http.StatusNotImplemented
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
