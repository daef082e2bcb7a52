// Package bridge carries method calls between the reporting process and the
// application logic that runs in a separate execution context.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/SUF145/call-geo/common/request"
)

const (
	ChannelName = "com.example.call_geo/location_background"

	MethodLocationUpdate    = "onLocationUpdate"
	MethodShowGeofenceAlert = "showGeofenceAlert"
)

type MethodCall struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func NewMethodCall(method string, args interface{}) (MethodCall, error) {
	call := MethodCall{Method: method}
	if args == nil {
		return call, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return MethodCall{}, fmt.Errorf("failed to encode %s arguments: %w", method, err)
	}
	call.Arguments = raw
	return call, nil
}

// Decode unmarshals the call arguments into dst and validates its tags.
func (c MethodCall) Decode(dst interface{}) error {
	if len(c.Arguments) == 0 {
		return fmt.Errorf("%s: missing arguments", c.Method)
	}
	if err := request.DecodeAndValidate(c.Arguments, dst); err != nil {
		return fmt.Errorf("%s: %w", c.Method, err)
	}
	return nil
}

type ResultKind string

const (
	ResultSuccess        ResultKind = "success"
	ResultError          ResultKind = "error"
	ResultNotImplemented ResultKind = "notImplemented"
)

// Result answers an inbound MethodCall.
type Result struct {
	Kind    ResultKind  `json:"kind"`
	Value   interface{} `json:"value,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func Success(value interface{}) Result {
	return Result{Kind: ResultSuccess, Value: value}
}

func Error(code, message string, details interface{}) Result {
	return Result{Kind: ResultError, Code: code, Message: message, Details: details}
}

func NotImplemented() Result {
	return Result{Kind: ResultNotImplemented}
}
