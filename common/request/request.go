package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/SUF145/call-geo/common/response"
	"github.com/go-playground/validator/v10"
)

const maxBodySize = 1048576 // 1MB

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadJSON decodes a single JSON value from the request body.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return decode(r.Body, dst, true)
}

// ReadAndValidate reads JSON and validates it using struct tags
func ReadAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := ReadJSON(w, r, dst); err != nil {
		return err
	}
	return Validate(dst)
}

// DecodeAndValidate is ReadAndValidate for payloads that did not arrive over
// HTTP (bridge arguments, broker messages). Unknown fields are tolerated.
func DecodeAndValidate(data []byte, dst interface{}) error {
	if err := decode(bytes.NewReader(data), dst, false); err != nil {
		return err
	}
	return Validate(dst)
}

func decode(body io.Reader, dst interface{}, strict bool) error {
	decoder := json.NewDecoder(body)
	if strict {
		decoder.DisallowUnknownFields()
	}

	if err := decoder.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return errors.New("malformed JSON")
		case errors.As(err, &unmarshalTypeError):
			return errors.New("invalid JSON type for field " + unmarshalTypeError.Field)
		case errors.As(err, &maxBytesError):
			return errors.New("request body too large")
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("malformed JSON")
		default:
			return err
		}
	}

	if decoder.More() {
		return errors.New("body must contain only a single JSON value")
	}
	return nil
}

// Validate validates a struct (or slice of structs) using validation tags
func Validate(dst interface{}) error {
	var err error
	if v := reflect.Indirect(reflect.ValueOf(dst)); v.Kind() == reflect.Slice {
		err = validate.Var(v.Interface(), "dive")
	} else {
		err = validate.Struct(dst)
	}
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]response.ErrorDetail, 0, len(validationErrors))
		for _, fe := range validationErrors {
			details = append(details, response.ErrorDetail{
				Field:   fe.Field(),
				Message: validationMessage(fe),
				Code:    fe.Tag(),
			})
		}
		return &ValidationError{Details: details}
	}
	return err
}

// ValidationError represents validation errors
type ValidationError struct {
	Details []response.ErrorDetail
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Details[0].Field + ": " + e.Details[0].Message
}

// IsValidationError checks if error is a ValidationError and returns details
func IsValidationError(err error) ([]response.ErrorDetail, bool) {
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		return nil, false
	}
	return valErr.Details, true
}

// HandleError writes the matching error response and reports whether err was non-nil.
func HandleError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if details, ok := IsValidationError(err); ok {
		response.ValidationError(w, details)
		return true
	}
	response.BadRequest(w, err.Error())
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "required_if":
		return "This field is required when " + fe.Param()
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gte":
		return "Value must be greater than or equal to " + fe.Param()
	case "lte":
		return "Value must be less than or equal to " + fe.Param()
	case "oneof":
		return "Value must be one of " + fe.Param()
	default:
		return "Invalid value"
	}
}
