package apperror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/replicore/permcore/internal/platform/apperror"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         apperror.ErrorCode
		businessCode apperror.BusinessCode
		message      string
		httpStatus   int
	}{
		{
			name:         "creates error with all fields",
			code:         apperror.CodeDenied,
			businessCode: apperror.BusinessCodePermissionDenied,
			message:      "permissions: user does not have permission to UPDATE \"public\".\"issues\"",
			httpStatus:   http.StatusForbidden,
		},
		{
			name:         "creates evaluation error",
			code:         apperror.CodeEvaluationFailed,
			businessCode: apperror.BusinessCodeCheckEvaluationFailed,
			message:      "check evaluation failed",
			httpStatus:   http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apperror.New(tt.code, tt.businessCode, tt.message, tt.httpStatus)

			if err.Code != tt.code {
				t.Errorf("expected code %v, got %v", tt.code, err.Code)
			}
			if err.BusinessCode != tt.businessCode {
				t.Errorf("expected business code %v, got %v", tt.businessCode, err.BusinessCode)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %v, got %v", tt.message, err.Message)
			}
			if err.HTTPStatus != tt.httpStatus {
				t.Errorf("expected HTTP status %v, got %v", tt.httpStatus, err.HTTPStatus)
			}
			if err.Inner != nil {
				t.Errorf("expected no inner error, got %v", err.Inner)
			}
			if err.Details != nil {
				t.Errorf("expected no details, got %v", err.Details)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	innerErr := errors.New("column amount missing from record")

	err := apperror.Wrap(
		innerErr,
		apperror.CodeEvaluationFailed,
		apperror.BusinessCodeCheckEvaluationFailed,
		"failed to evaluate CHECK expression",
		http.StatusUnprocessableEntity,
	)

	if err.Inner != innerErr {
		t.Errorf("expected inner error %v, got %v", innerErr, err.Inner)
	}
	if err.Code != apperror.CodeEvaluationFailed {
		t.Errorf("expected code %v, got %v", apperror.CodeEvaluationFailed, err.Code)
	}
	if err.BusinessCode != apperror.BusinessCodeCheckEvaluationFailed {
		t.Errorf("expected business code %v, got %v", apperror.BusinessCodeCheckEvaluationFailed, err.BusinessCode)
	}
}

func TestWithDetails(t *testing.T) {
	tests := []struct {
		name    string
		details any
	}{
		{
			name:    "string details",
			details: "additional context",
		},
		{
			name:    "map details",
			details: map[string]string{"relation": "issues", "privilege": "UPDATE"},
		},
		{
			name:    "struct details",
			details: struct{ Relation string }{Relation: "issues"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apperror.New(
				apperror.CodeInvalidRules,
				apperror.BusinessCodeStaleAssign,
				"rules rejected",
				http.StatusBadRequest,
			)

			errWithDetails := err.WithDetails(tt.details)

			if errWithDetails.Details == nil {
				t.Errorf("expected details to be set, but was nil")
			}

			if errWithDetails != err {
				t.Errorf("WithDetails should return the same error instance")
			}
		})
	}
}

func TestError(t *testing.T) {
	message := "permissions: user does not have permission to INSERT INTO \"public\".\"projects\""
	err := apperror.New(
		apperror.CodeDenied,
		apperror.BusinessCodePermissionDenied,
		message,
		http.StatusForbidden,
	)

	if err.Error() != message {
		t.Errorf("expected Error() to return %q, got %q", message, err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	innerErr := errors.New("inner error")

	tests := []struct {
		name        string
		err         *apperror.AppError
		expectInner error
	}{
		{
			name: "wrapped error returns inner",
			err: apperror.Wrap(
				innerErr,
				apperror.CodeInternal,
				apperror.BusinessCodeGeneral,
				"wrapper",
				http.StatusInternalServerError,
			),
			expectInner: innerErr,
		},
		{
			name: "new error returns nil",
			err: apperror.New(
				apperror.CodeDenied,
				apperror.BusinessCodePermissionDenied,
				"denied",
				http.StatusForbidden,
			),
			expectInner: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unwrapped := tt.err.Unwrap()
			if unwrapped != tt.expectInner {
				t.Errorf("expected Unwrap() to return %v, got %v", tt.expectInner, unwrapped)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err1 := apperror.New(
		apperror.CodeDenied,
		apperror.BusinessCodePermissionDenied,
		"user does not have permission",
		http.StatusForbidden,
	)

	err2 := apperror.New(
		apperror.CodeDenied,
		apperror.BusinessCodePermissionDenied,
		"different message",
		http.StatusForbidden,
	)

	err3 := apperror.New(
		apperror.CodeDenied,
		apperror.BusinessCodeStaleAssign, // Different business code
		"stale assign",
		http.StatusForbidden,
	)

	err4 := apperror.New(
		apperror.CodeEvaluationFailed, // Different error code
		apperror.BusinessCodePermissionDenied,
		"evaluation failed",
		http.StatusUnprocessableEntity,
	)

	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error codes match",
			err:    err1,
			target: err2,
			want:   true,
		},
		{
			name:   "different business code doesn't match",
			err:    err1,
			target: err3,
			want:   false,
		},
		{
			name:   "different error code doesn't match",
			err:    err1,
			target: err4,
			want:   false,
		},
		{
			name:   "non-AppError doesn't match",
			err:    err1,
			target: errors.New("regular error"),
			want:   false,
		},
		{
			name:   "errors.Is works with AppError",
			err:    err1,
			target: err1,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	innerErr := errors.New("column amount missing")
	details := map[string]string{"relation": "issues"}

	err := apperror.Wrap(
		innerErr,
		apperror.CodeEvaluationFailed,
		apperror.BusinessCodeCheckEvaluationFailed,
		"check evaluation failed",
		http.StatusUnprocessableEntity,
	).WithDetails(details)

	tests := []struct {
		name     string
		format   string
		contains []string
	}{
		{
			name:   "simple string format",
			format: "%s",
			contains: []string{
				"check evaluation failed",
			},
		},
		{
			name:   "simple value format",
			format: "%v",
			contains: []string{
				"check evaluation failed",
			},
		},
		{
			name:   "verbose format includes all fields",
			format: "%+v",
			contains: []string{
				"Code: EVALUATION_FAILED",
				"BusinessCode: CHECK_EVALUATION_FAILED",
				"Message: check evaluation failed",
				"HTTPStatus: 422",
				"Caused by: column amount missing",
				"Details: map[relation:issues]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := fmt.Sprintf(tt.format, err)

			for _, expected := range tt.contains {
				if !contains(output, expected) {
					t.Errorf("expected output to contain %q, got %q", expected, output)
				}
			}
		})
	}
}

func TestFormat_NoInnerError(t *testing.T) {
	err := apperror.New(
		apperror.CodeDenied,
		apperror.BusinessCodePermissionDenied,
		"denied",
		http.StatusForbidden,
	)

	output := fmt.Sprintf("%+v", err)

	if contains(output, "Caused by:") {
		t.Errorf("should not contain 'Caused by:' when there's no inner error, got %q", output)
	}
}

func TestFormat_NoDetails(t *testing.T) {
	err := apperror.New(
		apperror.CodeDenied,
		apperror.BusinessCodePermissionDenied,
		"denied",
		http.StatusForbidden,
	)

	output := fmt.Sprintf("%+v", err)

	if contains(output, "Details:") {
		t.Errorf("should not contain 'Details:' when there are no details, got %q", output)
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
