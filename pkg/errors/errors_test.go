package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestMetadataForCheckoutCodes(t *testing.T) {
	conflicts := []Code{CodeOutOfStock, CodeInsufficientStock, CodeVariantUnavailable}
	for _, code := range conflicts {
		if got := MetadataFor(code).HTTPStatus; got != http.StatusConflict {
			t.Fatalf("code %s expected conflict status, got %d", code, got)
		}
	}

	validations := []Code{CodeInvalidQuantity, CodeEmptyCart, CodeCouponNotFound, CodeCouponRejected}
	for _, code := range validations {
		if got := MetadataFor(code).HTTPStatus; got != http.StatusBadRequest {
			t.Fatalf("code %s expected bad request status, got %d", code, got)
		}
	}

	if meta := MetadataFor(CodeGatewayUnavailable); !meta.Retryable || meta.HTTPStatus != http.StatusServiceUnavailable {
		t.Fatalf("gateway unavailable should be retryable 503, got %+v", meta)
	}
	if meta := MetadataFor(CodeGatewayRejected); meta.Retryable || meta.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("gateway rejected should be non-retryable 502, got %+v", meta)
	}
}

func TestHasCodeWalksWrappedChain(t *testing.T) {
	inner := New(CodeOutOfStock, "only 2 left")
	outer := Wrap(CodeConflict, inner, "checkout failed")
	if !HasCode(outer, CodeOutOfStock) || !HasCode(outer, CodeConflict) {
		t.Fatalf("expected both codes in chain")
	}
	if HasCode(outer, CodeNotFound) || HasCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("unexpected code match")
	}
	if got := outer.Error(); got != "CONFLICT: checkout failed: OUT_OF_STOCK: only 2 left" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestInternalCodesHideMessages(t *testing.T) {
	for _, code := range []Code{CodeInternal, CodeDependency, CodeGatewayUnavailable} {
		if MetadataFor(code).ExposeMessage {
			t.Fatalf("%s must not expose its internal message", code)
		}
	}
}
