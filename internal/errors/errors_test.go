package errors

import (
	"fmt"
	"testing"
)

func TestAppErrorFormatsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := &AppError{Code: CodeSinkFailure, Message: "write failed", Cause: cause}

	if got := err.Error(); got != "write failed: disk full" {
		t.Errorf("Error() = %q", got)
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	bare := New(CodeInternal, "something broke")
	if got := bare.Error(); got != "something broke" {
		t.Errorf("Error() without cause = %q", got)
	}
	if bare.Unwrap() != nil {
		t.Error("Unwrap without cause should be nil")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	if Wrap(nil, "ignored") != nil {
		t.Fatal("wrapping nil should return nil")
	}

	coded := Integrity("Q-007", fmt.Errorf("hash mismatch"))
	wrapped := Wrap(coded, "pipeline failed")
	if GetCode(wrapped) != CodeIntegrity {
		t.Errorf("wrapped code = %s, want %s", GetCode(wrapped), CodeIntegrity)
	}

	plain := Wrap(fmt.Errorf("boom"), "pipeline failed")
	if GetCode(plain) != CodeInternal {
		t.Errorf("plain wrap code = %s, want %s", GetCode(plain), CodeInternal)
	}
}

func TestWrapfFormatsMessage(t *testing.T) {
	err := Wrapf(fmt.Errorf("no such file"), "loading signal packs from %s", "/tmp/packs")
	want := "loading signal packs from /tmp/packs: no such file"
	if err.Error() != want {
		t.Errorf("Wrapf = %q, want %q", err.Error(), want)
	}
}

func TestWithCode(t *testing.T) {
	if WithCode(CodeCardinality, nil) != nil {
		t.Fatal("recoding nil should return nil")
	}

	recoded := WithCode(CodeCardinality, fmt.Errorf("expected 5 children, got 4"))
	if GetCode(recoded) != CodeCardinality {
		t.Errorf("code = %s, want %s", GetCode(recoded), CodeCardinality)
	}

	again := WithCode(CodeSignalMissing, recoded)
	if GetCode(again) != CodeSignalMissing {
		t.Errorf("recoded code = %s, want %s", GetCode(again), CodeSignalMissing)
	}
	if again.Error() != recoded.Error() {
		t.Error("recoding an AppError should keep its message")
	}
}

func TestGetCodeUnknownForPlainErrors(t *testing.T) {
	if got := GetCode(fmt.Errorf("boom")); got != "UNKNOWN" {
		t.Errorf("GetCode = %q, want UNKNOWN", got)
	}
}

func TestConstructorCodes(t *testing.T) {
	cause := fmt.Errorf("boom")
	cases := []struct {
		name string
		err  *AppError
		code string
	}{
		{"config", ConfigInvalid("workers must be positive"), CodeConfigInvalid},
		{"contract load", ContractLoad("Q-001", cause), CodeContractLoad},
		{"integrity", Integrity("Q-001", cause), CodeIntegrity},
		{"method exec", MethodExec("Extractor.Extract", cause), CodeMethodExec},
		{"sink", SinkFailure("question", cause), CodeSinkFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("code = %s, want %s", tc.err.Code, tc.code)
			}
			if tc.err.Message == "" {
				t.Error("constructor should set a message")
			}
		})
	}
}
