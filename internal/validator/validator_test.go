package validator

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
)

type signalBody struct {
	Kind string `json:"kind" binding:"required,signal_kind"`
}

type optionBody struct {
	Option *int `json:"option"`
}

func TestStructUsesJSONNamesAndSignalKind(t *testing.T) {
	Setup()

	if errs := Struct(&signalBody{Kind: "tab_switch"}); errs != nil {
		t.Fatalf("valid kind rejected: %v", errs)
	}

	errs := Struct(&signalBody{Kind: "screenshot"})
	if msg, ok := errs["kind"]; !ok || !strings.Contains(msg, "known signal kind") {
		t.Fatalf("errors = %v, want a translated kind entry", errs)
	}
}

func TestTranslateDecoderErrors(t *testing.T) {
	var dst optionBody

	typeErr := json.Unmarshal([]byte(`{"option":"two"}`), &dst)
	if got := TranslateErrors(typeErr); got["option"] != "option must be a int" {
		t.Errorf("type error = %v", got)
	}

	syntaxErr := json.Unmarshal([]byte(`{"option":`), &dst)
	if got := TranslateErrors(syntaxErr); got["body"] != "body must be valid JSON" {
		t.Errorf("syntax error = %v", got)
	}

	if got := TranslateErrors(io.EOF); got["body"] != "body is required" {
		t.Errorf("empty body = %v", got)
	}
}
