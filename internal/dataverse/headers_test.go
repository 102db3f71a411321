package dataverse

import (
	"strings"
	"testing"

	"dvbox/internal/dverrors"
)

func TestValidateCustomHeaders(t *testing.T) {
	t.Run("empty is fine", func(t *testing.T) {
		if err := ValidateCustomHeaders(nil); err != nil {
			t.Errorf("nil headers rejected: %v", err)
		}
		if err := ValidateCustomHeaders(map[string]string{}); err != nil {
			t.Errorf("empty headers rejected: %v", err)
		}
	})

	t.Run("allow-list passes regardless of case", func(t *testing.T) {
		headers := map[string]string{
			"MSCRM.SolutionUniqueName": "crafted",
			"mscrm.mergelabels":        "true",
			"Consistency":              "Strong",
			"If-Match":                 "*",
			"IF-NONE-MATCH":            "*",
		}
		if err := ValidateCustomHeaders(headers); err != nil {
			t.Errorf("allow-listed headers rejected: %v", err)
		}
	})

	t.Run("protected header is named", func(t *testing.T) {
		err := ValidateCustomHeaders(map[string]string{"Authorization": "Bearer stolen"})
		if err == nil {
			t.Fatal("expected an error")
		}
		if !dverrors.IsKind(err, dverrors.KindHeaderValidation) {
			t.Errorf("kind = %v, want header-validation", dverrors.KindOf(err))
		}
		if !strings.Contains(err.Error(), "protected: Authorization") {
			t.Errorf("message = %q, want the protected header named", err.Error())
		}
	})

	t.Run("unknown header is named", func(t *testing.T) {
		err := ValidateCustomHeaders(map[string]string{"X-Custom-Trace": "1"})
		if err == nil {
			t.Fatal("expected an error")
		}
		if !strings.Contains(err.Error(), "not allowed: X-Custom-Trace") {
			t.Errorf("message = %q", err.Error())
		}
	})

	t.Run("all offenders in one error", func(t *testing.T) {
		err := ValidateCustomHeaders(map[string]string{
			"Prefer":  "odata.maxpagesize=2",
			"Accept":  "text/plain",
			"X-Debug": "1",
		})
		if err == nil {
			t.Fatal("expected an error")
		}
		msg := err.Error()
		for _, want := range []string{"protected: Accept, Prefer", "not allowed: X-Debug"} {
			if !strings.Contains(msg, want) {
				t.Errorf("message = %q, want %q in it", msg, want)
			}
		}
	})
}

func TestWriteOptionsHeaders(t *testing.T) {
	boolPtr := func(v bool) *bool { return &v }

	t.Run("nil options on update default MergeLabels", func(t *testing.T) {
		var opts *WriteOptions
		got, err := opts.headers(true)
		if err != nil {
			t.Fatalf("headers failed: %v", err)
		}
		if got["MSCRM.MergeLabels"] != "true" {
			t.Errorf("MSCRM.MergeLabels = %q, want true", got["MSCRM.MergeLabels"])
		}
	})

	t.Run("nil options elsewhere add nothing", func(t *testing.T) {
		var opts *WriteOptions
		got, err := opts.headers(false)
		if err != nil {
			t.Fatalf("headers failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("headers = %v, want none", got)
		}
	})

	t.Run("full options", func(t *testing.T) {
		opts := &WriteOptions{
			SolutionUniqueName: "crafted",
			ConsistencyStrong:  true,
			MergeLabels:        boolPtr(false),
			Headers:            map[string]string{"If-Match": "*"},
		}
		got, err := opts.headers(true)
		if err != nil {
			t.Fatalf("headers failed: %v", err)
		}
		want := map[string]string{
			"If-Match":                 "*",
			"MSCRM.SolutionUniqueName": "crafted",
			"Consistency":              "Strong",
			"MSCRM.MergeLabels":        "false",
		}
		for name, value := range want {
			if got[name] != value {
				t.Errorf("%s = %q, want %q", name, got[name], value)
			}
		}
	})

	t.Run("explicit MergeLabels beats the update default", func(t *testing.T) {
		opts := &WriteOptions{MergeLabels: boolPtr(false)}
		got, err := opts.headers(true)
		if err != nil {
			t.Fatalf("headers failed: %v", err)
		}
		if got["MSCRM.MergeLabels"] != "false" {
			t.Errorf("MSCRM.MergeLabels = %q, want false", got["MSCRM.MergeLabels"])
		}
	})

	t.Run("invalid custom header fails the whole bag", func(t *testing.T) {
		opts := &WriteOptions{Headers: map[string]string{"Content-Type": "text/xml"}}
		_, err := opts.headers(false)
		if err == nil {
			t.Fatal("expected an error")
		}
		if !dverrors.IsKind(err, dverrors.KindHeaderValidation) {
			t.Errorf("kind = %v, want header-validation", dverrors.KindOf(err))
		}
	})
}
