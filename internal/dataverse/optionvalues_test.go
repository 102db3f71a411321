package dataverse

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"dvbox/internal/dverrors"
)

func TestOptionValueTargetParams(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		target := OptionValueTarget{EntityLogicalName: "account", AttributeLogicalName: "new_status"}
		params, err := target.params()
		if err != nil {
			t.Fatalf("params failed: %v", err)
		}
		if params["EntityLogicalName"] != "account" || params["AttributeLogicalName"] != "new_status" {
			t.Errorf("params = %v", params)
		}
	})

	t.Run("global", func(t *testing.T) {
		target := OptionValueTarget{OptionSetName: "new_colors"}
		params, err := target.params()
		if err != nil {
			t.Fatalf("params failed: %v", err)
		}
		if params["OptionSetName"] != "new_colors" {
			t.Errorf("params = %v", params)
		}
		if _, ok := params["EntityLogicalName"]; ok {
			t.Error("global target leaked entity fields")
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		for _, target := range []OptionValueTarget{
			{},
			{EntityLogicalName: "account"},
			{AttributeLogicalName: "new_status"},
		} {
			if _, err := target.params(); !dverrors.IsKind(err, dverrors.KindValidation) {
				t.Errorf("params(%+v) kind = %v, want validation", target, dverrors.KindOf(err))
			}
		}
	})
}

func TestInsertOptionValue(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"NewOptionValue":727000002}`)
	})

	target := OptionValueTarget{EntityLogicalName: "account", AttributeLogicalName: "new_status"}
	value, err := svc.InsertOptionValue(context.Background(), "conn-1", target, "On Hold", nil)
	if err != nil {
		t.Fatalf("InsertOptionValue failed: %v", err)
	}

	if rec.Method != http.MethodPost || rec.Path != "/api/data/v9.2/InsertOptionValue" {
		t.Errorf("request = %s %s", rec.Method, rec.Path)
	}
	if value != 727000002 {
		t.Errorf("value = %d, want the service-assigned number", value)
	}
	if _, ok := rec.Body["Value"]; ok {
		t.Error("Value sent even though the caller let the service pick")
	}

	label, ok := rec.Body["Label"].(map[string]interface{})
	if !ok {
		t.Fatalf("Label = %v", rec.Body["Label"])
	}
	localized, ok := label["UserLocalizedLabel"].(map[string]interface{})
	if !ok || localized["Label"] != "On Hold" {
		t.Errorf("UserLocalizedLabel = %v", label["UserLocalizedLabel"])
	}
	if code, ok := localized["LanguageCode"].(float64); !ok || int(code) != DefaultLanguageCode {
		t.Errorf("LanguageCode = %v, want %d", localized["LanguageCode"], DefaultLanguageCode)
	}
}

func TestInsertOptionValue_ExplicitValue(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	picked := 727000005
	target := OptionValueTarget{OptionSetName: "new_colors"}
	value, err := svc.InsertOptionValue(context.Background(), "conn-1", target, "Teal", &picked)
	if err != nil {
		t.Fatalf("InsertOptionValue failed: %v", err)
	}

	if sent, ok := rec.Body["Value"].(float64); !ok || int(sent) != picked {
		t.Errorf("body Value = %v, want %d", rec.Body["Value"], picked)
	}
	// A 204 response carries no NewOptionValue; the caller's pick stands.
	if value != picked {
		t.Errorf("value = %d, want %d", value, picked)
	}
}

func TestInsertOptionValue_NoValueReported(t *testing.T) {
	svc, _, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	target := OptionValueTarget{OptionSetName: "new_colors"}
	_, err := svc.InsertOptionValue(context.Background(), "conn-1", target, "Teal", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !dverrors.IsKind(err, dverrors.KindService) {
		t.Errorf("kind = %v, want service", dverrors.KindOf(err))
	}
	if !strings.Contains(err.Error(), "did not report the new option value") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestUpdateOptionValue(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	target := OptionValueTarget{OptionSetName: "new_colors"}
	if err := svc.UpdateOptionValue(context.Background(), "conn-1", target, 727000001, "Deep Teal"); err != nil {
		t.Fatalf("UpdateOptionValue failed: %v", err)
	}

	if rec.Path != "/api/data/v9.2/UpdateOptionValue" {
		t.Errorf("path = %q", rec.Path)
	}
	if v, ok := rec.Body["Value"].(float64); !ok || int(v) != 727000001 {
		t.Errorf("Value = %v", rec.Body["Value"])
	}
	if rec.Body["MergeLabels"] != true {
		t.Errorf("MergeLabels = %v, want true", rec.Body["MergeLabels"])
	}
}

func TestDeleteOptionValue(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	target := OptionValueTarget{EntityLogicalName: "account", AttributeLogicalName: "new_status"}
	if err := svc.DeleteOptionValue(context.Background(), "conn-1", target, 727000001); err != nil {
		t.Fatalf("DeleteOptionValue failed: %v", err)
	}

	if rec.Path != "/api/data/v9.2/DeleteOptionValue" {
		t.Errorf("path = %q", rec.Path)
	}
	if rec.Body["EntityLogicalName"] != "account" {
		t.Errorf("EntityLogicalName = %v", rec.Body["EntityLogicalName"])
	}
}

func TestOrderOption(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	target := OptionValueTarget{OptionSetName: "new_colors"}
	order := []int{727000002, 727000000, 727000001}
	if err := svc.OrderOption(context.Background(), "conn-1", target, order); err != nil {
		t.Fatalf("OrderOption failed: %v", err)
	}

	if rec.Path != "/api/data/v9.2/OrderOption" {
		t.Errorf("path = %q", rec.Path)
	}
	values, ok := rec.Body["Values"].([]interface{})
	if !ok || len(values) != 3 {
		t.Fatalf("Values = %v", rec.Body["Values"])
	}
	if first, ok := values[0].(float64); !ok || int(first) != 727000002 {
		t.Errorf("Values[0] = %v, want the new first option", values[0])
	}
}

func TestOrderOption_Empty(t *testing.T) {
	svc, _, rec := newTestService(t, nil)

	err := svc.OrderOption(context.Background(), "conn-1",
		OptionValueTarget{OptionSetName: "new_colors"}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !dverrors.IsKind(err, dverrors.KindValidation) {
		t.Errorf("kind = %v, want validation", dverrors.KindOf(err))
	}
	if rec.Hits != 0 {
		t.Errorf("hits = %d, want 0", rec.Hits)
	}
}
