package dataverse

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestPublishCustomizations_All(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := svc.PublishCustomizations(context.Background(), "conn-1"); err != nil {
		t.Fatalf("PublishCustomizations failed: %v", err)
	}

	if rec.Method != http.MethodPost || rec.Path != "/api/data/v9.2/PublishAllXml" {
		t.Errorf("request = %s %s, want POST /api/data/v9.2/PublishAllXml", rec.Method, rec.Path)
	}
	if len(rec.RawBody) != 0 {
		t.Errorf("body = %q, want none", rec.RawBody)
	}
}

func TestPublishCustomizations_NamedTables(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := svc.PublishCustomizations(context.Background(), "conn-1", "account", "new_project"); err != nil {
		t.Fatalf("PublishCustomizations failed: %v", err)
	}

	if rec.Path != "/api/data/v9.2/PublishXml" {
		t.Errorf("path = %q", rec.Path)
	}
	want := "<importexportxml><entities><entity>account</entity><entity>new_project</entity></entities></importexportxml>"
	if got := rec.Body["ParameterXml"]; got != want {
		t.Errorf("ParameterXml = %v, want %q", got, want)
	}
}

func TestPublishCustomizations_EscapesNames(t *testing.T) {
	svc, _, rec := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := svc.PublishCustomizations(context.Background(), "conn-1", "bad<name>&co"); err != nil {
		t.Fatalf("PublishCustomizations failed: %v", err)
	}

	got, _ := rec.Body["ParameterXml"].(string)
	if !strings.Contains(got, "<entity>bad&lt;name&gt;&amp;co</entity>") {
		t.Errorf("ParameterXml = %q, want the escaped name", got)
	}
}

func TestPublishCustomizations_ErrorPrefixes(t *testing.T) {
	svc, _, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := svc.PublishCustomizations(context.Background(), "conn-1")
	if err == nil || !strings.HasPrefix(err.Error(), "publish all failed: ") {
		t.Errorf("error = %v, want the publish all prefix", err)
	}

	err = svc.PublishCustomizations(context.Background(), "conn-1", "account")
	if err == nil || !strings.HasPrefix(err.Error(), "publish failed: ") {
		t.Errorf("error = %v, want the publish prefix", err)
	}
}
