package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dvbox/internal/dverrors"
)

func TestValidateEnvironmentAccess(t *testing.T) {
	var gotAuth string
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"@odata.context": "https://example.crm.dynamics.com/api/data/v9.2/$metadata#Microsoft.Dynamics.CRM.WhoAmIResponse",
			"BusinessUnitId": "6c087b52-9f3b-ee11-bdf4-000d3a99ee26",
			"UserId": "527f54e5-0c55-ee11-be6e-000d3a993550",
			"OrganizationId": "aa8f8e6d-f47a-4a66-a3a6-5fd9c6f9ec76"
		}`)
	}))
	defer server.Close()

	engine := NewEngine()
	who, err := engine.ValidateEnvironmentAccess(context.Background(), server.URL, "token-123")
	if err != nil {
		t.Fatalf("ValidateEnvironmentAccess failed: %v", err)
	}

	if gotPath != "/api/data/v9.2/WhoAmI" {
		t.Errorf("probe path = %q, want /api/data/v9.2/WhoAmI", gotPath)
	}
	if gotAuth != "Bearer token-123" {
		t.Errorf("Authorization = %q, want Bearer token-123", gotAuth)
	}
	if who.UserID != "527f54e5-0c55-ee11-be6e-000d3a993550" {
		t.Errorf("UserID = %q", who.UserID)
	}
	if who.BusinessUnitID != "6c087b52-9f3b-ee11-bdf4-000d3a99ee26" {
		t.Errorf("BusinessUnitID = %q", who.BusinessUnitID)
	}
	if who.OrganizationID != "aa8f8e6d-f47a-4a66-a3a6-5fd9c6f9ec76" {
		t.Errorf("OrganizationID = %q", who.OrganizationID)
	}
}

func TestValidateEnvironmentAccess_PermissionDenied(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				fmt.Fprint(w, `{"error":{"code":"0x80072560","message":"The user is not a member of the organization."}}`)
			}))
			defer server.Close()

			engine := NewEngine()
			_, err := engine.ValidateEnvironmentAccess(context.Background(), server.URL, "token")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !dverrors.IsKind(err, dverrors.KindPermissionDenied) {
				t.Errorf("kind = %v, want permission-denied: %v", dverrors.KindOf(err), err)
			}
			if !strings.Contains(err.Error(), "You do not have permission to access this environment") {
				t.Errorf("message = %q, want the admin guidance", err.Error())
			}
		})
	}
}

func TestValidateEnvironmentAccess_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := NewEngine()
	_, err := engine.ValidateEnvironmentAccess(context.Background(), server.URL, "token")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !dverrors.IsKind(err, dverrors.KindEnvironmentValidation) {
		t.Errorf("kind = %v, want environment-validation: %v", dverrors.KindOf(err), err)
	}
}

func TestValidateEnvironmentAccess_MissingUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"@odata.context": "ctx"}`)
	}))
	defer server.Close()

	engine := NewEngine()
	_, err := engine.ValidateEnvironmentAccess(context.Background(), server.URL, "token")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !dverrors.IsKind(err, dverrors.KindEnvironmentValidation) {
		t.Errorf("kind = %v, want environment-validation: %v", dverrors.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "did not return a user id") {
		t.Errorf("message = %q, want the user id hint", err.Error())
	}
}

func TestValidateEnvironmentAccess_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	engine := NewEngine()
	_, err := engine.ValidateEnvironmentAccess(context.Background(), server.URL, "token")
	if err == nil {
		t.Fatal("expected an error")
	}
	// Network failures are environment validation failures here: the
	// URL could not be validated.
	if !dverrors.IsKind(err, dverrors.KindEnvironmentValidation) {
		t.Errorf("kind = %v, want environment-validation: %v", dverrors.KindOf(err), err)
	}
}
