package auth

import (
	"context"
	"net/http"

	"dvbox/internal/dverrors"
	"dvbox/internal/httpclient"
)

// WhoAmIResult is the identity triple Dataverse reports for the caller.
type WhoAmIResult struct {
	UserID         string
	BusinessUnitID string
	OrganizationID string
}

// ValidateEnvironmentAccess probes WhoAmI with a freshly minted token.
// A token can be perfectly valid for the tenant and still be useless
// for the environment (no Dataverse user, disabled user), which is why
// every interactive sign-in ends with this check.
func (e *Engine) ValidateEnvironmentAccess(ctx context.Context, envURL, accessToken string) (*WhoAmIResult, error) {
	resp, err := e.api.Do(ctx, httpclient.Request{
		Method:      http.MethodGet,
		URL:         httpclient.APIURL(envURL, "WhoAmI"),
		AccessToken: accessToken,
	})
	if err != nil {
		if status, ok := dverrors.ServiceStatus(err); ok && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
			return nil, dverrors.Wrap(dverrors.KindPermissionDenied,
				"You do not have permission to access this environment. Ask an administrator to add your user to it.", err)
		}
		return nil, dverrors.Wrap(dverrors.KindEnvironmentValidation,
			"could not validate access to the environment", err)
	}

	userID, _ := resp.Data["UserId"].(string)
	if userID == "" {
		return nil, dverrors.New(dverrors.KindEnvironmentValidation,
			"the environment did not return a user id; verify the environment URL")
	}

	result := &WhoAmIResult{UserID: userID}
	if v, ok := resp.Data["BusinessUnitId"].(string); ok {
		result.BusinessUnitID = v
	}
	if v, ok := resp.Data["OrganizationId"].(string); ok {
		result.OrganizationID = v
	}
	return result, nil
}
