package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"dvbox/internal/dverrors"
	"dvbox/internal/httpclient"
)

// Action describes a Web API action invocation. Leave BoundEntity empty
// for unbound actions.
type Action struct {
	Name        string
	Parameters  map[string]interface{}
	BoundEntity string
	BoundID     string
}

// Function describes a Web API function invocation. Parameters travel
// in the URL as parameter aliases.
type Function struct {
	Name        string
	Parameters  map[string]interface{}
	BoundEntity string
	BoundID     string
}

// ExecuteAction POSTs an action, bound or unbound.
func (s *Service) ExecuteAction(ctx context.Context, connectionID string, action Action) (map[string]interface{}, error) {
	if action.Name == "" {
		return nil, dverrors.New(dverrors.KindValidation, "the action has no name")
	}

	path := action.Name
	if action.BoundEntity != "" {
		if action.BoundID == "" {
			return nil, dverrors.Newf(dverrors.KindValidation,
				"bound action %s needs the target record id", action.Name)
		}
		path = fmt.Sprintf("%s(%s)/Microsoft.Dynamics.CRM.%s",
			EntitySetName(action.BoundEntity), action.BoundID, action.Name)
	}

	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		req := httpclient.Request{
			Method: http.MethodPost,
			URL:    httpclient.APIURL(baseURL, path),
		}
		if action.Parameters != nil {
			req.Body = action.Parameters
		}
		return req
	})
	if err != nil {
		return nil, fmt.Errorf("action %s failed: %w", action.Name, err)
	}
	return resp.Data, nil
}

// ExecuteFunction GETs a function, bound or unbound, encoding each
// parameter as an alias: Name(Key=@p0)?@p0=value.
func (s *Service) ExecuteFunction(ctx context.Context, connectionID string, fn Function) (map[string]interface{}, error) {
	if fn.Name == "" {
		return nil, dverrors.New(dverrors.KindValidation, "the function has no name")
	}

	path := fn.Name
	if fn.BoundEntity != "" {
		if fn.BoundID == "" {
			return nil, dverrors.Newf(dverrors.KindValidation,
				"bound function %s needs the target record id", fn.Name)
		}
		path = fmt.Sprintf("%s(%s)/Microsoft.Dynamics.CRM.%s",
			EntitySetName(fn.BoundEntity), fn.BoundID, fn.Name)
	}

	suffix, err := encodeFunctionParameters(fn.Parameters)
	if err != nil {
		return nil, fmt.Errorf("function %s failed: %w", fn.Name, err)
	}

	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodGet,
			URL:    httpclient.APIURL(baseURL, path+suffix),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("function %s failed: %w", fn.Name, err)
	}
	return resp.Data, nil
}

// encodeFunctionParameters renders (Key1=@p0,Key2=@p1)?@p0=…&@p1=….
// Keys are sorted so the same call always produces the same URL.
func encodeFunctionParameters(parameters map[string]interface{}) (string, error) {
	if len(parameters) == 0 {
		// Parameterless functions are addressed by bare name.
		return "", nil
	}

	keys := make([]string, 0, len(parameters))
	for key := range parameters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	names := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, key := range keys {
		encoded, err := FormatFunctionParameter(parameters[key])
		if err != nil {
			return "", err
		}
		alias := fmt.Sprintf("@p%d", i)
		names[i] = key + "=" + alias
		values[i] = alias + "=" + encoded
	}

	return "(" + strings.Join(names, ",") + ")?" + strings.Join(values, "&"), nil
}
