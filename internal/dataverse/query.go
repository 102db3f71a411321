package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"dvbox/internal/dverrors"
	"dvbox/internal/httpclient"
)

// fetchEntityPattern finds the first entity element in a FetchXML
// document; its name decides which entity set the query posts against.
var fetchEntityPattern = regexp.MustCompile(`<entity\s+name\s*=\s*["']([^"']+)["']`)

// QueryData runs a raw OData query ("accounts?$select=name&$top=5").
// A leading question mark is tolerated so callers can paste query
// strings straight from documentation.
func (s *Service) QueryData(ctx context.Context, connectionID, query string) (map[string]interface{}, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(query), "?")
	if trimmed == "" {
		return nil, dverrors.New(dverrors.KindValidation, "the query is empty")
	}

	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method:        http.MethodGet,
			URL:           httpclient.APIURL(baseURL, trimmed),
			PreferOptions: []string{includeAnnotations},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return resp.Data, nil
}

// FetchXML runs a FetchXML query against the entity set named by the
// document's first <entity> element.
func (s *Service) FetchXML(ctx context.Context, connectionID, fetchXML string) (map[string]interface{}, error) {
	match := fetchEntityPattern.FindStringSubmatch(fetchXML)
	if match == nil {
		return nil, dverrors.New(dverrors.KindValidation,
			"the FetchXML document has no <entity name=…> element")
	}
	set := EntitySetName(match[1])

	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method:        http.MethodGet,
			URL:           httpclient.APIURL(baseURL, set+"?fetchXml="+url.QueryEscape(fetchXML)),
			PreferOptions: []string{includeAnnotations},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fetchxml query failed: %w", err)
	}
	return resp.Data, nil
}
