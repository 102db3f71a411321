package dataverse

import (
	"context"
	"fmt"
	"net/http"

	"dvbox/internal/httpclient"
)

// Associate links two records through an N:N relationship. The related
// record travels as a full @odata.id reference because $ref bodies must
// be absolute.
func (s *Service) Associate(ctx context.Context, connectionID, primaryEntity, primaryID, relationship, relatedEntity, relatedID string) error {
	primarySet := EntitySetName(primaryEntity)
	relatedSet := EntitySetName(relatedEntity)

	_, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodPost,
			URL: httpclient.APIURL(baseURL,
				fmt.Sprintf("%s(%s)/%s/$ref", primarySet, primaryID, relationship)),
			Body: map[string]string{
				"@odata.id": httpclient.APIURL(baseURL, fmt.Sprintf("%s(%s)", relatedSet, relatedID)),
			},
		}
	})
	if err != nil {
		return fmt.Errorf("associate failed: %w", err)
	}
	return nil
}

// Disassociate removes an N:N link without touching either record.
func (s *Service) Disassociate(ctx context.Context, connectionID, primaryEntity, primaryID, relationship, relatedID string) error {
	primarySet := EntitySetName(primaryEntity)

	_, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodDelete,
			URL: httpclient.APIURL(baseURL,
				fmt.Sprintf("%s(%s)/%s(%s)/$ref", primarySet, primaryID, relationship, relatedID)),
		}
	})
	if err != nil {
		return fmt.Errorf("disassociate failed: %w", err)
	}
	return nil
}
