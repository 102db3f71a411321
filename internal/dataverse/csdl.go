package dataverse

import (
	"context"
	"fmt"

	"dvbox/internal/httpclient"
)

// GetCSDL downloads the environment's $metadata document, the CSDL XML
// describing every entity set, action and function the API exposes.
// The document is returned verbatim; it is far too large to parse
// eagerly and most callers just write it to disk.
func (s *Service) GetCSDL(ctx context.Context, connectionID string) (string, error) {
	conn, token, err := s.tokens.GetUsableToken(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("csdl download failed: %w", err)
	}
	document, err := s.api.GetXML(ctx, httpclient.APIURL(conn.URL, "$metadata"), token)
	if err != nil {
		return "", fmt.Errorf("csdl download failed: %w", err)
	}
	return document, nil
}
