package dataverse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"dvbox/internal/dverrors"
	"dvbox/internal/httpclient"
)

// ErrMissingMetadataID marks a metadata create that returned 204 with
// no OData-EntityId header, leaving the new record's id unknown.
var ErrMissingMetadataID = errors.New("no OData-EntityId header on metadata create response")

// metadataKey renders the key segment for a metadata record: a GUID is
// a MetadataId, anything else is matched on the given name property.
func metadataKey(identifier, nameProperty string) string {
	if _, err := uuid.Parse(identifier); err == nil {
		return identifier
	}
	return fmt.Sprintf("%s='%s'", nameProperty, url.PathEscape(identifier))
}

// createMetadata POSTs a definition and extracts the new MetadataId.
// Metadata creates answer 204, so the header is the only id source.
func (s *Service) createMetadata(ctx context.Context, connectionID, path string, definition map[string]interface{}, opts *WriteOptions) (string, error) {
	headers, err := opts.headers(false)
	if err != nil {
		return "", err
	}
	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method:  http.MethodPost,
			URL:     httpclient.APIURL(baseURL, path),
			Body:    definition,
			Headers: headers,
		}
	})
	if err != nil {
		return "", err
	}

	id := extractEntityID(resp.Headers["odata-entityid"])
	if id == "" {
		return "", dverrors.Wrap(dverrors.KindService,
			"the service did not return the new metadata id", ErrMissingMetadataID)
	}
	return id, nil
}

// updateMetadata PUTs the full definition over an existing record.
func (s *Service) updateMetadata(ctx context.Context, connectionID, path string, definition map[string]interface{}, opts *WriteOptions) error {
	headers, err := opts.headers(true)
	if err != nil {
		return err
	}
	_, err = s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method:  http.MethodPut,
			URL:     httpclient.APIURL(baseURL, path),
			Body:    definition,
			Headers: headers,
		}
	})
	return err
}

func (s *Service) deleteMetadata(ctx context.Context, connectionID, path string, opts *WriteOptions) error {
	headers, err := opts.headers(false)
	if err != nil {
		return err
	}
	_, err = s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method:  http.MethodDelete,
			URL:     httpclient.APIURL(baseURL, path),
			Headers: headers,
		}
	})
	return err
}

// CreateEntityDefinition creates a table and returns its MetadataId.
func (s *Service) CreateEntityDefinition(ctx context.Context, connectionID string, definition map[string]interface{}, opts *WriteOptions) (string, error) {
	id, err := s.createMetadata(ctx, connectionID, "EntityDefinitions", definition, opts)
	if err != nil {
		return "", fmt.Errorf("create entity failed: %w", err)
	}
	return id, nil
}

// UpdateEntityDefinition replaces a table definition. The identifier is
// a MetadataId GUID or a logical name.
func (s *Service) UpdateEntityDefinition(ctx context.Context, connectionID, identifier string, definition map[string]interface{}, opts *WriteOptions) error {
	path := fmt.Sprintf("EntityDefinitions(%s)", metadataKey(identifier, "LogicalName"))
	if err := s.updateMetadata(ctx, connectionID, path, definition, opts); err != nil {
		return fmt.Errorf("update entity failed: %w", err)
	}
	return nil
}

// DeleteEntityDefinition removes a table.
func (s *Service) DeleteEntityDefinition(ctx context.Context, connectionID, identifier string, opts *WriteOptions) error {
	path := fmt.Sprintf("EntityDefinitions(%s)", metadataKey(identifier, "LogicalName"))
	if err := s.deleteMetadata(ctx, connectionID, path, opts); err != nil {
		return fmt.Errorf("delete entity failed: %w", err)
	}
	return nil
}

// CreateAttribute adds a column to a table and returns its MetadataId.
func (s *Service) CreateAttribute(ctx context.Context, connectionID, entityIdentifier string, definition map[string]interface{}, opts *WriteOptions) (string, error) {
	path := fmt.Sprintf("EntityDefinitions(%s)/Attributes", metadataKey(entityIdentifier, "LogicalName"))
	id, err := s.createMetadata(ctx, connectionID, path, definition, opts)
	if err != nil {
		return "", fmt.Errorf("create attribute failed: %w", err)
	}
	return id, nil
}

// UpdateAttribute replaces a column definition.
func (s *Service) UpdateAttribute(ctx context.Context, connectionID, entityIdentifier, attributeIdentifier string, definition map[string]interface{}, opts *WriteOptions) error {
	path := fmt.Sprintf("EntityDefinitions(%s)/Attributes(%s)",
		metadataKey(entityIdentifier, "LogicalName"),
		metadataKey(attributeIdentifier, "LogicalName"))
	if err := s.updateMetadata(ctx, connectionID, path, definition, opts); err != nil {
		return fmt.Errorf("update attribute failed: %w", err)
	}
	return nil
}

// DeleteAttribute removes a column.
func (s *Service) DeleteAttribute(ctx context.Context, connectionID, entityIdentifier, attributeIdentifier string, opts *WriteOptions) error {
	path := fmt.Sprintf("EntityDefinitions(%s)/Attributes(%s)",
		metadataKey(entityIdentifier, "LogicalName"),
		metadataKey(attributeIdentifier, "LogicalName"))
	if err := s.deleteMetadata(ctx, connectionID, path, opts); err != nil {
		return fmt.Errorf("delete attribute failed: %w", err)
	}
	return nil
}

// CreatePolymorphicLookupAttribute creates a lookup column that can
// target several tables. Targets must name at least one; the lookup
// type fields are defaulted so callers only describe what varies.
func (s *Service) CreatePolymorphicLookupAttribute(ctx context.Context, connectionID, entityIdentifier string, definition map[string]interface{}, opts *WriteOptions) (string, error) {
	targets, ok := definition["Targets"].([]interface{})
	if !ok || len(targets) == 0 {
		if typed, tok := definition["Targets"].([]string); !tok || len(typed) == 0 {
			return "", dverrors.New(dverrors.KindValidation,
				"a polymorphic lookup needs a non-empty Targets list")
		}
	}

	filled := make(map[string]interface{}, len(definition)+2)
	for key, value := range definition {
		filled[key] = value
	}
	if _, ok := filled["AttributeType"]; !ok {
		filled["AttributeType"] = "Lookup"
	}
	if _, ok := filled["AttributeTypeName"]; !ok {
		filled["AttributeTypeName"] = map[string]interface{}{"Value": "LookupType"}
	}

	id, err := s.CreateAttribute(ctx, connectionID, entityIdentifier, filled, opts)
	if err != nil {
		return "", fmt.Errorf("create polymorphic lookup failed: %w", err)
	}
	return id, nil
}

// CreateRelationship creates a relationship and returns its MetadataId.
func (s *Service) CreateRelationship(ctx context.Context, connectionID string, definition map[string]interface{}, opts *WriteOptions) (string, error) {
	id, err := s.createMetadata(ctx, connectionID, "RelationshipDefinitions", definition, opts)
	if err != nil {
		return "", fmt.Errorf("create relationship failed: %w", err)
	}
	return id, nil
}

// UpdateRelationship replaces a relationship definition. Relationships
// key on SchemaName rather than LogicalName.
func (s *Service) UpdateRelationship(ctx context.Context, connectionID, identifier string, definition map[string]interface{}, opts *WriteOptions) error {
	path := fmt.Sprintf("RelationshipDefinitions(%s)", metadataKey(identifier, "SchemaName"))
	if err := s.updateMetadata(ctx, connectionID, path, definition, opts); err != nil {
		return fmt.Errorf("update relationship failed: %w", err)
	}
	return nil
}

// DeleteRelationship removes a relationship.
func (s *Service) DeleteRelationship(ctx context.Context, connectionID, identifier string, opts *WriteOptions) error {
	path := fmt.Sprintf("RelationshipDefinitions(%s)", metadataKey(identifier, "SchemaName"))
	if err := s.deleteMetadata(ctx, connectionID, path, opts); err != nil {
		return fmt.Errorf("delete relationship failed: %w", err)
	}
	return nil
}

// CreateGlobalOptionSet creates a global choice list and returns its
// MetadataId.
func (s *Service) CreateGlobalOptionSet(ctx context.Context, connectionID string, definition map[string]interface{}, opts *WriteOptions) (string, error) {
	id, err := s.createMetadata(ctx, connectionID, "GlobalOptionSetDefinitions", definition, opts)
	if err != nil {
		return "", fmt.Errorf("create option set failed: %w", err)
	}
	return id, nil
}

// UpdateGlobalOptionSet replaces a global choice list. Option sets key
// on Name.
func (s *Service) UpdateGlobalOptionSet(ctx context.Context, connectionID, identifier string, definition map[string]interface{}, opts *WriteOptions) error {
	path := fmt.Sprintf("GlobalOptionSetDefinitions(%s)", metadataKey(identifier, "Name"))
	if err := s.updateMetadata(ctx, connectionID, path, definition, opts); err != nil {
		return fmt.Errorf("update option set failed: %w", err)
	}
	return nil
}

// DeleteGlobalOptionSet removes a global choice list.
func (s *Service) DeleteGlobalOptionSet(ctx context.Context, connectionID, identifier string, opts *WriteOptions) error {
	path := fmt.Sprintf("GlobalOptionSetDefinitions(%s)", metadataKey(identifier, "Name"))
	if err := s.deleteMetadata(ctx, connectionID, path, opts); err != nil {
		return fmt.Errorf("delete option set failed: %w", err)
	}
	return nil
}
