package dataverse

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

// PublishCustomizations activates pending metadata changes. With no
// tables it publishes everything; otherwise only the named tables,
// XML-escaped into the ParameterXml payload.
func (s *Service) PublishCustomizations(ctx context.Context, connectionID string, tables ...string) error {
	if len(tables) == 0 {
		_, err := s.ExecuteAction(ctx, connectionID, Action{Name: "PublishAllXml"})
		if err != nil {
			return fmt.Errorf("publish all failed: %w", err)
		}
		return nil
	}

	var entities strings.Builder
	for _, table := range tables {
		entities.WriteString("<entity>")
		entities.WriteString(escapeXML(table))
		entities.WriteString("</entity>")
	}
	parameterXML := fmt.Sprintf("<importexportxml><entities>%s</entities></importexportxml>", entities.String())

	_, err := s.ExecuteAction(ctx, connectionID, Action{
		Name:       "PublishXml",
		Parameters: map[string]interface{}{"ParameterXml": parameterXML},
	})
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	// EscapeText only errors on a failing writer; bytes.Buffer never
	// fails.
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
