package dataverse

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"dvbox/internal/dverrors"
)

// EntityReference points a function parameter at a record.
type EntityReference struct {
	EntityLogicalName string
	ID                string
}

var (
	// enumLiteral matches OData enum values such as
	// Microsoft.Dynamics.CRM.EntityFilters'Attributes', which must
	// travel unquoted.
	enumLiteral = regexp.MustCompile(`^Microsoft\.Dynamics\.CRM\.\w+'.+'$`)

	// entityRefLiteral matches strings already shaped as a set(id)
	// reference, which also travel unquoted.
	entityRefLiteral = regexp.MustCompile(`^\w+\([0-9a-fA-F-]{32,36}\)$`)
)

// FormatFunctionParameter renders one function parameter value the way
// the Web API expects it in a parameter alias:
//
//	nil                     → null
//	EntityReference         → URL-encoded {"@odata.id":"<set>(<id>)"}
//	map with "@odata.id"    → URL-encoded JSON as-is
//	bool                    → true / false
//	numbers                 → decimal digits, unquoted
//	enum literals           → URL-encoded, unquoted
//	set(id) literals        → URL-encoded, unquoted
//	other strings           → single-quoted with '' doubling, URL-encoded
//	other values            → JSON, URL-encoded
func FormatFunctionParameter(value interface{}) (string, error) {
	if value == nil {
		return "null", nil
	}

	switch v := value.(type) {
	case EntityReference:
		return encodeODataID(EntitySetName(v.EntityLogicalName), v.ID)
	case *EntityReference:
		if v == nil {
			return "null", nil
		}
		return encodeODataID(EntitySetName(v.EntityLogicalName), v.ID)

	case bool:
		return strconv.FormatBool(v), nil

	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil

	case string:
		if enumLiteral.MatchString(v) || entityRefLiteral.MatchString(v) {
			return escapeParam(v), nil
		}
		return escapeParam("'" + strings.ReplaceAll(v, "'", "''") + "'"), nil

	case map[string]interface{}:
		if ref, ok := entityReferenceFromMap(v); ok {
			return encodeODataID(EntitySetName(ref.EntityLogicalName), ref.ID)
		}
		// Maps carrying @odata.id and any other object shape both
		// travel as URL-encoded JSON.
		return encodeJSONParam(v)

	default:
		return encodeJSONParam(v)
	}
}

// entityReferenceFromMap recognizes the loosely-typed reference shape
// callers coming from JSON tend to pass.
func entityReferenceFromMap(m map[string]interface{}) (EntityReference, bool) {
	name, hasName := m["entityLogicalName"].(string)
	id, hasID := m["id"].(string)
	if hasName && hasID && name != "" && id != "" {
		return EntityReference{EntityLogicalName: name, ID: id}, true
	}
	return EntityReference{}, false
}

func encodeODataID(entitySet, id string) (string, error) {
	if entitySet == "" || id == "" {
		return "", dverrors.New(dverrors.KindValidation,
			"entity reference parameters need entityLogicalName and id")
	}
	return encodeJSONParam(map[string]string{
		"@odata.id": fmt.Sprintf("%s(%s)", entitySet, id),
	})
}

func encodeJSONParam(v interface{}) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode function parameter: %w", err)
	}
	return escapeParam(string(encoded)), nil
}

// escapeParam percent-encodes a query component. QueryEscape's form
// semantics turn spaces into +, which the Web API does not parse back.
func escapeParam(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
