package dataverse

// DefaultLanguageCode is the LCID filled in when a label does not pick
// a language (1033, English - United States).
const DefaultLanguageCode = 1033

// NewLabel builds the Label structure metadata definitions embed for
// display names, descriptions, and option labels.
func NewLabel(text string, languageCode int) map[string]interface{} {
	if languageCode == 0 {
		languageCode = DefaultLanguageCode
	}
	localized := map[string]interface{}{
		"@odata.type":  "Microsoft.Dynamics.CRM.LocalizedLabel",
		"Label":        text,
		"LanguageCode": languageCode,
		"IsManaged":    false,
	}
	return map[string]interface{}{
		"@odata.type":        "Microsoft.Dynamics.CRM.Label",
		"LocalizedLabels":    []interface{}{localized},
		"UserLocalizedLabel": localized,
	}
}
