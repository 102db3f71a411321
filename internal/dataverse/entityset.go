package dataverse

import "strings"

// irregularSets maps logical names whose entity-set name is not a
// mechanical plural. Set names map to themselves so a value that is
// already a set name passes through unchanged.
var irregularSets = map[string]string{
	"opportunity":   "opportunities",
	"opportunities": "opportunities",

	"territory":   "territories",
	"territories": "territories",

	"currency":   "currencies",
	"currencies": "currencies",

	"transactioncurrency":   "transactioncurrencies",
	"transactioncurrencies": "transactioncurrencies",

	// Internal sets that never followed the plural rules.
	"webresource":    "webresourceset",
	"webresourceset": "webresourceset",
}

// EntitySetName converts an entity logical name into its entity-set
// path segment: the irregular table first, then y→ies after a
// consonant, then the es-rule for sibilant endings, then a plain s.
func EntitySetName(logicalName string) string {
	name := strings.ToLower(strings.TrimSpace(logicalName))
	if name == "" {
		return ""
	}
	if set, ok := irregularSets[name]; ok {
		return set
	}

	if n := len(name); n > 1 && name[n-1] == 'y' && !isVowel(name[n-2]) {
		return name[:n-1] + "ies"
	}

	if strings.HasSuffix(name, "ch") || strings.HasSuffix(name, "sh") {
		return name + "es"
	}
	switch name[len(name)-1] {
	case 's', 'x', 'z':
		return name + "es"
	}
	return name + "s"
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
