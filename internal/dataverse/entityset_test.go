package dataverse

import "testing"

func TestEntitySetName(t *testing.T) {
	tests := []struct {
		logical string
		want    string
	}{
		// Plain plural.
		{"account", "accounts"},
		{"contact", "contacts"},
		{"systemuser", "systemusers"},

		// y after a consonant.
		{"opportunity", "opportunities"},
		{"activity", "activities"},
		{"category", "categories"},

		// y after a vowel keeps the y.
		{"journey", "journeys"},

		// Sibilant endings.
		{"process", "processes"},
		{"mailbox", "mailboxes"},
		{"quiz", "quizes"},
		{"emailsearch", "emailsearches"},
		{"flash", "flashes"},

		// Irregular table.
		{"territory", "territories"},
		{"currency", "currencies"},
		{"transactioncurrency", "transactioncurrencies"},
		{"webresource", "webresourceset"},

		// Normalization.
		{"Account", "accounts"},
		{"  contact  ", "contacts"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.logical, func(t *testing.T) {
			if got := EntitySetName(tt.logical); got != tt.want {
				t.Errorf("EntitySetName(%q) = %q, want %q", tt.logical, got, tt.want)
			}
		})
	}
}

// Set names from the irregular table pass through unchanged, so code
// that already holds a set name can call EntitySetName safely.
func TestEntitySetName_IrregularsAreStable(t *testing.T) {
	for logical, set := range irregularSets {
		if got := EntitySetName(set); got != set {
			t.Errorf("EntitySetName(%q) = %q, want %q (via %q)", set, got, set, logical)
		}
	}
}
