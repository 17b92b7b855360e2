package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchName(t *testing.T) {
	testCases := []struct {
		name     string
		matchers []string
		expected bool
	}{
		{name: "GTIN", matchers: []string{"gtin", "ean"}, expected: true},
		{name: "\ufeffGtin\t", matchers: []string{"gtin"}, expected: true},
		{name: "EAN Code", matchers: []string{"eancode"}, expected: true},
		{name: "gtins", matchers: []string{"gtin"}, expected: false},
		{name: "", matchers: []string{"gtin"}, expected: false},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, MatchName(test.name, test.matchers), test.name)
	}
}

func TestContainsPhrase(t *testing.T) {
	testCases := []struct {
		text     string
		phrase   string
		expected bool
	}{
		{text: "Produkt  pdf-Datenblatt\n herunterladen", phrase: "pdf-Datenblatt", expected: true},
		{text: "Es wurden KEINE   Produkte gefunden.", phrase: "keine produkte gefunden", expected: true},
		{text: "Sicherheitsdatenblatt", phrase: "pdf-Datenblatt", expected: false},
		{text: "anything", phrase: "  ", expected: false},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, ContainsPhrase(test.text, test.phrase), test.text)
	}
}
