package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	for _, in := range []string{"+1 514 555 1234", "(514) 555-1234", "5145551234", "1-514-555-1234"} {
		assert.Equal(t, "5145551234", normalizePhone(in), in)
	}
	assert.Equal(t, "555-1234", normalizePhone("555-1234"))
	assert.Equal(t, "", normalizePhone(""))
	assert.Equal(t, "+44 20 7946 0958 12", normalizePhone("+44 20 7946 0958 12"))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "c'est ça", cleanText("  c’est \n\t ça  "))
	assert.Equal(t, "", cleanText(""))
}

func TestSameName(t *testing.T) {
	assert.True(t, sameName(" Tremblay ", "TREMBLAY"))
	assert.True(t, sameName("Éric", "éric"))
	assert.False(t, sameName("Tremblay", "Gagnon"))
}

func TestLeadFieldsMerge(t *testing.T) {
	f := LeadFields{Phone: "5145551234", LastName: "Tremblay"}
	f.Merge(LeadFields{Phone: "", LastName: "  ", City: "Lévis"})

	assert.Equal(t, "5145551234", f.Phone)
	assert.Equal(t, "Tremblay", f.LastName)
	assert.Equal(t, "Lévis", f.City)

	f.Merge(LeadFields{LastName: "Gagnon"})
	assert.Equal(t, "Gagnon", f.LastName)
}

func TestLeadFieldsCanLookup(t *testing.T) {
	assert.True(t, LeadFields{LastName: "A", FirstName: "B", Phone: "514 555 1234"}.CanLookup())
	assert.False(t, LeadFields{LastName: "A", FirstName: "B"}.CanLookup())
	assert.False(t, LeadFields{LastName: "A", FirstName: "B", Phone: "555-1234"}.CanLookup())
	assert.False(t, LeadFields{LastName: "A", Phone: "5145551234"}.CanLookup())
	assert.False(t, LeadFields{FirstName: "B", Phone: "5145551234"}.CanLookup())
}
