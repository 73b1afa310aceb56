package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestRecords(t *testing.T) {
	a := models.PersonRecord{ID: "a", FirstName: "Ann", Active: true}
	b := models.PersonRecord{ID: "b", FirstName: "Anne", Active: true}

	base := Records([]models.PersonRecord{a, b})
	assert.Len(t, base, 64)
	assert.Equal(t, base, Records([]models.PersonRecord{b, a}))

	now := time.Now()
	touched := b
	touched.UpdatedAt = &now
	assert.Equal(t, base, Records([]models.PersonRecord{a, touched}), "timestamps are not part of the fingerprint")

	edited := b
	edited.Email = "anne@example.com"
	assert.NotEqual(t, base, Records([]models.PersonRecord{a, edited}))

	keeper := "a"
	retired := b
	retired.Active = false
	retired.MergedInto = &keeper
	assert.NotEqual(t, base, Records([]models.PersonRecord{a, retired}))
}
