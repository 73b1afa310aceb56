// Package fingerprint hashes record state so a merge can detect that its inputs changed
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Records returns a SHA256 over the canonical form of records. Input order does not
// matter; ids, reconcilable fields, active flags and merged_into pointers do.
func Records(records []models.PersonRecord) string {
	sorted := append([]models.PersonRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	b.WriteString("[")
	for i, r := range sorted {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(canonical(r))
	}
	b.WriteString("]")

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// canonical writes the record as JSON with sorted keys
func canonical(r models.PersonRecord) string {
	m := r.Fields()
	m["id"] = r.ID
	if r.Active || r.MergedInto == nil {
		m["active"] = "true"
	} else {
		m["active"] = "false"
	}
	if r.MergedInto != nil {
		m["merged_into"] = *r.MergedInto
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		b.Write(kb)
		b.WriteString(":")
		b.Write(vb)
	}
	b.WriteString("}")
	return b.String()
}
