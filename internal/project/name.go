// Package project maps source experiments onto destination projects.
package project

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Sanitize replaces every character outside [A-Za-z0-9] with a hyphen,
// collapses hyphen runs, trims hyphens at both ends and lower-cases.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	dash := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		alnum := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
		if !alnum {
			dash = true
			continue
		}
		if dash && b.Len() > 0 {
			b.WriteByte('-')
		}
		dash = false
		b.WriteByte(c)
	}
	return strings.ToLower(b.String())
}

// StoreHash is the first six hex digits of the SHA-1 of the store identity.
func StoreHash(storeID string) string {
	sum := sha1.Sum([]byte(storeID))
	return hex.EncodeToString(sum[:])[:6]
}

// Name derives the destination project name of an experiment. It depends
// only on its arguments.
func Name(experimentName, storeID string) string {
	return Sanitize("mlflow-" + experimentName + "-" + StoreHash(storeID))
}

// MappingTag is the experiment tag holding the project id for workspace.
func MappingTag(workspace string) string {
	return "comet-project-" + workspace
}
