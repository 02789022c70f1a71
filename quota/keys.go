/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package quota

import "strings"

type keyBuilder struct {
	prefix    string
	namespace string
	hashTag   bool
}

// build returns "<prefix>:<namespace>:<key>:<limitName>".
// With hashTag enabled the caller key is wrapped in braces,
// so all records of one caller key are placed in the same Redis Cluster slot.
func (kb keyBuilder) build(key, limitName string) string {
	var sb strings.Builder
	sb.Grow(len(kb.prefix) + len(kb.namespace) + len(key) + len(limitName) + 5)
	sb.WriteString(kb.prefix)
	sb.WriteByte(':')
	sb.WriteString(kb.namespace)
	sb.WriteByte(':')
	if kb.hashTag {
		sb.WriteByte('{')
		sb.WriteString(key)
		sb.WriteByte('}')
	} else {
		sb.WriteString(key)
	}
	sb.WriteByte(':')
	sb.WriteString(limitName)
	return sb.String()
}

func (kb keyBuilder) buildAll(key string, limitNames []string) []string {
	keys := make([]string, len(limitNames))
	for i, name := range limitNames {
		keys[i] = kb.build(key, name)
	}
	return keys
}
