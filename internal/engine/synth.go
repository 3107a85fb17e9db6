package engine

import (
	"encoding/hex"
	"hash/fnv"
	"math"
	"strings"
)

// sourceProviderMap names the hosting provider for each registered
// datastore tag.
var sourceProviderMap = map[string]string{
	"SQL":            "Azure",
	"KQL":            "Fabric",
	"GRAPH":          "Fabric",
	"NOSQL":          "Azure",
	"FABRIC_SQL":     "Fabric",
	"VECTOR_OPS":     "Azure",
	"VECTOR_REG":     "Azure",
	"VECTOR_AIRPORT": "Azure",
}

// SourceProvider resolves a datastore tag to its provider name.
func SourceProvider(sourceType string) string {
	if p, ok := sourceProviderMap[sourceType]; ok {
		return p
	}
	return "Unknown"
}

// analyticalSources are queried through analytical rather than
// operational paths.
var analyticalSources = map[string]bool{
	"KQL":        true,
	"GRAPH":      true,
	"FABRIC_SQL": true,
}

func queryTypeFor(sourceType string) string {
	if analyticalSources[sourceType] {
		return "analytical"
	}
	return "operational"
}

func toolNameFor(sourceType string) string {
	return strings.ToLower(sourceType) + "_query"
}

// querySuffix derives a stable six-hex-digit suffix for a query id so
// replays of the same agent/source pair produce the same id.
func querySuffix(agentID, sourceType string) string {
	h := fnv.New32a()
	h.Write([]byte(agentID + ":" + sourceType))
	return hex.EncodeToString(h.Sum(nil))[:6]
}

// estimateResultCount sizes a synthesized result set from the response
// length plus a per-source modifier, bounded at 220 rows.
func estimateResultCount(agentID, sourceType, responseText string, index int) int {
	base := len(responseText) / 55
	if base < 8 {
		base = 8
	}
	modifier := (len(agentID)*3 + len(sourceType)*7 + index*11) % 34
	if n := base + modifier; n < 220 {
		return n
	}
	return 220
}

// estimateConfidence scores evidence confidence from source breadth,
// conversation depth and response substance, capped at 0.96.
func estimateConfidence(sourceCount, messageCount int, responseText string) float64 {
	if sourceCount > 4 {
		sourceCount = 4
	}
	if messageCount > 5 {
		messageCount = 5
	}
	confidence := 0.62 + 0.04*float64(sourceCount) + 0.015*float64(messageCount)
	if len(responseText) > 500 {
		confidence += 0.05
	}
	confidence = math.Round(confidence*100) / 100
	if confidence > 0.96 {
		return 0.96
	}
	return confidence
}
