package engine

import (
	"strings"
	"testing"
)

func TestSourceProvider(t *testing.T) {
	if got := SourceProvider("KQL"); got != "Fabric" {
		t.Fatalf("KQL provider = %s", got)
	}
	if got := SourceProvider("SQL"); got != "Azure" {
		t.Fatalf("SQL provider = %s", got)
	}
	if got := SourceProvider("S3"); got != "Unknown" {
		t.Fatalf("unmapped source provider = %s", got)
	}
}

func TestQueryTypeAndToolName(t *testing.T) {
	if got := queryTypeFor("FABRIC_SQL"); got != "analytical" {
		t.Fatalf("FABRIC_SQL query type = %s", got)
	}
	if got := queryTypeFor("NOSQL"); got != "operational" {
		t.Fatalf("NOSQL query type = %s", got)
	}
	if got := toolNameFor("VECTOR_OPS"); got != "vector_ops_query" {
		t.Fatalf("tool name = %s", got)
	}
}

func TestQuerySuffixDeterministic(t *testing.T) {
	a := querySuffix("fleet_recovery", "SQL")
	b := querySuffix("fleet_recovery", "SQL")
	if a != b {
		t.Fatalf("suffix not stable: %s vs %s", a, b)
	}
	if len(a) != 6 {
		t.Fatalf("suffix length = %d", len(a))
	}
	if a == querySuffix("fleet_recovery", "KQL") {
		t.Fatal("different sources must not collide")
	}
}

func TestEstimateResultCount(t *testing.T) {
	short := estimateResultCount("fleet_recovery", "SQL", "brief", 0)
	if short < 8 {
		t.Fatalf("floor of 8 not applied, got %d", short)
	}
	long := estimateResultCount("fleet_recovery", "SQL", strings.Repeat("x", 50000), 0)
	if long != 220 {
		t.Fatalf("ceiling of 220 not applied, got %d", long)
	}
	if a, b := estimateResultCount("a", "SQL", "text", 0), estimateResultCount("a", "SQL", "text", 0); a != b {
		t.Fatal("estimate must be deterministic")
	}
}

func TestEstimateConfidence(t *testing.T) {
	low := estimateConfidence(1, 1, "short")
	if low != 0.68 {
		t.Fatalf("base confidence = %v, want 0.68", low)
	}
	high := estimateConfidence(10, 10, strings.Repeat("x", 600))
	if high != 0.96 {
		t.Fatalf("confidence must cap at 0.96, got %v", high)
	}
}
