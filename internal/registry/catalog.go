// Package registry holds the static agent catalog and the scenario-based
// selection logic that decides which agents participate in a run.
package registry

import "github.com/hliang02/skyops/internal/domain"

// DefaultScenario is the fallback when no keyword matches the problem.
const DefaultScenario = "hub_disruption"

var catalog = []domain.AgentProfile{
	// Hub disruption recovery
	{
		ID: "situation_assessment", Name: "Situation Assessment", ShortName: "Situation",
		Category: domain.CategorySpecialist, Description: "Maps disruption scope via GRAPH + SQL + KQL",
		Icon: "Radar", Color: "#3b82f6", DataSources: []string{"GRAPH", "SQL", "KQL"},
		Scenarios: []string{"hub_disruption", "diversion", "crew_fatigue", "safety_incident"},
		Priority:  10, Phase: 1,
	},
	{
		ID: "fleet_recovery", Name: "Fleet Recovery", ShortName: "Fleet",
		Category: domain.CategorySpecialist, Description: "Finds available tails, evaluates swaps via SQL + GRAPH",
		Icon: "PlaneTakeoff", Color: "#22c55e", DataSources: []string{"SQL", "GRAPH"},
		Scenarios: []string{"hub_disruption", "predictive_maintenance"},
		Priority:  20, Phase: 1,
	},
	{
		ID: "crew_recovery", Name: "Crew Recovery", ShortName: "Crew",
		Category: domain.CategorySpecialist, Description: "Crew availability and duty limit checks via SQL + AI Search",
		Icon: "Users", Color: "#06b6d4", DataSources: []string{"SQL", "VECTOR_REG"},
		Scenarios: []string{"hub_disruption", "crew_fatigue"},
		Priority:  30, Phase: 1,
	},
	{
		ID: "network_impact", Name: "Network Impact", ShortName: "Network",
		Category: domain.CategorySpecialist, Description: "Delay propagation modeling via Fabric SQL + GRAPH",
		Icon: "Network", Color: "#8b5cf6", DataSources: []string{"FABRIC_SQL", "GRAPH"},
		Scenarios: []string{"hub_disruption", "predictive_maintenance", "delay_analysis"},
		Priority:  40, Phase: 1,
	},
	{
		ID: "weather_safety", Name: "Weather & Safety", ShortName: "Weather",
		Category: domain.CategorySpecialist, Description: "SIGMETs/PIREPs, NOTAMs, ASRS search via KQL + Cosmos + AI Search",
		Icon: "CloudLightning", Color: "#f59e0b", DataSources: []string{"KQL", "NOSQL", "VECTOR_OPS"},
		Scenarios: []string{"hub_disruption", "diversion", "weather_brief", "safety_incident"},
		Priority:  50, Phase: 1,
	},
	{
		ID: "passenger_impact", Name: "Passenger Impact", ShortName: "Passenger",
		Category: domain.CategorySpecialist, Description: "Connection risks and rebooking load via SQL + GRAPH",
		Icon: "UserCheck", Color: "#ec4899", DataSources: []string{"SQL", "GRAPH"},
		Scenarios: []string{"hub_disruption", "gate_reassignment", "turnaround"},
		Priority:  60, Phase: 1,
	},
	{
		ID: "recovery_coordinator", Name: "Recovery Coordinator", ShortName: "Coordinator",
		Category: domain.CategoryCoordinator, Description: "Multi-objective scoring and recovery plan synthesis",
		Icon: "Brain", Color: "#6366f1",
		Scenarios: []string{"hub_disruption"},
		Priority:  100, Phase: 1,
	},

	// Cross-scenario specialists
	{
		ID: "maintenance_predictor", Name: "Maintenance Predictor", ShortName: "Maintenance",
		Category: domain.CategorySpecialist, Description: "MEL trend analysis, similar incident search via SQL + AI Search",
		Icon: "Wrench", Color: "#f97316", DataSources: []string{"SQL", "VECTOR_OPS"},
		Scenarios: []string{"predictive_maintenance"},
		Priority:  25, Phase: 1,
	},
	{
		ID: "crew_fatigue_assessor", Name: "Crew Fatigue Assessor", ShortName: "Fatigue",
		Category: domain.CategorySpecialist, Description: "FAR 117 compliance, fatigue risk scoring via SQL + AI Search",
		Icon: "Moon", Color: "#0ea5e9", DataSources: []string{"SQL", "VECTOR_REG"},
		Scenarios: []string{"crew_fatigue"},
		Priority:  35, Phase: 1,
	},
	{
		ID: "diversion_advisor", Name: "Diversion Advisor", ShortName: "Diversion",
		Category: domain.CategorySpecialist, Description: "Alternate airport evaluation via KQL + SQL + Cosmos",
		Icon: "Navigation", Color: "#ef4444", DataSources: []string{"KQL", "SQL", "NOSQL"},
		Scenarios: []string{"diversion"},
		Priority:  15, Phase: 1,
	},
	{
		ID: "regulatory_compliance", Name: "Regulatory Compliance", ShortName: "Regulatory",
		Category: domain.CategorySpecialist, Description: "Safety gate, regulation search via AI Search",
		Icon: "Shield", Color: "#64748b", DataSources: []string{"VECTOR_REG", "VECTOR_OPS"},
		Scenarios: []string{"predictive_maintenance", "crew_fatigue", "safety_incident"},
		Priority:  90, Phase: 1,
	},
	{
		ID: "route_planner", Name: "Route Planner", ShortName: "Route",
		Category: domain.CategorySpecialist, Description: "Route alternatives via GRAPH + SQL + KQL",
		Icon: "Route", Color: "#2dd4bf", DataSources: []string{"GRAPH", "SQL", "KQL"},
		Scenarios: []string{"diversion", "fuel_optimization", "atc_flow"},
		Priority:  45, Phase: 1,
	},
	{
		ID: "real_time_monitor", Name: "Real-Time Monitor", ShortName: "Monitor",
		Category: domain.CategorySpecialist, Description: "Live ADS-B positions + active NOTAMs via KQL + Cosmos",
		Icon: "Satellite", Color: "#fb923c", DataSources: []string{"KQL", "NOSQL"},
		Scenarios: []string{"diversion", "atc_flow"},
		Priority:  55, Phase: 1,
	},
	{
		ID: "decision_coordinator", Name: "Decision Coordinator", ShortName: "Decision",
		Category: domain.CategoryCoordinator, Description: "General decision synthesis for non-hub scenarios",
		Icon: "Cpu", Color: "#818cf8",
		Scenarios: []string{"predictive_maintenance", "diversion", "crew_fatigue", "safety_incident"},
		Priority:  100, Phase: 1,
	},

	// Placeholder agents, phase 2
	{
		ID: "fuel_optimizer", Name: "Fuel Optimizer", ShortName: "Fuel",
		Category: domain.CategoryPlaceholder, Description: "Fuel optimization analysis (placeholder)",
		Icon: "Fuel", Color: "#14b8a6", DataSources: []string{"KQL", "SQL", "FABRIC_SQL"},
		Scenarios: []string{"fuel_optimization"},
		Priority:  65, Phase: 2,
	},
	{
		ID: "gate_optimizer", Name: "Gate Optimizer", ShortName: "Gate",
		Category: domain.CategoryPlaceholder, Description: "Gate/stand reassignment optimization (placeholder)",
		Icon: "DoorOpen", Color: "#a855f7", DataSources: []string{"SQL", "GRAPH"},
		Scenarios: []string{"gate_reassignment"},
		Priority:  66, Phase: 2,
	},
	{
		ID: "atc_flow_advisor", Name: "ATC Flow Advisor", ShortName: "ATC",
		Category: domain.CategoryPlaceholder, Description: "ATC flow management advisory (placeholder)",
		Icon: "Radio", Color: "#84cc16", DataSources: []string{"KQL", "FABRIC_SQL"},
		Scenarios: []string{"atc_flow"},
		Priority:  67, Phase: 2,
	},
	{
		ID: "historical_analyst", Name: "Historical Analyst", ShortName: "Historical",
		Category: domain.CategoryPlaceholder, Description: "BTS historical delay analysis (placeholder)",
		Icon: "History", Color: "#d946ef", DataSources: []string{"FABRIC_SQL", "VECTOR_OPS"},
		Scenarios: []string{"delay_analysis"},
		Priority:  68, Phase: 2,
	},
	{
		ID: "airport_ops_advisor", Name: "Airport Ops Advisor", ShortName: "Airport",
		Category: domain.CategoryPlaceholder, Description: "Airport operations advisory (placeholder)",
		Icon: "Building", Color: "#78716c", DataSources: []string{"SQL", "VECTOR_AIRPORT"},
		Scenarios: []string{"turnaround", "gate_reassignment"},
		Priority:  69, Phase: 2,
	},
	{
		ID: "cost_analyst", Name: "Cost Analyst", ShortName: "Cost",
		Category: domain.CategoryPlaceholder, Description: "Cost impact analysis (placeholder)",
		Icon: "DollarSign", Color: "#fbbf24", DataSources: []string{"FABRIC_SQL", "SQL"},
		Scenarios: []string{"turnaround", "fuel_optimization"},
		Priority:  70, Phase: 2,
	},
}

// scenarios are registered in a fixed order so keyword ties resolve to
// the first-registered scenario.
var scenarios = []domain.ScenarioDefinition{
	{
		Name: "hub_disruption",
		Keywords: []string{
			"disruption", "hub", "ground stop", "thunderstorm", "grounded", "runway closure",
			"terminal closure", "multiple flights", "gate hold", "delay recovery",
			"recovery plan", "mass cancellation",
		},
		AgentIDs: []string{
			"situation_assessment", "fleet_recovery", "crew_recovery",
			"network_impact", "weather_safety", "passenger_impact",
		},
		CoordinatorID: "recovery_coordinator",
	},
	{
		Name: "predictive_maintenance",
		Keywords: []string{
			"maintenance", "mel", "techlog", "minimum equipment", "deferred",
			"jasc", "predictive", "component failure", "fleet health",
		},
		AgentIDs:      []string{"fleet_recovery", "maintenance_predictor", "regulatory_compliance", "network_impact"},
		CoordinatorID: "decision_coordinator",
	},
	{
		Name: "diversion",
		Keywords: []string{
			"diversion", "divert", "alternate", "fuel critical", "emergency",
			"medical emergency", "go-around", "missed approach",
		},
		AgentIDs: []string{
			"situation_assessment", "weather_safety", "diversion_advisor",
			"route_planner", "real_time_monitor",
		},
		CoordinatorID: "decision_coordinator",
	},
	{
		Name: "crew_fatigue",
		Keywords: []string{
			"fatigue", "duty limit", "far 117", "crew rest", "red-eye",
			"cumulative duty", "legality", "crew scheduling",
		},
		AgentIDs: []string{
			"crew_recovery", "crew_fatigue_assessor", "regulatory_compliance",
			"situation_assessment",
		},
		CoordinatorID: "decision_coordinator",
	},
}

// Agents returns the full registry.
func Agents() []domain.AgentProfile {
	return catalog
}

// AgentByID looks up one profile.
func AgentByID(id string) (domain.AgentProfile, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return domain.AgentProfile{}, false
}

// Scenarios returns the scenario table in registration order.
func Scenarios() []domain.ScenarioDefinition {
	return scenarios
}

// ScenarioByName looks up a scenario, falling back to the default.
func ScenarioByName(name string) domain.ScenarioDefinition {
	for _, s := range scenarios {
		if s.Name == name {
			return s
		}
	}
	return scenarios[0]
}
