package phase

import (
	"context"
	"testing"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

func step(id string, specialty models.Specialty, deps ...string) models.PlanStep {
	return models.PlanStep{ID: id, Title: id, Specialty: specialty, DependsOn: deps}
}

func TestPartition_GroupsBySpecialty(t *testing.T) {
	plan := models.Plan{
		TaskID: "t1",
		Steps: []models.PlanStep{
			step("s1", models.SpecialtyResearch),
			step("s2", models.SpecialtyResearch),
			step("s3", models.SpecialtyEngineering, "s1"),
			step("s4", models.SpecialtyWriting, "s3"),
		},
	}

	phases, err := Partition(plan)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(phases) != 3 {
		t.Fatalf("len(phases) = %d, want 3", len(phases))
	}
	if len(phases[0].StepIDs) != 2 {
		t.Errorf("phase-1 steps = %v, want [s1 s2]", phases[0].StepIDs)
	}
	if len(phases[1].DependsOn) != 1 || phases[1].DependsOn[0] != "phase-1" {
		t.Errorf("phase-2 DependsOn = %v, want [phase-1]", phases[1].DependsOn)
	}
	if len(phases[2].DependsOn) != 1 || phases[2].DependsOn[0] != "phase-2" {
		t.Errorf("phase-3 DependsOn = %v, want [phase-2]", phases[2].DependsOn)
	}
	for _, p := range phases {
		if p.Status != models.PhasePending {
			t.Errorf("phase %s status = %s, want pending", p.Name, p.Status)
		}
	}
}

func TestPartition_SplitsSingleGroup(t *testing.T) {
	plan := models.Plan{
		TaskID: "t1",
		Steps: []models.PlanStep{
			step("s1", models.SpecialtyEngineering),
			step("s2", models.SpecialtyEngineering),
			step("s3", models.SpecialtyEngineering),
		},
	}

	phases, err := Partition(plan)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(phases) != 2 {
		t.Fatalf("len(phases) = %d, want 2", len(phases))
	}
	if got := len(phases[0].StepIDs) + len(phases[1].StepIDs); got != 3 {
		t.Errorf("steps across phases = %d, want 3", got)
	}
}

func TestPartition_CapsAtFivePhases(t *testing.T) {
	specialties := []models.Specialty{
		models.SpecialtyResearch, models.SpecialtyEngineering, models.SpecialtyWriting,
		models.SpecialtyResearch, models.SpecialtyEngineering, models.SpecialtyWriting,
		models.SpecialtyResearch, models.SpecialtyEngineering,
	}
	plan := models.Plan{TaskID: "t1"}
	for i, sp := range specialties {
		plan.Steps = append(plan.Steps, step(stepID(i), sp))
	}

	phases, err := Partition(plan)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(phases) > 5 {
		t.Errorf("len(phases) = %d, want <= 5", len(phases))
	}

	// Step order is preserved across the partition.
	var flat []string
	for _, p := range phases {
		flat = append(flat, p.StepIDs...)
	}
	if len(flat) != len(specialties) {
		t.Fatalf("steps across phases = %d, want %d", len(flat), len(specialties))
	}
	for i, id := range flat {
		if id != stepID(i) {
			t.Fatalf("step order broken at %d: got %s", i, id)
		}
	}
}

func stepID(i int) string {
	return string(rune('a' + i))
}

func TestPartition_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		steps []models.PlanStep
	}{
		{"too few steps", []models.PlanStep{step("s1", models.SpecialtyGeneral)}},
		{"unknown dependency", []models.PlanStep{
			step("s1", models.SpecialtyGeneral),
			step("s2", models.SpecialtyGeneral, "nope"),
		}},
		{"forward dependency", []models.PlanStep{
			step("s1", models.SpecialtyGeneral, "s2"),
			step("s2", models.SpecialtyGeneral),
		}},
		{"duplicate step id", []models.PlanStep{
			step("s1", models.SpecialtyGeneral),
			step("s1", models.SpecialtyGeneral),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Partition(models.Plan{TaskID: "t1", Steps: tt.steps}); err == nil {
				t.Error("Partition should fail")
			}
		})
	}
}

func TestHeuristicPlanner(t *testing.T) {
	p := NewHeuristicPlanner()

	plan, err := p.BuildPlan(context.Background(), models.Task{
		ID:          "t1",
		Description: "implement the CSV importer",
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Steps) < 2 {
		t.Fatalf("len(Steps) = %d, want at least 2", len(plan.Steps))
	}
	if plan.Steps[1].Specialty != models.SpecialtyEngineering {
		t.Errorf("execute step specialty = %s, want engineering", plan.Steps[1].Specialty)
	}

	// The heuristic plan must always be partitionable.
	if _, err := Partition(plan); err != nil {
		t.Errorf("Partition(heuristic plan): %v", err)
	}

	if _, err := p.BuildPlan(context.Background(), models.Task{ID: "t2", Description: "  "}); err == nil {
		t.Error("BuildPlan should fail on an empty description")
	}
}
