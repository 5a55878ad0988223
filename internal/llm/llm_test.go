package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// fakeCompleter returns a canned response and records the prompts it saw.
type fakeCompleter struct {
	response   string
	cost       float64
	err        error
	lastSystem string
	lastUser   string
}

func (f *fakeCompleter) Complete(_ context.Context, systemPrompt, userPrompt string) (string, float64, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.response, f.cost, f.err
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"json code block", "Here you go:\n```json\n{\"a\": 1}\n```\ndone", `{"a": 1}`},
		{"plain code block", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"raw json with prose", "The result is {\"a\": {\"b\": 2}} as requested.", `{"a": {"b": 2}}`},
		{"no json", "no structured content here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestScorer_ParsesModelResponse(t *testing.T) {
	fake := &fakeCompleter{response: `{"complexity": 6.5, "risk": 3, "rationale": "multi-step build"}`}
	s := &Scorer{client: fake}

	scores, err := s.Score(context.Background(), models.Task{ID: "t1", Description: "build the importer"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores.Complexity != 6.5 || scores.Risk != 3 {
		t.Errorf("Scores = %+v, want complexity 6.5 risk 3", scores)
	}
	if !strings.Contains(fake.lastUser, "build the importer") {
		t.Errorf("prompt missing task description: %q", fake.lastUser)
	}
}

func TestScorer_ClampsOutOfRangeScores(t *testing.T) {
	fake := &fakeCompleter{response: `{"complexity": 40, "risk": -2}`}
	s := &Scorer{client: fake}

	scores, err := s.Score(context.Background(), models.Task{ID: "t1", Description: "x"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores.Complexity != 10 || scores.Risk != 0 {
		t.Errorf("Scores = %+v, want clamped to [0,10]", scores)
	}
}

func TestScorer_FallsBackOnError(t *testing.T) {
	s := NewScorer(nil)
	s.client = &fakeCompleter{err: errors.New("api down")}

	scores, err := s.Score(context.Background(), models.Task{ID: "t1", Description: "list the invoices"})
	if err != nil {
		t.Fatalf("Score should fall back, got error: %v", err)
	}
	if scores.Rationale == "" {
		t.Error("fallback scores should carry a rationale")
	}
}

func TestScorer_FallsBackOnGarbage(t *testing.T) {
	s := NewScorer(nil)
	s.client = &fakeCompleter{response: "I cannot help with that."}

	if _, err := s.Score(context.Background(), models.Task{ID: "t1", Description: "list the invoices"}); err != nil {
		t.Fatalf("Score should fall back on unparseable output, got error: %v", err)
	}
}

func TestPlanner_ParsesPlan(t *testing.T) {
	fake := &fakeCompleter{response: "```json\n" + `{"steps": [
		{"id": "s1", "title": "Research formats", "specialty": "research", "acceptance_criteria": ["formats compared"]},
		{"id": "s2", "title": "Build importer", "specialty": "engineering", "depends_on": ["s1"]}
	]}` + "\n```"}
	p := &Planner{client: fake}

	plan, err := p.BuildPlan(context.Background(), models.Task{ID: "t1", Description: "import the data"})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.TaskID != "t1" {
		t.Errorf("TaskID = %q, want t1", plan.TaskID)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(plan.Steps))
	}
	if plan.Steps[1].DependsOn[0] != "s1" {
		t.Errorf("step 2 DependsOn = %v, want [s1]", plan.Steps[1].DependsOn)
	}
}

func TestPlanner_RepairsBadSteps(t *testing.T) {
	// Duplicate id, unknown specialty, and a forward dependency all get
	// repaired rather than failing the plan.
	fake := &fakeCompleter{response: `{"steps": [
		{"id": "s1", "title": "one", "specialty": "wizardry", "depends_on": ["s2"]},
		{"id": "s1", "title": "two", "specialty": "engineering"}
	]}`}
	p := &Planner{client: fake}

	plan, err := p.BuildPlan(context.Background(), models.Task{ID: "t1", Description: "x"})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Steps[0].Specialty != models.SpecialtyGeneral {
		t.Errorf("unknown specialty should default to general, got %s", plan.Steps[0].Specialty)
	}
	if len(plan.Steps[0].DependsOn) != 0 {
		t.Errorf("forward dependency should be dropped, got %v", plan.Steps[0].DependsOn)
	}
	if plan.Steps[0].ID == plan.Steps[1].ID {
		t.Errorf("duplicate step ids should be reassigned, both are %q", plan.Steps[0].ID)
	}
}

func TestPlanner_EmptyPlanFails(t *testing.T) {
	p := &Planner{client: &fakeCompleter{response: `{"steps": []}`}}
	if _, err := p.BuildPlan(context.Background(), models.Task{ID: "t1", Description: "x"}); err == nil {
		t.Error("BuildPlan should fail on an empty plan")
	}
}

func TestRunner_ParsesArtifacts(t *testing.T) {
	fake := &fakeCompleter{
		response: `{"artifacts": [{"name": "report.md", "content": "# Report", "summary": "the report"}]}`,
		cost:     0.25,
	}
	r := &Runner{client: fake}

	res, err := r.Run(context.Background(), models.WorkItem{
		ID:        "w1",
		Specialty: models.SpecialtyWriting,
		Payload: models.WorkPayload{
			TaskID:       "t1",
			Instructions: "write the report",
			Feedback:     "add the totals section",
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Errorf("Success = false, want true: %+v", res)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Name != "report.md" {
		t.Errorf("Artifacts = %+v, want one report.md", res.Artifacts)
	}
	if res.CostDelta != 0.25 {
		t.Errorf("CostDelta = %v, want 0.25", res.CostDelta)
	}
	if !strings.Contains(fake.lastUser, "add the totals section") {
		t.Error("reviewer feedback missing from the work prompt")
	}
	if !strings.Contains(fake.lastSystem, "writing specialist") {
		t.Errorf("system prompt should match the specialty, got %q", fake.lastSystem)
	}
}

func TestRunner_ProseFallback(t *testing.T) {
	r := &Runner{client: &fakeCompleter{response: "Here is the answer in plain prose."}}

	res, err := r.Run(context.Background(), models.WorkItem{ID: "w1", Specialty: models.SpecialtyGeneral})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || len(res.Artifacts) != 1 {
		t.Fatalf("prose response should become one artifact: %+v", res)
	}
	if res.Artifacts[0].Name != "response.md" {
		t.Errorf("Artifacts[0].Name = %q, want response.md", res.Artifacts[0].Name)
	}
}

func TestRunner_EmptyResponseFails(t *testing.T) {
	r := &Runner{client: &fakeCompleter{response: "   "}}

	res, err := r.Run(context.Background(), models.WorkItem{ID: "w1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Error("empty response should be an execution failure")
	}
	if res.ErrorKind != models.ErrorExecution {
		t.Errorf("ErrorKind = %s, want execution_error", res.ErrorKind)
	}
}

func TestRunner_TransportErrorPropagates(t *testing.T) {
	r := &Runner{client: &fakeCompleter{err: errors.New("connection reset")}}

	if _, err := r.Run(context.Background(), models.WorkItem{ID: "w1"}); err == nil {
		t.Error("transport errors must propagate so the pool can mark the worker errored")
	}
}

func TestCriteriaChecker_ParsesVerdict(t *testing.T) {
	fake := &fakeCompleter{response: `{"met": false, "unmet_criteria": ["totals included"], "detail": "missing totals"}`}
	c := &CriteriaChecker{client: fake}

	met, detail, err := c.CheckCriteria(context.Background(),
		[]models.Artifact{{Name: "report.md", Content: "body"}},
		[]string{"totals included"})
	if err != nil {
		t.Fatalf("CheckCriteria: %v", err)
	}
	if met {
		t.Error("met = true, want false")
	}
	if !strings.Contains(detail, "totals included") {
		t.Errorf("detail = %q, want the unmet criterion named", detail)
	}
}

func TestCriteriaChecker_FallsBackOnError(t *testing.T) {
	c := NewCriteriaChecker(nil)
	c.client = &fakeCompleter{err: errors.New("api down")}

	met, _, err := c.CheckCriteria(context.Background(),
		[]models.Artifact{{Name: "report.md", Content: "monthly revenue totals by region"}},
		[]string{"report covers revenue totals"})
	if err != nil {
		t.Fatalf("CheckCriteria should fall back, got error: %v", err)
	}
	if !met {
		t.Error("keyword fallback should judge the matching criterion met")
	}
}
