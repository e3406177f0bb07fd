package embedded

import (
	"os"
	"strings"
	"testing"
)

func TestParseBPMN_LoanFixture(t *testing.T) {
	content, err := os.ReadFile("testdata/loan-v1.bpmn")
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}

	procs, errs := ParseBPMN(content)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(procs) != 1 {
		t.Fatalf("expected 1 process, got %d", len(procs))
	}

	p := procs[0]
	if p.Key != "loanApproval" || p.Name != "Loan Approval" {
		t.Errorf("unexpected process %+v", p)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(p.Steps))
	}
	if p.Steps[0].ID != "review" || p.Steps[0].Assignee != "officer" || p.Steps[0].Priority != 50 {
		t.Errorf("unexpected first step %+v", p.Steps[0])
	}
	if p.Steps[1].ID != "approve" || p.Steps[1].Priority != 80 {
		t.Errorf("unexpected second step %+v", p.Steps[1])
	}
}

func TestParseBPMN_FollowsSequenceFlows(t *testing.T) {
	doc := `<definitions>
  <process id="p" isExecutable="true">
    <startEvent id="s"/>
    <userTask id="second"/>
    <userTask id="first"/>
    <sequenceFlow id="a" sourceRef="s" targetRef="first"/>
    <sequenceFlow id="b" sourceRef="first" targetRef="second"/>
    <sequenceFlow id="c" sourceRef="second" targetRef="e"/>
    <endEvent id="e"/>
  </process>
</definitions>`

	procs, errs := ParseBPMN([]byte(doc))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	steps := procs[0].Steps
	if len(steps) != 2 || steps[0].ID != "first" || steps[1].ID != "second" {
		t.Errorf("steps not in flow order: %+v", steps)
	}
	if steps[0].Name != "first" {
		t.Errorf("name should default to id, got %q", steps[0].Name)
	}
}

func TestParseBPMN_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "   ", "empty"},
		{"not xml", "loan", "invalid BPMN XML"},
		{"wrong root", "<process id=\"p\"/>", "invalid BPMN XML"},
		{"no executable process", `<definitions><process id="p" isExecutable="false"/></definitions>`, "no executable process"},
		{"missing id", `<definitions><process/></definitions>`, "has no id"},
		{"duplicate process", `<definitions><process id="p"/><process id="p"/></definitions>`, "more than once"},
		{"duplicate task", `<definitions><process id="p"><userTask id="t"/><userTask id="t"/></process></definitions>`, "duplicate element id t"},
		{"bad priority", `<definitions><process id="p"><userTask id="t" priority="high"/></process></definitions>`, "invalid priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			procs, errs := ParseBPMN([]byte(tt.content))
			if procs != nil {
				t.Errorf("expected no processes, got %+v", procs)
			}
			if len(errs) == 0 {
				t.Fatal("expected errors")
			}
			if !strings.Contains(strings.Join(errs, "; "), tt.want) {
				t.Errorf("errors %v do not mention %q", errs, tt.want)
			}
		})
	}
}

func TestParseBPMN_CollectsAllErrors(t *testing.T) {
	doc := `<definitions>
  <process id="a"><userTask id="x" priority="?"/></process>
  <process id="b"><userTask/></process>
</definitions>`

	_, errs := ParseBPMN([]byte(doc))
	if len(errs) != 2 {
		t.Errorf("expected 2 errors, got %v", errs)
	}
}
