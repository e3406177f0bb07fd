package embedded

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Step is one user task of a parsed process, in execution order.
type Step struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Assignee string `json:"assignee,omitempty"`
	Priority int    `json:"priority"`
}

// ParsedProcess is an executable process extracted from a BPMN document.
type ParsedProcess struct {
	Key   string
	Name  string
	Steps []Step
}

type bpmnDefinitions struct {
	XMLName   xml.Name      `xml:"definitions"`
	Processes []bpmnProcess `xml:"process"`
}

type bpmnProcess struct {
	ID          string             `xml:"id,attr"`
	Name        string             `xml:"name,attr"`
	Executable  string             `xml:"isExecutable,attr"`
	StartEvents []bpmnNode         `xml:"startEvent"`
	UserTasks   []bpmnUserTask     `xml:"userTask"`
	Flows       []bpmnSequenceFlow `xml:"sequenceFlow"`
}

type bpmnNode struct {
	ID string `xml:"id,attr"`
}

type bpmnUserTask struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Assignee string `xml:"assignee,attr"`
	Priority string `xml:"priority,attr"`
}

type bpmnSequenceFlow struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"sourceRef,attr"`
	Target string `xml:"targetRef,attr"`
}

// ParseBPMN extracts the executable processes of a BPMN 2.0 document. User
// tasks are ordered along the sequence flows from the start event; when the
// flows do not reach every user task the document order is used instead.
// Every problem found is returned, not only the first.
func ParseBPMN(content []byte) ([]ParsedProcess, []string) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, []string{"deployment resource is empty"}
	}

	var defs bpmnDefinitions
	if err := xml.Unmarshal(content, &defs); err != nil {
		return nil, []string{fmt.Sprintf("invalid BPMN XML: %v", err)}
	}

	var (
		out  []ParsedProcess
		errs []string
		seen = map[string]bool{}
	)
	for i, p := range defs.Processes {
		if strings.EqualFold(p.Executable, "false") {
			continue
		}
		key := strings.TrimSpace(p.ID)
		if key == "" {
			errs = append(errs, fmt.Sprintf("process #%d has no id", i+1))
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("process %s is defined more than once", key))
			continue
		}
		seen[key] = true

		steps, stepErrs := orderSteps(p)
		if len(stepErrs) > 0 {
			errs = append(errs, stepErrs...)
			continue
		}

		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = key
		}
		out = append(out, ParsedProcess{Key: key, Name: name, Steps: steps})
	}

	if len(out) == 0 && len(errs) == 0 {
		errs = append(errs, "no executable process found in deployment resource")
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func orderSteps(p bpmnProcess) ([]Step, []string) {
	var errs []string
	byID := make(map[string]Step, len(p.UserTasks))
	docOrder := make([]Step, 0, len(p.UserTasks))

	for _, ut := range p.UserTasks {
		id := strings.TrimSpace(ut.ID)
		if id == "" {
			errs = append(errs, fmt.Sprintf("process %s: user task without id", p.ID))
			continue
		}
		if _, dup := byID[id]; dup {
			errs = append(errs, fmt.Sprintf("process %s: duplicate element id %s", p.ID, id))
			continue
		}
		priority := 50
		if ut.Priority != "" {
			v, err := strconv.Atoi(strings.TrimSpace(ut.Priority))
			if err != nil {
				errs = append(errs, fmt.Sprintf("process %s: task %s has invalid priority %q", p.ID, id, ut.Priority))
				continue
			}
			priority = v
		}
		name := strings.TrimSpace(ut.Name)
		if name == "" {
			name = id
		}
		s := Step{ID: id, Name: name, Assignee: strings.TrimSpace(ut.Assignee), Priority: priority}
		byID[id] = s
		docOrder = append(docOrder, s)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if len(p.StartEvents) == 0 || len(p.Flows) == 0 {
		return docOrder, nil
	}

	next := make(map[string]string, len(p.Flows))
	for _, f := range p.Flows {
		if _, ok := next[f.Source]; !ok {
			next[f.Source] = f.Target
		}
	}

	walked := make([]Step, 0, len(docOrder))
	visited := map[string]bool{}
	for node := p.StartEvents[0].ID; node != "" && !visited[node]; node = next[node] {
		visited[node] = true
		if s, ok := byID[node]; ok {
			walked = append(walked, s)
		}
	}
	if len(walked) != len(docOrder) {
		return docOrder, nil
	}
	return walked, nil
}
