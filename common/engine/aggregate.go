package engine

import "sort"

// RunView joins a run with the template version it is pinned to and the
// tasks it produced
type RunView struct {
	// Template is nil when the run is orphaned
	Template *ProcessTemplate `json:"template"`
	Run      ProcessRun       `json:"run"`
	Tasks    []Task           `json:"tasks"`
}

// RunFilter narrows a dashboard listing. Zero value keeps everything.
type RunFilter struct {
	HideCompleted bool
	Status        RunStatus
	ProcessID     string

	// Expression is an optional CEL boolean over `run` and `template`
	Expression string
}

// AllRuns enumerates every run of every stored template version, joined with
// tasks by ProcessRunID. Runs keep their per-version insertion order.
func AllRuns(templates []ProcessTemplate, tasks []Task) []RunView {
	byRun := tasksByRun(tasks)

	views := make([]RunView, 0)
	seen := make(map[string]struct{})
	for i := range templates {
		tpl := templates[i]
		for _, run := range tpl.Runs {
			if _, dup := seen[run.ID]; dup {
				continue
			}
			seen[run.ID] = struct{}{}

			pinned := stripRuns(tpl)
			joined := byRun[run.ID]
			if joined == nil {
				joined = []Task{}
			}
			views = append(views, RunView{Template: &pinned, Run: run, Tasks: joined})
		}
	}
	return views
}

// JoinRuns joins each run, as given, with its pinned version from templates
// and its tasks. The run's own state wins over any copy hydrated into
// templates. A run whose version is not in templates gets a nil Template.
func JoinRuns(runs []ProcessRun, templates []ProcessTemplate, tasks []Task) []RunView {
	byRun := tasksByRun(tasks)

	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		joined := byRun[run.ID]
		if joined == nil {
			joined = []Task{}
		}
		view := RunView{Run: run, Tasks: joined}
		if tpl, ok := FindVersion(run.ProcessID, run.TemplateVersion, templates); ok {
			pinned := stripRuns(tpl)
			view.Template = &pinned
		}
		views = append(views, view)
	}
	return views
}

// Unpinned returns the process ids of views without a template, once each
func Unpinned(views []RunView) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, v := range views {
		if v.Template != nil {
			continue
		}
		if _, dup := seen[v.Run.ProcessID]; dup {
			continue
		}
		seen[v.Run.ProcessID] = struct{}{}
		ids = append(ids, v.Run.ProcessID)
	}
	return ids
}

// Filter applies the structural part of f. Expression is handled by
// (*RunFilterEvaluator).Filter.
func Filter(views []RunView, f RunFilter) []RunView {
	out := make([]RunView, 0, len(views))
	for _, v := range views {
		if f.HideCompleted && v.Run.IsCompleted() {
			continue
		}
		if f.Status != "" && v.Run.Status != f.Status {
			continue
		}
		if f.ProcessID != "" && v.Run.ProcessID != f.ProcessID {
			continue
		}
		out = append(out, v)
	}
	return out
}

// SortByStartedAt orders views by run start time, newest first when desc.
// Ties keep their relative order.
func SortByStartedAt(views []RunView, desc bool) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Run.StartedAt, views[j].Run.StartedAt
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func tasksByRun(tasks []Task) map[string][]Task {
	byRun := make(map[string][]Task)
	for _, t := range tasks {
		if t.ProcessRunID == "" {
			continue
		}
		byRun[t.ProcessRunID] = append(byRun[t.ProcessRunID], t)
	}
	return byRun
}

func stripRuns(t ProcessTemplate) ProcessTemplate {
	out := cloneTemplate(t)
	out.Runs = nil
	return out
}
