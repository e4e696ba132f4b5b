package engine

// LatestVisible derives the current listing from every stored template version.
// For each id the highest version is selected; the id is left out entirely
// when that latest version is archived. Ids keep the order in which they first
// appear in all.
func LatestVisible(all []ProcessTemplate) []ProcessTemplate {
	latest, order := latestByID(all)

	visible := make([]ProcessTemplate, 0, len(order))
	for _, id := range order {
		t := latest[id]
		if t.IsArchived {
			continue
		}
		visible = append(visible, t)
	}
	return visible
}

// LatestArchived lists ids whose latest version is archived
func LatestArchived(all []ProcessTemplate) []ProcessTemplate {
	latest, order := latestByID(all)

	archived := make([]ProcessTemplate, 0)
	for _, id := range order {
		if t := latest[id]; t.IsArchived {
			archived = append(archived, t)
		}
	}
	return archived
}

// FindLatestByProcessID returns the highest version for id, archived or not
func FindLatestByProcessID(id string, all []ProcessTemplate) (ProcessTemplate, bool) {
	var (
		best  ProcessTemplate
		found bool
	)
	for _, t := range all {
		if t.ID != id {
			continue
		}
		if !found || t.EffectiveVersion() > best.EffectiveVersion() {
			best = t
			found = true
		}
	}
	return best, found
}

// FindVersion returns the exact version of id
func FindVersion(id string, version int, all []ProcessTemplate) (ProcessTemplate, bool) {
	for _, t := range all {
		if t.ID == id && t.EffectiveVersion() == version {
			return t, true
		}
	}
	return ProcessTemplate{}, false
}

// Versions returns every stored version of id in slice order
func Versions(id string, all []ProcessTemplate) []ProcessTemplate {
	out := make([]ProcessTemplate, 0)
	for _, t := range all {
		if t.ID == id {
			out = append(out, t)
		}
	}
	return out
}

// AllRunsAcrossVersions concatenates the runs of every version of id. Each
// version contributes its runs in insertion order; no ordering is defined
// across versions. A run id is reported once even if it was stored twice.
func AllRunsAcrossVersions(id string, all []ProcessTemplate) []ProcessRun {
	seen := make(map[string]struct{})
	runs := make([]ProcessRun, 0)
	for _, t := range all {
		if t.ID != id {
			continue
		}
		for _, r := range t.Runs {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			runs = append(runs, r)
		}
	}
	return runs
}

// CheckFresh reports ErrStaleTemplateReference when base is not the latest
// version of id. A missing id is fresh only for base 0 (first save).
func CheckFresh(id string, base int, all []ProcessTemplate) error {
	latest, ok := FindLatestByProcessID(id, all)
	if !ok {
		if base == 0 {
			return nil
		}
		return &StaleTemplateError{ProcessID: id, Base: base, Latest: 0}
	}
	if latest.EffectiveVersion() != base {
		return &StaleTemplateError{ProcessID: id, Base: base, Latest: latest.EffectiveVersion()}
	}
	return nil
}

func latestByID(all []ProcessTemplate) (map[string]ProcessTemplate, []string) {
	latest := make(map[string]ProcessTemplate)
	order := make([]string, 0)
	for _, t := range all {
		cur, ok := latest[t.ID]
		if !ok {
			order = append(order, t.ID)
			latest[t.ID] = t
			continue
		}
		if t.EffectiveVersion() > cur.EffectiveVersion() {
			latest[t.ID] = t
		}
	}
	return latest, order
}
