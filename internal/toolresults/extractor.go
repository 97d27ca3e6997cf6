package toolresults

// Extractor groups one turn's tool results by identity. It is built once and
// never mutated, so replaying the same envelopes always yields the same
// grouping.
type Extractor struct {
	groups map[ToolID][]Envelope
	order  []ToolID
}

// NewExtractor groups envelopes by ToolName, preserving input order within
// each group and first-seen order across groups.
func NewExtractor(envelopes []Envelope) *Extractor {
	x := &Extractor{groups: make(map[ToolID][]Envelope)}
	for _, env := range envelopes {
		if _, seen := x.groups[env.ToolName]; !seen {
			x.order = append(x.order, env.ToolName)
		}
		x.groups[env.ToolName] = append(x.groups[env.ToolName], env)
	}
	return x
}

// HasResults reports whether at least one envelope was grouped under id.
func (x *Extractor) HasResults(id ToolID) bool {
	return len(x.groups[id]) > 0
}

// GetResults returns the envelopes grouped under id. An identity that never
// appeared yields an empty, non-nil slice.
func (x *Extractor) GetResults(id ToolID) []Envelope {
	group := x.groups[id]
	out := make([]Envelope, len(group))
	copy(out, group)
	return out
}

// CalledToolIDs returns the identities present, in first-seen order.
func (x *Extractor) CalledToolIDs() []ToolID {
	out := make([]ToolID, len(x.order))
	copy(out, x.order)
	return out
}

// Results returns the typed results grouped under k's identity.
func Results[R Result](x *Extractor, k Key[R]) []R {
	group := x.groups[k.id]
	out := make([]R, 0, len(group))
	for _, env := range group {
		if r, ok := env.Result.(R); ok {
			out = append(out, r)
		}
	}
	return out
}
