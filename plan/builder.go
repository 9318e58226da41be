package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/traits"
	"github.com/planrun/planrun/types"
)

// Builder constructs plans from node collections. Every Build call
// evaluates gating predicates afresh; nothing is cached across builds
// since the configuration can change a gate's effective outcome.
type Builder struct {
	cfg *events.Configuration
	log log.Logger
}

// NewBuilder creates a plan builder for the given configuration.
func NewBuilder(cfg *events.Configuration, logger log.Logger) (*Builder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Builder{cfg: cfg, log: logger.New("component", "plan-builder")}, nil
}

// Build resolves the node collection into an execution plan. Structural
// problems (duplicate identities, dangling parent references) and gate
// evaluation failures become record-issue or skip steps on the affected
// nodes; they never abort the whole build.
func (b *Builder) Build(ctx context.Context, nodes []types.Node) (*Plan, error) {
	// Sibling ordering follows declaration order throughout.
	sorted := make([]types.Node, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	byID := make(map[types.TestID]types.Node, len(sorted))
	isDuplicate := make([]bool, len(sorted))
	var duplicates []types.Node
	for i, n := range sorted {
		if _, exists := byID[n.ID]; exists {
			isDuplicate[i] = true
			duplicates = append(duplicates, n)
			continue
		}
		byID[n.ID] = n
	}

	children := make(map[types.TestID][]types.Node)
	var roots []types.Node
	var orphans []types.Node
	for i, n := range sorted {
		if isDuplicate[i] {
			continue // duplicate, reported below
		}
		if n.Parent == "" {
			roots = append(roots, n)
			continue
		}
		parent, ok := byID[n.Parent]
		if !ok {
			orphans = append(orphans, n)
			continue
		}
		if !parent.IsSuite() {
			orphans = append(orphans, n)
			continue
		}
		children[n.Parent] = append(children[n.Parent], n)
	}

	p := &Plan{}
	for _, root := range roots {
		step := b.buildStep(ctx, root, children, nil, "", false)
		if step != nil {
			p.Steps = append(p.Steps, step)
		}
	}

	// Structural violations surface as steps so the run reports them
	// instead of crashing or silently dropping declarations.
	for _, dup := range duplicates {
		issue := events.APIMisuseIssue(fmt.Sprintf("duplicate test identity %q", dup.ID))
		p.Steps = append(p.Steps, &Step{Node: dup, Action: RecordIssueAction(issue)})
		b.log.Warn("Duplicate test identity", "id", dup.ID)
	}
	for _, orphan := range orphans {
		issue := events.SystemIssue(fmt.Errorf("node %q references parent %q which is not a known suite", orphan.ID, orphan.Parent))
		p.Steps = append(p.Steps, &Step{Node: orphan, Action: RecordIssueAction(issue)})
		b.log.Warn("Dangling parent reference", "id", orphan.ID, "parent", orphan.Parent)
	}

	p.Walk(func(*Step) { p.stepCount++ })
	b.log.Debug("Plan built", "steps", p.Len(), "roots", len(p.Steps))
	return p, nil
}

// buildStep resolves one surviving node and recurses into its children.
// ancestorChain is the resolved trait chain of the enclosing suites,
// outermost first. inheritedSkip carries a disabled ancestor's reason:
// when set, descendant gates are not evaluated at all. ancestorMatched
// reports that an enclosing suite satisfied the name filter, which
// includes the whole subtree.
func (b *Builder) buildStep(ctx context.Context, node types.Node, childNodes map[types.TestID][]types.Node, ancestorChain []traits.Trait, inheritedSkip string, ancestorMatched bool) *Step {
	chain := traits.Resolve(node.Traits, ancestorChain)

	f := b.cfg.Filter
	tagsOK := f.MatchTags(traits.CombinedTags(chain))
	matched := tagsOK && (ancestorMatched || f.MatchName(node.ID))
	if !b.survives(node, childNodes, chain, matched, tagsOK) {
		return nil
	}

	step := &Step{
		Node:       node,
		Traits:     chain,
		TimeLimit:  traits.EffectiveTimeLimit(chain, b.cfg.TimeLimit),
		Serialized: traits.IsSerialized(chain),
	}

	switch {
	case inheritedSkip != "":
		step.Action = SkipAction(inheritedSkip)
	default:
		// Ancestor gates were already evaluated on the ancestors' own
		// steps, so only node-local gates run here. Each gate is thus
		// evaluated at most once per build.
		verdict, err := traits.EvaluateGates(ctx, node.Traits, traits.GateContext{Test: string(node.ID)})
		switch {
		case errors.Is(err, traits.ErrGatePanic):
			step.Action = RecordIssueAction(events.APIMisuseIssue(err.Error()))
			b.log.Warn("Gate panicked", "id", node.ID, "error", err)
		case err != nil:
			step.Action = RecordIssueAction(events.SystemIssue(err))
			b.log.Warn("Gate evaluation failed", "id", node.ID, "error", err)
		case !verdict.Enabled:
			step.Action = SkipAction(verdict.Reason)
		default:
			step.Action = RunAction()
		}
	}

	// Descendants of a skipped suite are planned as skips with the
	// inherited reason; their own gates stay unevaluated.
	childSkip := inheritedSkip
	if step.Action.Kind == ActionSkip {
		childSkip = step.Action.SkipReason
	}
	if step.Action.Kind == ActionRecordIssue && node.IsSuite() {
		childSkip = fmt.Sprintf("suite %q could not be planned", node.ID)
	}

	for _, child := range childNodes[node.ID] {
		if cs := b.buildStep(ctx, child, childNodes, chain, childSkip, matched); cs != nil {
			step.Children = append(step.Children, cs)
		}
	}
	return step
}

// survives applies the configuration filter. Filtering is structural: a
// suite that does not match and has no surviving descendants is dropped
// entirely, not emitted as a skip. A matched suite keeps its whole
// subtree; an unmatched suite is kept only while some descendant matches
// on its own.
func (b *Builder) survives(node types.Node, childNodes map[types.TestID][]types.Node, chain []traits.Trait, matched, tagsOK bool) bool {
	if node.Kind == types.KindFunction {
		return matched
	}
	if matched {
		return true
	}
	if !tagsOK {
		// An excluded tag vetoes the whole subtree; descendants inherit
		// it through their resolved chains anyway.
		return false
	}
	f := b.cfg.Filter
	for _, child := range childNodes[node.ID] {
		childChain := traits.Resolve(child.Traits, chain)
		childTagsOK := f.MatchTags(traits.CombinedTags(childChain))
		childMatched := childTagsOK && f.MatchName(child.ID)
		if b.survives(child, childNodes, childChain, childMatched, childTagsOK) {
			return true
		}
	}
	return false
}
