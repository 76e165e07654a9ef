package sim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// ErrTopologyConstructed is returned when ConstructTopo runs twice on one topology.
var ErrTopologyConstructed = errors.New("topology already constructed")

// Topology is the arena holding every node of the switch/expander tree.
// Switches[0] is the root, owned by the controller. Expanders are kept in
// registration order; leaf N of a description refers to Expanders[N-1].
type Topology struct {
	Expanders []*Expander
	Switches  []*Switch

	congestionLatency float64
	rng               *PartitionedRNG
	constructed       bool
}

// NewTopology creates an arena containing only the root switch.
func NewTopology(congestionLatency float64, rng *PartitionedRNG) *Topology {
	if rng == nil {
		rng = NewPartitionedRNG(NewSimulationKey(0))
	}
	t := &Topology{congestionLatency: congestionLatency, rng: rng}
	t.Switches = []*Switch{newSwitch(t, 0, congestionLatency)}
	return t
}

// Root returns the root switch.
func (t *Topology) Root() *Switch { return t.Switches[0] }

// InsertEndPoint registers an expander for later placement by ConstructTopo.
func (t *Topology) InsertEndPoint(e *Expander) {
	t.Expanders = append(t.Expanders, e)
}

// Expander returns the placed expander with the given ID.
func (t *Topology) Expander(id int) (*Expander, bool) {
	if id < 0 || id >= len(t.Expanders) || t.Expanders[id].ID != id {
		return nil, false
	}
	return t.Expanders[id], true
}

// Walk visits every switch depth-first from the root, then its expanders,
// then recurses into its child switches.
func (t *Topology) Walk(visit func(sw *Switch, depth int)) {
	var dfs func(sw *Switch, depth int)
	dfs = func(sw *Switch, depth int) {
		visit(sw, depth)
		for _, child := range sw.ChildSwitches() {
			dfs(child, depth+1)
		}
	}
	dfs(t.Root(), 0)
}

// Endpoints returns every placed expander in DFS order.
func (t *Topology) Endpoints() []*Expander {
	var out []*Expander
	t.Walk(func(sw *Switch, _ int) {
		out = append(out, sw.ChildExpanders()...)
	})
	return out
}

// tokenize splits a description into "(", ")", "," and integer tokens.
func tokenize(desc string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i, c := range desc {
		switch {
		case c == '(' || c == ')' || c == ',':
			flush()
			tokens = append(tokens, string(c))
		case unicode.IsSpace(c):
			flush()
		case c >= '0' && c <= '9':
			cur.WriteRune(c)
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	flush()
	return tokens, nil
}

// ConstructTopo builds the tree from a bracket description such as "(1,(2,3))".
// The first "(" is absorbed into the root switch. On any error the arena is
// left unchanged and no expander is placed.
func (t *Topology) ConstructTopo(desc string) error {
	if t.constructed {
		return ErrTopologyConstructed
	}
	tokens, err := tokenize(desc)
	if err != nil {
		return fmt.Errorf("parsing topology %q: %w", desc, err)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("parsing topology %q: empty description", desc)
	}

	root := newSwitch(t, 0, t.congestionLatency)
	switches := []*Switch{root}
	placed := make(map[int]bool)
	stack := []*Switch{root}
	rootOpened, rootClosed := false, false
	expectItem := true

	for pos, tok := range tokens {
		if rootClosed {
			return fmt.Errorf("parsing topology %q: unexpected %q after the root closed", desc, tok)
		}
		switch tok {
		case "(":
			if !expectItem {
				return fmt.Errorf("parsing topology %q: unexpected \"(\" at token %d", desc, pos)
			}
			if pos == 0 {
				rootOpened = true
				continue
			}
			sw := newSwitch(t, len(switches), t.congestionLatency)
			parent := stack[len(stack)-1]
			parent.switches = append(parent.switches, sw.ID)
			parent.children = append(parent.children, nodeRef{kind: switchNode, index: sw.ID})
			switches = append(switches, sw)
			stack = append(stack, sw)
		case ",":
			if expectItem || !rootOpened {
				return fmt.Errorf("parsing topology %q: misplaced \",\" at token %d", desc, pos)
			}
			expectItem = true
		case ")":
			if !rootOpened || len(stack) == 0 {
				return fmt.Errorf("parsing topology %q: unbalanced number of parentheses", desc)
			}
			if expectItem {
				return fmt.Errorf("parsing topology %q: empty group or trailing \",\" at token %d", desc, pos)
			}
			stack = stack[:len(stack)-1]
			rootClosed = len(stack) == 0
		default:
			if !expectItem {
				return fmt.Errorf("parsing topology %q: missing \",\" before %q", desc, tok)
			}
			n, err := strconv.Atoi(tok)
			if err != nil {
				return fmt.Errorf("parsing topology %q: %w", desc, err)
			}
			if n < 1 || n > len(t.Expanders) {
				return fmt.Errorf("parsing topology %q: leaf %d out of range [1, %d]", desc, n, len(t.Expanders))
			}
			if placed[n-1] {
				return fmt.Errorf("parsing topology %q: expander %d placed twice", desc, n)
			}
			placed[n-1] = true
			parent := stack[len(stack)-1]
			parent.expanders = append(parent.expanders, n-1)
			parent.children = append(parent.children, nodeRef{kind: expanderNode, index: n - 1})
			expectItem = false
			if !rootOpened {
				rootClosed = true
			}
		}
	}
	if rootOpened && !rootClosed {
		return fmt.Errorf("parsing topology %q: unbalanced number of parentheses", desc)
	}

	t.Switches = switches
	for idx := range placed {
		t.Expanders[idx].place(idx, t.rng.ForSubsystem(SubsystemExpander(idx)))
	}
	t.constructed = true
	logrus.Infof("constructed topology %s: %d switches, %d expanders", t.String(), len(t.Switches), len(placed))
	return nil
}

// String renders the tree back into the bracket grammar.
func (t *Topology) String() string {
	var b strings.Builder
	var render func(sw *Switch)
	render = func(sw *Switch) {
		b.WriteByte('(')
		for i, c := range sw.children {
			if i > 0 {
				b.WriteByte(',')
			}
			if c.kind == expanderNode {
				b.WriteString(strconv.Itoa(c.index + 1))
			} else {
				render(t.Switches[c.index])
			}
		}
		b.WriteByte(')')
	}
	render(t.Root())
	return b.String()
}
