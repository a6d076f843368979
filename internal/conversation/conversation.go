package conversation

// Conversation model: one scripted protocol exchange as an arena-backed
// tree of nodes. A node either generates an outbound message or matches
// an inbound event; children are ordered continuations and the optional
// sibling is a same-depth continuation taken when a node has no
// children. Nodes do no I/O of their own.

import (
	"fmt"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/mutate"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// NodeID indexes a node inside its conversation's arena.
type NodeID int

// None marks an absent node reference.
const None NodeID = -1

// Kind discriminates generator and matcher nodes.
type Kind int

// Node kinds.
const (
	KindGenerator Kind = iota
	KindMatcher
)

// PayloadKind selects what a generator node produces.
type PayloadKind int

// Generator payload kinds.
const (
	PayloadConnect PayloadKind = iota
	PayloadClientHello
	PayloadChangeCipherSpec
	PayloadAlert
	PayloadApplicationData
	PayloadRaw
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadConnect:
		return "connect"
	case PayloadClientHello:
		return "client_hello"
	case PayloadChangeCipherSpec:
		return "change_cipher_spec"
	case PayloadAlert:
		return "alert"
	case PayloadApplicationData:
		return "application_data"
	case PayloadRaw:
		return "raw"
	default:
		return fmt.Sprintf("{PayloadKind %d}", int(k))
	}
}

// PayloadSpec parameterizes a generator node.
type PayloadSpec struct {
	Kind PayloadKind

	// Connect
	Host string
	Port int

	// ClientHello
	Hello *protocol.ClientHelloSpec

	// Alert
	Level       spec.AlertLevel
	Description spec.AlertDescription

	// ApplicationData / Raw
	Data        []byte
	ContentType spec.ContentType
}

// MatchKind selects what a matcher node expects.
type MatchKind int

// Matcher kinds.
const (
	MatchHandshake MatchKind = iota
	MatchAlert
	MatchChangeCipherSpec
	MatchApplicationData
	MatchClose
)

func (k MatchKind) String() string {
	switch k {
	case MatchHandshake:
		return "handshake"
	case MatchAlert:
		return "alert"
	case MatchChangeCipherSpec:
		return "change_cipher_spec"
	case MatchApplicationData:
		return "application_data"
	case MatchClose:
		return "connection close"
	default:
		return fmt.Sprintf("{MatchKind %d}", int(k))
	}
}

// MatchSpec is a partial specification of an expected inbound event.
// Nil constraint fields match any value.
type MatchSpec struct {
	Kind MatchKind

	// Handshake
	HandshakeType spec.HandshakeType
	// Extensions the server_hello must carry (ServerHello matcher only).
	Extensions []spec.ExtensionType

	// Alert. A nil Description means any description is acceptable;
	// useful when the exact error code is implementation-defined.
	Level       *spec.AlertLevel
	Description *spec.AlertDescription
}

// Node is one unit of the conversation tree.
type Node struct {
	Kind     Kind
	Payload  *PayloadSpec
	Match    *MatchSpec
	Mutation mutate.Mutation
	Children []NodeID
	Sibling  NodeID
}

func (n *Node) String() string {
	if n.Kind == KindGenerator {
		return fmt.Sprintf("generate %v", n.Payload.Kind)
	}
	if n.Match.Kind == MatchHandshake {
		return fmt.Sprintf("expect %v", n.Match.HandshakeType)
	}
	return fmt.Sprintf("expect %v", n.Match.Kind)
}

// Conversation owns its node arena. The root is always node 0.
type Conversation struct {
	Name  string
	nodes []Node
}

// New creates a conversation rooted at a connection-establishment node.
func New(name, host string, port int) *Conversation {
	c := &Conversation{Name: name}
	c.nodes = append(c.nodes, Node{
		Kind:    KindGenerator,
		Payload: &PayloadSpec{Kind: PayloadConnect, Host: host, Port: port},
		Sibling: None,
	})
	return c
}

// Root returns the root node ID.
func (c *Conversation) Root() NodeID { return 0 }

// Node returns the node for an ID.
func (c *Conversation) Node(id NodeID) *Node {
	return &c.nodes[id]
}

// Len returns the number of nodes.
func (c *Conversation) Len() int { return len(c.nodes) }

// AddChild appends a child node under parent and returns the new node's
// ID, enabling linear chaining.
func (c *Conversation) AddChild(parent NodeID, n Node) NodeID {
	n.Sibling = None
	id := NodeID(len(c.nodes))
	c.nodes = append(c.nodes, n)
	c.nodes[parent].Children = append(c.nodes[parent].Children, id)
	return id
}

// SetSibling attaches a same-depth continuation to a node and returns
// the sibling's ID.
func (c *Conversation) SetSibling(of NodeID, n Node) NodeID {
	n.Sibling = None
	id := NodeID(len(c.nodes))
	c.nodes = append(c.nodes, n)
	c.nodes[of].Sibling = id
	return id
}

// Validate checks the structural invariants: the root establishes the
// connection, and every path ends in a terminal matcher (expect-alert or
// expect-close) so no live connection is left unaccounted for.
func (c *Conversation) Validate() error {
	root := c.Node(c.Root())
	if root.Kind != KindGenerator || root.Payload.Kind != PayloadConnect {
		return fmt.Errorf("%s: root must be a connect node", c.Name)
	}
	return c.validateFrom(c.Root())
}

func (c *Conversation) validateFrom(id NodeID) error {
	n := c.Node(id)
	if n.Kind == KindMatcher && n.Mutation != nil {
		return fmt.Errorf("%s: mutation attached to matcher node", c.Name)
	}
	if len(n.Children) == 0 && n.Sibling == None {
		if n.Kind != KindMatcher || (n.Match.Kind != MatchAlert && n.Match.Kind != MatchClose) {
			return fmt.Errorf("%s: path ends at %v, want a terminal alert or close matcher", c.Name, n)
		}
		return nil
	}
	for _, child := range n.Children {
		if err := c.validateFrom(child); err != nil {
			return err
		}
	}
	if n.Sibling != None {
		return c.validateFrom(n.Sibling)
	}
	return nil
}
