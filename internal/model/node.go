package model

// NodeRole represents the role a node plays in the cluster
type NodeRole string

const (
	NodeRoleCoordinator NodeRole = "coordinator"
	NodeRoleWorker      NodeRole = "worker"
)

// DefaultInterface is the interface whose address identifies a node
const DefaultInterface = "eth0"

// Node represents a reachable remote machine
type Node struct {
	Name       string            `json:"name" mapstructure:"name"`
	Interfaces map[string]string `json:"interfaces" mapstructure:"interfaces"`
	Role       NodeRole          `json:"role,omitempty" mapstructure:"role"`
	SSHUser    string            `json:"ssh_user,omitempty" mapstructure:"ssh_user"`
	SSHPort    int               `json:"ssh_port,omitempty" mapstructure:"ssh_port"`
	Location   string            `json:"location,omitempty" mapstructure:"location"`
}

// NewNode creates a node reachable at addr on the default interface
func NewNode(name, addr string) Node {
	return Node{
		Name:       name,
		Interfaces: map[string]string{DefaultInterface: addr},
	}
}

// IntfIP returns the address bound to the named interface
func (n Node) IntfIP(intf string) string {
	return n.Interfaces[intf]
}

// Address returns the node identity: the address of the default interface.
// Nodes that only declare other interfaces fall back to their name.
func (n Node) Address() string {
	if addr := n.IntfIP(DefaultInterface); addr != "" {
		return addr
	}
	return n.Name
}

// Host returns the name transports should dial
func (n Node) Host() string {
	if n.Name != "" {
		return n.Name
	}
	return n.Address()
}

// SameAs reports whether both values identify the same machine
func (n Node) SameAs(other Node) bool {
	return n.Address() == other.Address()
}

func (n Node) String() string {
	if n.Name != "" && n.Name != n.Address() {
		return n.Name + "(" + n.Address() + ")"
	}
	return n.Address()
}
