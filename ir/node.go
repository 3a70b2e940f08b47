package ir

// Node is a generic graph node: the id/label/properties triple every
// concrete IR leaf type is projected into before the base repository
// writes it. Repositories convert domain types (Entity, Attribute, ...)
// into Nodes explicitly, keeping BaseRepository's generic helpers
// (ReplaceChildren, BatchUpsert) independent of any one IR type.
type Node struct {
	ID         string
	Label      string
	Properties map[string]interface{}
}

func (n Node) NodeID() string                        { return n.ID }
func (n Node) NodeLabel() string                     { return n.Label }
func (n Node) NodeProperties() map[string]interface{} { return n.Properties }
