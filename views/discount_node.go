package views

import (
	"fmt"

	"discount-service/models"
)

// Handlers carries the callbacks every node of a tree is wired with.
// OnDelete is optional; without it no delete affordance is rendered.
type Handlers struct {
	OnCreate          func(parentID string)
	OnDelete          func(discountID string)
	ProductIDToString ProductIDToString
}

// RowKind distinguishes discount rows from "add new discount" rows.
type RowKind string

const (
	RowDiscount RowKind = "discount"
	RowAdd      RowKind = "add"
)

const AddDiscountLabel = "+ Add new discount"

// Row is one visible line of a rendered tree. For add rows ID is the id of
// the complex discount the new discount will be created under.
type Row struct {
	Kind       RowKind `json:"kind"`
	ID         string  `json:"id"`
	Depth      int     `json:"depth"`
	Label      string  `json:"label"`
	Expandable bool    `json:"expandable,omitempty"`
	Expanded   bool    `json:"expanded,omitempty"`
	Deletable  bool    `json:"deletable,omitempty"`
}

// Node renders one discount. Complex nodes start collapsed and toggle only
// through their own row; a node never changes the discount it was given.
type Node struct {
	discount models.Discount
	handlers Handlers
	open     bool
	children []*Node
}

// NewNode builds a collapsed node for d and, for complex discounts, one
// collapsed child node per element of d.Discounts.
func NewNode(d models.Discount, h Handlers) (*Node, error) {
	if err := checkShapes(d); err != nil {
		return nil, err
	}
	n := &Node{handlers: h}
	n.apply(d)
	return n, nil
}

// Update re-supplies the node with a new snapshot. Children are matched by
// id: a child whose id is still present keeps its state, new ids start
// collapsed and vanished ids are dropped. On error nothing changes.
func (n *Node) Update(d models.Discount) error {
	if err := checkShapes(d); err != nil {
		return err
	}
	n.apply(d)
	return nil
}

func (n *Node) apply(d models.Discount) {
	if n.discount != nil && models.IsDiscountComplex(n.discount) != models.IsDiscountComplex(d) {
		n.open = false
	}
	n.discount = d

	c, ok := d.(*models.ComplexDiscount)
	if !ok {
		n.children = nil
		return
	}

	previous := make(map[string]*Node, len(n.children))
	for _, child := range n.children {
		previous[child.ID()] = child
	}
	children := make([]*Node, 0, len(c.Discounts))
	for _, cd := range c.Discounts {
		child, kept := previous[cd.GetID()]
		if kept {
			delete(previous, cd.GetID())
		} else {
			child = &Node{handlers: n.handlers}
		}
		child.apply(cd)
		children = append(children, child)
	}
	n.children = children
}

// checkShapes rejects a tree holding anything but the two variants, or a
// complex discount inside itself, before any node state is touched.
func checkShapes(d models.Discount) error {
	return checkShapesUnder(d, make(map[*models.ComplexDiscount]struct{}))
}

func checkShapesUnder(d models.Discount, ancestors map[*models.ComplexDiscount]struct{}) error {
	if err := models.CheckDiscountShape(d); err != nil {
		return err
	}
	c, ok := d.(*models.ComplexDiscount)
	if !ok {
		return nil
	}
	if _, cyclic := ancestors[c]; cyclic {
		return fmt.Errorf("%w: discount %q contains itself", models.ErrMalformedDiscount, c.ID)
	}
	ancestors[c] = struct{}{}
	defer delete(ancestors, c)
	for i, child := range c.Discounts {
		if err := checkShapesUnder(child, ancestors); err != nil {
			return fmt.Errorf("discount %q child %d: %w", c.ID, i, err)
		}
	}
	return nil
}

func (n *Node) ID() string { return n.discount.GetID() }
func (n *Node) Discount() models.Discount { return n.discount }
func (n *Node) IsComplex() bool { return models.IsDiscountComplex(n.discount) }
func (n *Node) Expanded() bool { return n.open }
func (n *Node) Deletable() bool { return n.handlers.OnDelete != nil }
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }
func (n *Node) label() (string, error) { return DiscountToString(n.discount, n.handlers.ProductIDToString) }

// Toggle flips a complex node between collapsed and expanded. Simple nodes
// have no toggle and report false.
func (n *Node) Toggle() bool {
	if !n.IsComplex() {
		return false
	}
	n.open = !n.open
	return true
}

// ClickDelete relays a delete intent for this node. It reports false when
// the node has no delete affordance.
func (n *Node) ClickDelete() bool {
	if n.handlers.OnDelete == nil {
		return false
	}
	n.handlers.OnDelete(n.ID())
	return true
}

// ClickAdd relays a create intent with this node as the parent. The add
// affordance only exists on expanded complex nodes.
func (n *Node) ClickAdd() bool {
	if !n.IsComplex() || !n.open || n.handlers.OnCreate == nil {
		return false
	}
	n.handlers.OnCreate(n.ID())
	return true
}

// Rows returns the visible rows of this node and its expanded descendants.
func (n *Node) Rows() ([]Row, error) {
	return n.appendRows(nil, 0)
}

func (n *Node) appendRows(rows []Row, depth int) ([]Row, error) {
	label, err := n.label()
	if err != nil {
		return nil, err
	}
	rows = append(rows, Row{
		Kind:       RowDiscount,
		ID:         n.ID(),
		Depth:      depth,
		Label:      label,
		Expandable: n.IsComplex(),
		Expanded:   n.open,
		Deletable:  n.Deletable(),
	})
	if !n.IsComplex() || !n.open {
		return rows, nil
	}
	for _, child := range n.children {
		if rows, err = child.appendRows(rows, depth+1); err != nil {
			return nil, err
		}
	}
	return append(rows, Row{Kind: RowAdd, ID: n.ID(), Depth: depth + 1, Label: AddDiscountLabel}), nil
}

// visible returns the node with id if it is n or reachable through
// expanded nodes only.
func (n *Node) visible(id string) *Node {
	if n.ID() == id {
		return n
	}
	if !n.open {
		return nil
	}
	for _, child := range n.children {
		if found := child.visible(id); found != nil {
			return found
		}
	}
	return nil
}
