package views

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"discount-service/models"
)

// Action is a click on a rendered row.
type Action string

const (
	ActionToggle Action = "toggle"
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrRowNotVisible = errors.New("no visible row for discount")
	ErrNoAffordance  = errors.New("row has no such control")
)

// Tree is the rendered view of one discount tree. It is not safe for
// concurrent use; each viewer owns its own Tree.
type Tree struct {
	root     *Node
	handlers Handlers
}

func NewTree(root models.Discount, h Handlers) (*Tree, error) {
	n, err := NewNode(root, h)
	if err != nil {
		return nil, err
	}
	return &Tree{root: n, handlers: h}, nil
}

func (t *Tree) Root() *Node { return t.root }

// Update re-supplies the tree. A root with a different id is a different
// tree and starts from scratch.
func (t *Tree) Update(root models.Discount) error {
	if err := models.CheckDiscountShape(root); err != nil {
		return err
	}
	if root.GetID() != t.root.ID() {
		n, err := NewNode(root, t.handlers)
		if err != nil {
			return err
		}
		t.root = n
		return nil
	}
	return t.root.Update(root)
}

func (t *Tree) Rows() ([]Row, error) {
	return t.root.Rows()
}

// Click applies a user click to the visible row identified by id. For
// ActionAdd, id is the complex discount whose add row was clicked.
func (t *Tree) Click(action Action, id string) error {
	n := t.root.visible(id)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrRowNotVisible, id)
	}
	var ok bool
	switch action {
	case ActionToggle:
		ok = n.Toggle()
	case ActionAdd:
		ok = n.ClickAdd()
	case ActionDelete:
		ok = n.ClickDelete()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrNoAffordance, action, id)
	}
	return nil
}

// Render writes the visible rows as indented text:
//
//	[-] AND [x]
//	    10% discount on all products [x]
//	    + Add new discount
func (t *Tree) Render(w io.Writer) error {
	rows, err := t.Rows()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := io.WriteString(w, FormatRow(row)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// FormatRow renders a single row as one line of text.
func FormatRow(row Row) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("    ", row.Depth))
	if row.Kind == RowAdd {
		b.WriteString(row.Label)
		return b.String()
	}
	if row.Expandable {
		if row.Expanded {
			b.WriteString("[-] ")
		} else {
			b.WriteString("[+] ")
		}
	}
	b.WriteString(row.Label)
	if row.Deletable {
		b.WriteString(" [x]")
	}
	return b.String()
}
