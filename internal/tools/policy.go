package tools

import (
	"fmt"
	"slices"
	"strings"
)

// Tool names.
const (
	SearchProducts        = "search_products"
	SearchProductsByImage = "search_products_by_image"
	CheckOrderStatus      = "check_order_status"
	Chitchat              = "chitchat"
	GetCustomerInfo       = "get_customer_info"
	LoginCustomer         = "login_customer"
	CreateOrder           = "create_order"
	UpdateOrder           = "update_order"
	CancelOrder           = "cancel_order"
	UpdateCustomerInfo    = "update_customer_info"
	RegisterCustomer      = "register_customer"
)

// Class says whether a tool may run without human approval.
type Class int

const (
	// Safe tools run immediately.
	Safe Class = iota
	// Sensitive tools change state and wait for approval.
	Sensitive
)

func (c Class) String() string {
	if c == Sensitive {
		return "sensitive"
	}
	return "safe"
}

// Policy partitions tool names into safe and sensitive.
type Policy struct {
	classes map[string]Class
	overlap []string
}

// NewPolicy builds a policy from the two name sets. A name listed in
// both is reported by Validate.
func NewPolicy(safe, sensitive []string) *Policy {
	p := &Policy{classes: make(map[string]Class, len(safe)+len(sensitive))}
	for _, n := range safe {
		p.classes[n] = Safe
	}
	for _, n := range sensitive {
		if c, ok := p.classes[n]; ok && c == Safe {
			p.overlap = append(p.overlap, n)
		}
		p.classes[n] = Sensitive
	}
	return p
}

// DefaultPolicy is the shop's routing table.
func DefaultPolicy() *Policy {
	return NewPolicy(
		[]string{SearchProducts, CheckOrderStatus, Chitchat, GetCustomerInfo, LoginCustomer, SearchProductsByImage},
		[]string{CreateOrder, UpdateOrder, CancelOrder, UpdateCustomerInfo, RegisterCustomer},
	)
}

// Class returns the class of name. Unknown names are reported as
// sensitive so nothing unclassified runs unattended.
func (p *Policy) Class(name string) (Class, bool) {
	c, ok := p.classes[name]
	if !ok {
		return Sensitive, false
	}
	return c, true
}

// Validate checks that the policy classifies exactly the registered
// tools, each exactly once.
func (p *Policy) Validate(registered []string) error {
	var problems []string
	if len(p.overlap) > 0 {
		problems = append(problems, "both safe and sensitive: "+strings.Join(p.overlap, ", "))
	}

	var unclassified, unregistered []string
	for _, n := range registered {
		if _, ok := p.classes[n]; !ok {
			unclassified = append(unclassified, n)
		}
	}
	for n := range p.classes {
		if !slices.Contains(registered, n) {
			unregistered = append(unregistered, n)
		}
	}
	slices.Sort(unregistered)
	if len(unclassified) > 0 {
		problems = append(problems, "unclassified: "+strings.Join(unclassified, ", "))
	}
	if len(unregistered) > 0 {
		problems = append(problems, "not registered: "+strings.Join(unregistered, ", "))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid tool policy: %s", strings.Join(problems, "; "))
	}
	return nil
}
