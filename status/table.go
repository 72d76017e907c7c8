package status

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Entry is what a vendor status resolves to. Message overrides the step
// message when set.
type Entry struct {
	Lifecycle LifecycleStatus `yaml:"lifecycle"`
	Delivery  DeliveryStatus  `yaml:"delivery"`
	Message   string          `yaml:"message,omitempty"`
}

// Step describes one delivery status on the tracking page.
type Step struct {
	Message    string `yaml:"message"`
	Percent    int    `yaml:"percent"`
	ETAMinutes int    `yaml:"etaMinutes"`
}

// Table is the authoritative vendor status table. It is immutable once
// built, so one instance can be shared between goroutines.
type Table struct {
	entries map[string]Entry
	steps   map[DeliveryStatus]Step
	// entries that exist only because a delivery step maps onto itself
	stepAliases map[string]bool
}

var defaultSteps = map[DeliveryStatus]Step{
	OrderReceived:           {Message: "Restaurant has received your order", Percent: 12, ETAMinutes: 35},
	Packaging:               {Message: "Your food is being prepared and packaged", Percent: 25, ETAMinutes: 30},
	AwaitingDispatch:        {Message: "Order is ready and waiting for pickup", Percent: 37, ETAMinutes: 25},
	DispatchArrived:         {Message: "Delivery rider has arrived at restaurant", Percent: 50, ETAMinutes: 20},
	Dispatched:              {Message: "Order has been picked up by delivery rider", Percent: 62, ETAMinutes: 15},
	DispatchOnTheWay:        {Message: "Delivery rider is heading to your location", Percent: 75, ETAMinutes: 10},
	DispatchArrivedLocation: {Message: "Delivery rider has arrived at your address", Percent: 87, ETAMinutes: 5},
	Delivered:               {Message: "Order has been successfully delivered", Percent: 100, ETAMinutes: 0},
}

var defaultEntries = map[string]Entry{
	VendorPending:        {Lifecycle: LifecyclePending, Delivery: OrderReceived},
	VendorPendingPayment: {Lifecycle: LifecyclePending, Delivery: OrderReceived},
	VendorConfirmed:      {Lifecycle: LifecycleConfirmed, Delivery: Packaging},
	VendorAccepted:       {Lifecycle: LifecycleConfirmed, Delivery: Packaging},
	VendorProcessing:     {Lifecycle: LifecyclePreparing, Delivery: Packaging},
	VendorPreparing:      {Lifecycle: LifecyclePreparing, Delivery: Packaging},
	VendorReady:          {Lifecycle: LifecyclePreparing, Delivery: AwaitingDispatch},
	VendorOutForDelivery: {Lifecycle: LifecycleOutForDelivery, Delivery: Dispatched},
	VendorDispatched:     {Lifecycle: LifecycleOutForDelivery, Delivery: Dispatched},
	VendorDelivered:      {Lifecycle: LifecycleDelivered, Delivery: Delivered},
	VendorCompleted:      {Lifecycle: LifecycleDelivered, Delivery: Delivered},
	VendorCancelled:      {Lifecycle: LifecycleCanceled, Delivery: OrderReceived, Message: "Order has been canceled"},
	VendorCanceled:       {Lifecycle: LifecycleCanceled, Delivery: OrderReceived, Message: "Order has been canceled"},
}

// DefaultTable returns the built-in status table.
func DefaultTable() *Table {
	t := &Table{
		entries: make(map[string]Entry, len(defaultEntries)+16),
		steps:   make(map[DeliveryStatus]Step, len(defaultSteps)),

		stepAliases: make(map[string]bool, len(DeliverySteps)),
	}
	for k, v := range defaultSteps {
		t.steps[k] = v
	}
	for k, v := range defaultEntries {
		t.entries[k] = v
	}

	// Delivery step names map onto themselves so rider apps can post them directly.
	for _, d := range DeliverySteps {
		key := NormalizeVendorStatus(string(d))
		if _, exists := t.entries[key]; exists {
			continue
		}
		t.entries[key] = Entry{Lifecycle: lifecycleForStep(d), Delivery: d}
		t.stepAliases[key] = true
	}
	return t
}

func lifecycleForStep(d DeliveryStatus) LifecycleStatus {
	switch d {
	case OrderReceived:
		return LifecyclePending
	case Packaging, AwaitingDispatch, DispatchArrived:
		return LifecyclePreparing
	case Dispatched, DispatchOnTheWay, DispatchArrivedLocation:
		return LifecycleOutForDelivery
	case Delivered:
		return LifecycleDelivered
	}
	return LifecyclePending
}

// Map resolves a vendor status. It never fails: unknown input lands on
// order_received at 0%.
func (t *Table) Map(vendorStatus string) Mapping {
	entry, ok := t.entries[NormalizeVendorStatus(vendorStatus)]
	if !ok {
		return Mapping{
			VendorStatus: vendorStatus,
			Lifecycle:    LifecyclePending,
			Delivery:     OrderReceived,
			Message:      fmt.Sprintf("Order status: %s", vendorStatus),
			Percent:      0,
			ETAMinutes:   t.steps[OrderReceived].ETAMinutes,
			Known:        false,
		}
	}

	step := t.steps[entry.Delivery]
	msg := step.Message
	if entry.Message != "" {
		msg = entry.Message
	}
	return Mapping{
		VendorStatus: vendorStatus,
		Lifecycle:    entry.Lifecycle,
		Delivery:     entry.Delivery,
		Message:      msg,
		Percent:      step.Percent,
		ETAMinutes:   step.ETAMinutes,
		Known:        true,
	}
}

// VendorCode resolves a status typed on the dashboard. local is the
// normalized code applied to the order; upstream is the vendor code pushed
// to Menuverse, which for a delivery step name is the code of its lifecycle.
func (t *Table) VendorCode(s string) (local, upstream string, ok bool) {
	local = NormalizeVendorStatus(s)
	entry, found := t.entries[local]
	if !found {
		return "", "", false
	}
	if !t.stepAliases[local] {
		return local, local, true
	}
	upstream, ok = VendorCodeFor(entry.Lifecycle)
	return local, upstream, ok
}

// Step returns the tracking-page data of a delivery status.
func (t *Table) Step(d DeliveryStatus) (Step, bool) {
	s, ok := t.steps[d]
	return s, ok
}

// MessageFor returns the message of a delivery status, or a generic one
// when d is not a known step.
func (t *Table) MessageFor(d DeliveryStatus) string {
	if s, ok := t.steps[d]; ok {
		return s.Message
	}
	return fmt.Sprintf("Order status: %s", d)
}

// VendorStatuses lists the known vendor codes, sorted.
func (t *Table) VendorStatuses() []string {
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// VendorCodeFor returns the canonical vendor code for a lifecycle status,
// used when a vendor moves an order from the dashboard.
func VendorCodeFor(l LifecycleStatus) (string, bool) {
	switch l {
	case LifecyclePending:
		return VendorPending, true
	case LifecycleConfirmed:
		return VendorConfirmed, true
	case LifecyclePreparing:
		return VendorPreparing, true
	case LifecycleOutForDelivery:
		return VendorOutForDelivery, true
	case LifecycleDelivered:
		return VendorDelivered, true
	case LifecycleCanceled:
		return VendorCancelled, true
	}
	return "", false
}

// Validate checks that every entry points at a real step and that
// percentages never go down along DeliverySteps.
func (t *Table) Validate() error {
	prev := -1
	for _, d := range DeliverySteps {
		s, ok := t.steps[d]
		if !ok {
			return fmt.Errorf("status table: missing step %q", d)
		}
		if s.Percent < prev {
			return fmt.Errorf("status table: step %q percent %d is below previous %d", d, s.Percent, prev)
		}
		if s.Percent < 0 || s.Percent > 100 {
			return fmt.Errorf("status table: step %q percent %d out of range", d, s.Percent)
		}
		prev = s.Percent
	}
	for code, e := range t.entries {
		if !IsValidDelivery(e.Delivery) {
			return fmt.Errorf("status table: vendor status %q maps to unknown delivery status %q", code, e.Delivery)
		}
		if !IsValidLifecycle(e.Lifecycle) {
			return fmt.Errorf("status table: vendor status %q maps to unknown lifecycle %q", code, e.Lifecycle)
		}
	}
	return nil
}

type tableFile struct {
	Vendor map[string]Entry        `yaml:"vendor"`
	Steps  map[DeliveryStatus]Step `yaml:"steps"`
}

// LoadTable reads YAML overrides from path and merges them onto the default
// table. An empty path returns the default table.
//
//	vendor:
//	  ON_HOLD: {lifecycle: Preparing, delivery: packaging}
//	steps:
//	  packaging: {message: "Cooking", percent: 25, etaMinutes: 30}
func LoadTable(path string) (*Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status table: %w", err)
	}
	return t.merge(raw)
}

// ParseTable merges YAML overrides onto the default table.
func ParseTable(raw []byte) (*Table, error) {
	return DefaultTable().merge(raw)
}

func (t *Table) merge(raw []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse status table: %w", err)
	}
	for d, s := range f.Steps {
		if !IsValidDelivery(d) {
			return nil, fmt.Errorf("status table: unknown step %q", d)
		}
		t.steps[d] = s
	}
	for code, e := range f.Vendor {
		key := NormalizeVendorStatus(code)
		t.entries[key] = e
		delete(t.stepAliases, key)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
