package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/status"
	"github.com/yeremiapane/chopchop-backend/utils"
)

const defaultPaymentMethod = "Cash on Delivery"

// OrderTransformer turns stored documents of any vintage into models.Order.
type OrderTransformer struct {
	table *status.Table
}

func NewOrderTransformer(table *status.Table) *OrderTransformer {
	if table == nil {
		table = status.DefaultTable()
	}
	return &OrderTransformer{table: table}
}

func (t *OrderTransformer) Table() *status.Table {
	return t.table
}

// TransformDocument never fails. Missing or malformed fields are logged and
// replaced by their zero value; fallback is used when the document carries
// no creation time.
func (t *OrderTransformer) TransformDocument(id string, fields map[string]interface{}, fallback time.Time) models.Order {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	r := fieldReader{docID: id, fields: fields}

	order := models.Order{
		ID:             id,
		OrderID:        r.str("orderId"),
		VendorID:       r.str("eateryId", "vendorId"),
		RestaurantID:   r.str("restaurantId"),
		RestaurantName: r.str("eateryName", "restaurantName"),
		CustomerID:     r.str("customerId", "userId"),
		PaidAmount:     r.num("paidAmount"),
		DeliveryFee:    r.num("deliveryCharges", "deliveryFee"),
		Tip:            r.num("tipping", "tip"),
		Tax:            r.num("taxationAmount", "tax"),
		PaymentMethod:  r.str("paymentMethod"),
		Instructions:   r.str("instructions"),
		Platform:       r.str("platform"),
		Items:          r.items("items"),
	}
	if order.OrderID == "" {
		order.OrderID = id
	}
	if order.VendorID == "" {
		order.VendorID = order.RestaurantID
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = defaultPaymentMethod
	}

	order.Customer = r.customer()
	if order.CustomerID == "" {
		order.CustomerID = order.Customer.Email
	}
	order.Rider = r.rider("riderInfo", "rider")

	order.Subtotal = r.num("subtotal")
	if order.Subtotal == 0 {
		order.Subtotal = itemsSubtotal(order.Items)
	}
	// zero counts as missing, so a checkout with paidAmount 0 falls through
	order.TotalAmount = r.firstPositive("totalAmount", "paidAmount", "orderAmount")

	// orderStatus is the source of truth; status is only read from
	// documents that never carried a vendor code.
	storedLifecycle := r.str("status")
	order.VendorStatus = r.str("orderStatus")
	if order.VendorStatus == "" {
		order.VendorStatus = storedLifecycle
	}
	if order.VendorStatus == "" {
		order.VendorStatus = status.VendorPending
	}
	t.applyStatus(&order, order.VendorStatus, storedLifecycle, r.str("deliveryStatus"))

	order.CreatedAt = r.timestamp(fallback, "createdAt", "orderDate")
	order.UpdatedAt = r.timestamp(order.CreatedAt, "updatedAt")
	order.TrackingUpdates = r.tracking("trackingUpdates", order.CreatedAt)

	return order
}

// TransformJSON decodes a stored body and transforms it. A body that is not
// a JSON object yields an order carrying only its id.
func (t *OrderTransformer) TransformJSON(id, body string, fallback time.Time) models.Order {
	fields, err := decodeBody(body)
	if err != nil {
		utils.InfoLogger.WithFields(logrus.Fields{"document_id": id}).Warnf("Invalid document body: %v", err)
	}
	return t.TransformDocument(id, fields, fallback)
}

func (t *OrderTransformer) applyStatus(order *models.Order, vendorStatus, storedLifecycle, storedDelivery string) {
	mapping := t.table.Map(vendorStatus)
	lifecycle := mapping.Lifecycle
	if l := status.LifecycleStatus(storedLifecycle); !mapping.Known && status.IsValidLifecycle(l) {
		lifecycle = l
	}
	order.Status = string(lifecycle)

	delivery := mapping.Delivery
	message := mapping.Message
	percent := mapping.Percent
	eta := mapping.ETA()
	if d := status.DeliveryStatus(storedDelivery); status.IsValidDelivery(d) && d != mapping.Delivery {
		step, _ := t.table.Step(d)
		delivery, message, percent = d, step.Message, step.Percent
		eta = status.Mapping{Delivery: d, ETAMinutes: step.ETAMinutes}.ETA()
	}
	order.DeliveryStatus = string(delivery)
	order.StatusMessage = message
	order.Progress = percent
	order.EstimatedDeliveryTime = eta
}

func itemsSubtotal(items []models.OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func decodeBody(body string) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if strings.TrimSpace(body) == "" {
		return fields, nil
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return map[string]interface{}{}, err
	}
	return fields, nil
}

// fieldReader reads loosely typed document fields, logging anything that
// cannot be coerced.
type fieldReader struct {
	docID  string
	fields map[string]interface{}
}

func (r fieldReader) warn(field string, v interface{}) {
	utils.InfoLogger.WithFields(logrus.Fields{
		"document_id": r.docID,
		"field":       field,
	}).Warnf("Malformed field value %v (%T), using default", v, v)
}

func (r fieldReader) lookup(keys ...string) (string, interface{}, bool) {
	for _, k := range keys {
		if v, ok := r.fields[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return k, v, true
		}
	}
	return "", nil, false
}

func (r fieldReader) str(keys ...string) string {
	k, v, ok := r.lookup(keys...)
	if !ok {
		return ""
	}
	s, ok := toString(v)
	if !ok {
		r.warn(k, v)
	}
	return s
}

func (r fieldReader) num(keys ...string) float64 {
	k, v, ok := r.lookup(keys...)
	if !ok {
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		r.warn(k, v)
	}
	return f
}

func (r fieldReader) firstPositive(keys ...string) float64 {
	for _, k := range keys {
		if f := r.num(k); f > 0 {
			return f
		}
	}
	return 0
}

func (r fieldReader) timestamp(fallback time.Time, keys ...string) time.Time {
	k, v, ok := r.lookup(keys...)
	if !ok {
		return fallback
	}
	ts, ok := toTime(v)
	if !ok {
		r.warn(k, v)
		return fallback
	}
	return ts
}

func (r fieldReader) object(keys ...string) map[string]interface{} {
	k, v, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		r.warn(k, v)
		return nil
	}
	return m
}

func (r fieldReader) list(key string) []interface{} {
	_, v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	l, ok := v.([]interface{})
	if !ok {
		r.warn(key, v)
		return nil
	}
	return l
}

func (r fieldReader) sub(m map[string]interface{}) fieldReader {
	return fieldReader{docID: r.docID, fields: m}
}

func (r fieldReader) customer() models.Customer {
	c := r.sub(r.object("customer"))
	if c.fields == nil {
		c.fields = map[string]interface{}{}
	}
	out := models.Customer{
		Name:    c.str("name"),
		Email:   c.str("email"),
		Phone:   c.str("phone"),
		Address: c.str("address"),
	}
	if out.Address == "" {
		out.Address = r.str("deliveryAddress")
	}
	if out.Email == "" {
		out.Email = r.str("customerEmail")
	}
	return out
}

func (r fieldReader) rider(keys ...string) models.Rider {
	m := r.object(keys...)
	if m == nil {
		return models.Rider{}
	}
	s := r.sub(m)
	return models.Rider{
		Name:        s.str("name"),
		Phone:       s.str("phone"),
		Vehicle:     s.str("vehicle"),
		PlateNumber: s.str("plateNumber"),
	}
}

func (r fieldReader) items(key string) []models.OrderItem {
	raw := r.list(key)
	items := make([]models.OrderItem, 0, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			r.warn(fmt.Sprintf("%s[%d]", key, i), v)
			continue
		}
		s := r.sub(m)
		item := models.OrderItem{
			ID:        s.str("id"),
			Name:      s.str("name", "title"),
			Quantity:  int(s.num("quantity", "qty")),
			Price:     s.num("price"),
			Variation: s.str("variation"),
			Addons:    s.addons("addons"),
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("item-%d", i)
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		items = append(items, item)
	}
	return items
}

func (r fieldReader) addons(key string) []string {
	raw := r.list(key)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch a := v.(type) {
		case string:
			out = append(out, a)
		case map[string]interface{}:
			if name := r.sub(a).str("name", "title"); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func (r fieldReader) tracking(key string, fallback time.Time) []models.TrackingUpdate {
	raw := r.list(key)
	out := make([]models.TrackingUpdate, 0, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			r.warn(fmt.Sprintf("%s[%d]", key, i), v)
			continue
		}
		s := r.sub(m)
		out = append(out, models.TrackingUpdate{
			Status:    s.str("status"),
			Message:   s.str("message"),
			Timestamp: s.timestamp(fallback, "timestamp"),
			Location:  s.str("location"),
		})
	}
	return out
}

func toString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v interface{}) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, !ts.IsZero()
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, ts); err == nil {
				return parsed, true
			}
		}
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	case json.Number, float64, int, int64:
		if ms, ok := toFloat(ts); ok && ms > 0 {
			return time.UnixMilli(int64(ms)).UTC(), true
		}
	case map[string]interface{}:
		// {seconds, nanoseconds} as exported by document databases
		r := fieldReader{fields: ts}
		secs := r.num("seconds", "_seconds")
		if secs <= 0 {
			return time.Time{}, false
		}
		nanos := r.num("nanoseconds", "_nanoseconds")
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
	return time.Time{}, false
}

// SortOption selects the ordering of SortOrders.
type SortOption string

const (
	SortNewest     SortOption = "newest"
	SortOldest     SortOption = "oldest"
	SortAmountHigh SortOption = "amount-high"
	SortAmountLow  SortOption = "amount-low"
	SortStatus     SortOption = "status"
)

// ParseSortOption accepts the sort keys above; "" means newest.
func ParseSortOption(s string) (SortOption, error) {
	switch opt := SortOption(strings.ToLower(strings.TrimSpace(s))); opt {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortAmountHigh, SortAmountLow, SortStatus:
		return opt, nil
	}
	return "", validationError("unknown sort option %q", s)
}

// SortOrders returns a sorted copy. Ties keep their input order.
func SortOrders(orders []models.Order, by SortOption) []models.Order {
	sorted := make([]models.Order, len(orders))
	copy(sorted, orders)

	var less func(a, b models.Order) bool
	switch by {
	case SortOldest:
		less = func(a, b models.Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortAmountHigh:
		less = func(a, b models.Order) bool { return a.TotalAmount > b.TotalAmount }
	case SortAmountLow:
		less = func(a, b models.Order) bool { return a.TotalAmount < b.TotalAmount }
	case SortStatus:
		less = func(a, b models.Order) bool {
			return status.LifecycleRank(status.LifecycleStatus(a.Status)) < status.LifecycleRank(status.LifecycleStatus(b.Status))
		}
	default:
		less = func(a, b models.Order) bool { return a.CreatedAt.After(b.CreatedAt) }
	}

	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted
}

// OrderFilters narrows GetOrders. Zero values disable a filter.
type OrderFilters struct {
	CustomerID    string    `json:"customerId,omitempty"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	Statuses      []string  `json:"status,omitempty"`
	DateFrom      time.Time `json:"dateFrom,omitempty"`
	DateTo        time.Time `json:"dateTo,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// FilterOrders applies the status and date filters in memory.
func FilterOrders(orders []models.Order, f OrderFilters) []models.Order {
	wanted := make(map[string]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		wanted[s] = true
	}

	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if len(wanted) > 0 && !wanted[o.Status] {
			continue
		}
		if !f.DateFrom.IsZero() && o.CreatedAt.Before(f.DateFrom) {
			continue
		}
		if !f.DateTo.IsZero() && o.CreatedAt.After(f.DateTo) {
			continue
		}
		out = append(out, o)
	}
	return out
}
