// Package cart holds the shopping cart and the service and gift selections
// that feed the booking and gift flows.
package cart

import (
	"math"
	"strings"
	"sync"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
	"github.com/FulloMyself/tasselgroupreact/internal/events"
)

// Cart is an ordered list of line items, at most one per product. It is safe
// for concurrent use.
type Cart struct {
	bus *events.Bus

	mu      sync.RWMutex
	items   []domain.LineItem
	service *domain.Service
	gift    *domain.GiftPackage
}

// New creates an empty cart. bus may be nil.
func New(bus *events.Bus) *Cart {
	return &Cart{bus: bus}
}

// AddItem adds one unit of p, merging with an existing line for the same
// product. The cart is left unchanged when the total would exceed
// domain.MaxMoney.
func (c *Cart) AddItem(p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return apierrors.Validation("Product has no id.")
	}
	if p.Price < 0 || p.Price > domain.MaxMoney {
		return apierrors.Validationf("Invalid price for %s.", p.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fitsLocked(p.Price) {
		return apierrors.Validation("Cart total is too large.")
	}
	for i := range c.items {
		if c.items[i].ProductID == p.ID {
			c.items[i].Quantity++
			return nil
		}
	}
	c.items = append(c.items, domain.LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		Image:     p.Image,
	})
	return nil
}

// ChangeQuantity adds delta to the quantity of the line at index. A line that
// drops to zero or below is removed. An out-of-range index is ignored, as is
// an increase that would push the total past domain.MaxMoney. It reports
// whether the cart changed.
func (c *Cart) ChangeQuantity(index, delta int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.items) || delta == 0 {
		return false
	}
	line := &c.items[index]
	if delta > 0 {
		extra, ok := line.UnitPrice.CheckedTimes(delta)
		if !ok || line.Quantity > math.MaxInt-delta || !c.fitsLocked(extra) {
			return false
		}
	}
	q := line.Quantity + delta
	if q <= 0 {
		c.items = append(c.items[:index], c.items[index+1:]...)
		return true
	}
	line.Quantity = q
	return true
}

// fitsLocked reports whether adding extra keeps the total within
// domain.MaxMoney.
func (c *Cart) fitsLocked(extra domain.Money) bool {
	total, ok := domain.CheckedSum(c.items)
	if !ok {
		return false
	}
	_, ok = total.CheckedAdd(extra)
	return ok
}

// RemoveItem deletes the line at index. An out-of-range index is ignored.
func (c *Cart) RemoveItem(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.items) {
		return false
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	return true
}

// Clear empties the cart and announces it.
func (c *Cart) Clear() {
	c.mu.Lock()
	n := len(c.items)
	c.items = nil
	c.mu.Unlock()

	if n > 0 {
		c.bus.Publish(events.Event{Type: events.EventCartCleared})
	}
}

// Total is the sum of price times quantity over every line.
func (c *Cart) Total() domain.Money {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.SumItems(c.items)
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []domain.LineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Count returns the number of units across all lines.
func (c *Cart) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// Snapshot returns the lines and their total read under one lock.
func (c *Cart) Snapshot() ([]domain.LineItem, domain.Money) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.LineItem, len(c.items))
	copy(out, c.items)
	return out, domain.SumItems(out)
}

// SelectService records the service being booked. nil clears it.
func (c *Cart) SelectService(s *domain.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil {
		c.service = nil
		return
	}
	cp := *s
	c.service = &cp
}

// SelectedService returns the service being booked, or nil.
func (c *Cart) SelectedService() *domain.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.service == nil {
		return nil
	}
	cp := *c.service
	return &cp
}

// SelectGiftPackage records the gift package being customised. nil clears it.
func (c *Cart) SelectGiftPackage(g *domain.GiftPackage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g == nil {
		c.gift = nil
		return
	}
	cp := *g
	cp.Items = append([]string(nil), g.Items...)
	c.gift = &cp
}

// SelectedGiftPackage returns the gift package being customised, or nil.
func (c *Cart) SelectedGiftPackage() *domain.GiftPackage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.gift == nil {
		return nil
	}
	cp := *c.gift
	cp.Items = append([]string(nil), c.gift.Items...)
	return &cp
}
