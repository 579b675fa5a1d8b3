package prediction

import (
	"fmt"

	"skirmish/server/internal/command"
)

// Handler is the category-erased view of a Manager.
type Handler interface {
	Category() command.Category
	AddPredictedCommand(cmd command.Command) (bool, string)
	CleanupConfirmedCommands(confirmedTick int64) int
	TakeOutgoing() []command.Command
	Pending() int
}

// Dispatcher routes an entity's commands to the manager owning their category.
type Dispatcher struct {
	handlers map[command.Category]Handler
	order    []command.Category
}

// NewDispatcher registers handlers, one per category.
func NewDispatcher(handlers ...Handler) (*Dispatcher, error) {
	d := &Dispatcher{handlers: make(map[command.Category]Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		category := h.Category()
		if !category.Valid() {
			return nil, fmt.Errorf("prediction: handler with invalid category %s", category)
		}
		if _, exists := d.handlers[category]; exists {
			return nil, fmt.Errorf("prediction: duplicate handler for %s", category)
		}
		d.handlers[category] = h
		d.order = append(d.order, category)
	}
	return d, nil
}

// Handler returns the handler registered for category.
func (d *Dispatcher) Handler(category command.Category) (Handler, bool) {
	h, ok := d.handlers[category]
	return h, ok
}

// Dispatch forwards cmd to the handler for its category.
func (d *Dispatcher) Dispatch(cmd command.Command) (bool, string) {
	h, ok := d.handlers[cmd.Header.Category]
	if !ok {
		return false, DropWrongCategory
	}
	return h.AddPredictedCommand(cmd)
}

// Confirm prunes every handler's buffer up to confirmedTick.
func (d *Dispatcher) Confirm(confirmedTick int64) int {
	removed := 0
	for _, category := range d.order {
		removed += d.handlers[category].CleanupConfirmedCommands(confirmedTick)
	}
	return removed
}

// TakeOutgoing collects accepted commands from every handler, in
// registration order.
func (d *Dispatcher) TakeOutgoing() []command.Command {
	var out []command.Command
	for _, category := range d.order {
		out = append(out, d.handlers[category].TakeOutgoing()...)
	}
	return out
}

// Pending sums the unconfirmed commands across handlers.
func (d *Dispatcher) Pending() int {
	total := 0
	for _, h := range d.handlers {
		total += h.Pending()
	}
	return total
}
