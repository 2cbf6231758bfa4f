package booking

import (
	"github.com/blyssuz/booking-flow/internal/catalog"
	"github.com/blyssuz/booking-flow/internal/scheduler"
	"github.com/blyssuz/booking-flow/internal/selection"
)

type QuoteLine struct {
	ServiceID       string              `json:"service_id"`
	Name            string              `json:"name"`
	EmployeeID      *string             `json:"employee_id"`
	EmployeeName    string              `json:"employee_name,omitempty"`
	Price           int64               `json:"price"`
	OriginalPrice   int64               `json:"original_price"`
	DurationMinutes int                 `json:"duration_minutes"`
	Discount        *scheduler.Discount `json:"discount,omitempty"`
}

type Quote struct {
	Lines           []QuoteLine `json:"lines"`
	Total           int64       `json:"total"`
	OriginalTotal   int64       `json:"original_total"`
	DurationMinutes int         `json:"duration_minutes"`
	HasDiscount     bool        `json:"has_discount"`
}

// EffectivePrice returns what the employee charges and the undiscounted
// reference price. The final price applies only when it is strictly below
// the original.
func EffectivePrice(e scheduler.Employee) (price, original int64) {
	original = e.Price
	if e.OriginalPrice != nil {
		original = *e.OriginalPrice
	}
	price = e.Price
	if e.FinalPrice != nil && *e.FinalPrice < original {
		price = *e.FinalPrice
	}
	return price, original
}

// BuildQuote prices the selection. Services with an assigned employee use
// that employee's price and duration; the rest use the catalog entry.
func BuildQuote(sel selection.Selection, slots []scheduler.ServiceSlot, business catalog.Business) Quote {
	q := Quote{Lines: make([]QuoteLine, 0, len(sel.ServiceIDs))}

	for _, id := range sel.ServiceIDs {
		line := QuoteLine{ServiceID: id}
		if svc, ok := business.Service(id); ok {
			line.Name = svc.Name
			line.Price = svc.Price
			line.OriginalPrice = svc.Price
			line.DurationMinutes = svc.DurationMinutes
		}

		slot, hasSlot := scheduler.FindSlot(slots, id)
		if hasSlot && slot.Name != "" {
			line.Name = slot.Name
		}
		if empID := sel.Employees[id]; empID != nil && hasSlot {
			if emp, ok := slot.Employee(*empID); ok {
				v := emp.ID
				line.EmployeeID = &v
				line.EmployeeName = emp.Name
				line.Price, line.OriginalPrice = EffectivePrice(emp)
				if emp.DurationMinutes > 0 {
					line.DurationMinutes = emp.DurationMinutes
				}
				line.Discount = emp.Discount
			}
		}

		q.Total += line.Price
		q.OriginalTotal += line.OriginalPrice
		q.DurationMinutes += line.DurationMinutes
		q.Lines = append(q.Lines, line)
	}

	q.HasDiscount = q.OriginalTotal > q.Total
	return q
}
