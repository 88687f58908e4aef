package order

import (
	"encoding/csv"
	"strconv"
)

// csvHeader is the column layout for order history exports.
var csvHeader = []string{
	"order_id", "user_id", "status", "created_at",
	"product_id", "product_name", "variation", "qty",
	"price", "carrying_fee", "shipping_fee", "discount", "total",
}

// WriteCSV writes one row per order item, so per-variation lines stay
// visible in the export.
func WriteCSV(cw *csv.Writer, orders []Order) error {
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, o := range orders {
		for _, it := range o.Items {
			row := []string{
				o.ID, o.UserID, o.Status, o.CreatedAt.Format("2006-01-02 15:04:05"),
				it.ProductID, it.Name, it.Variation, strconv.Itoa(it.Qty),
				it.Price.String(), it.CarryingFee.String(),
				o.ShippingFee.String(), o.Discount.String(), o.Total.String(),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}
