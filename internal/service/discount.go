package service

import "promo-service/internal/models"

// DiscountAmount computes the money value of a discount against a
// purchase. A fixed discount is capped at the purchase amount so the
// final price can never go negative.
func DiscountAmount(discountType models.DiscountType, discount, amount float64) float64 {
	switch discountType {
	case models.DiscountPercentage:
		return amount * discount / 100
	case models.DiscountFixed:
		if discount > amount {
			return amount
		}
		return discount
	}
	return 0
}

// FinalPrice applies the discount and clamps at zero.
func FinalPrice(discountType models.DiscountType, discount, amount float64) float64 {
	price := amount - DiscountAmount(discountType, discount, amount)
	if price < 0 {
		price = 0
	}
	return price
}
