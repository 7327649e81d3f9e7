package items

import "math"

// usageTaxRate is the production tax applied per unit of item value.
const usageTaxRate = 0.1125

// ItemValue computes the economic value the crafting station charges on.
func ItemValue(tier, enchant, numItems int, arte ArteType, isShapeshifter bool) float64 {
	base := 16 * math.Pow(2, float64(tier+enchant-4))
	arteContribution := arteMultiplier[arte] * math.Pow(2, float64(tier-4))

	shapeFactor := 1.0
	if isShapeshifter {
		shapeFactor = 16.0 / 11.0
	}
	return float64(numItems) * (base + arteContribution) * shapeFactor
}

// UsageFee is the station fee for one craft given the per-100 nutrition price.
func UsageFee(itemValue, stationFeePer100 float64) float64 {
	return itemValue * usageTaxRate * (stationFeePer100 / 100)
}
