package cost

import (
	"math"
	"strings"
)

// Component is one bill-of-materials entry to price
type Component struct {
	Name       string
	PartNumber string
	Count      float64
}

// Item is one priced line of an estimate
type Item struct {
	Name        string  `json:"name"`
	PartNumber  string  `json:"part_number"`
	Count       float64 `json:"count"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
	MatchedType string  `json:"matched_type"`
}

// Estimate is a priced bill of materials
type Estimate struct {
	Items     []Item  `json:"items"`
	TotalCost float64 `json:"total_cost"`
	Currency  string  `json:"currency"`
}

// priceTable maps part-number fragments and name keywords to unit prices
var priceTable = []struct {
	key   string
	price float64
}{
	{"connector", 5.50},
	{"cable", 2.00},
	{"wire", 0.50},
	{"shield", 1.20},
	{"jacket", 0.80},
	{"relief", 0.30},
	{"contact", 0.10},
	{"housing", 1.50},
	{"label", 0.05},
	{"tube", 0.20},
	{"ha-190031", 15.00},
	{"m12-5p", 8.00},
}

const fallbackPrice = 1.0

// Calculate prices a component list against the static table. A part-number
// match takes precedence over a name keyword match; unknown components get
// the fallback price.
func Calculate(components []Component) *Estimate {
	est := &Estimate{Currency: "USD"}

	for _, comp := range components {
		count := comp.Count
		if count <= 0 {
			count = 1
		}

		price, matched := lookup(comp.PartNumber)
		if matched != "" {
			matched += " (PN)"
		} else {
			price, matched = lookup(comp.Name)
		}
		if matched == "" {
			price = fallbackPrice
			matched = "estimate"
		}

		total := price * count
		est.TotalCost += total
		est.Items = append(est.Items, Item{
			Name:        comp.Name,
			PartNumber:  comp.PartNumber,
			Count:       count,
			UnitPrice:   price,
			Total:       total,
			MatchedType: matched,
		})
	}

	est.TotalCost = math.Round(est.TotalCost*100) / 100
	return est
}

func lookup(s string) (float64, string) {
	if s == "" {
		return 0, ""
	}
	lower := strings.ToLower(s)
	for _, entry := range priceTable {
		if strings.Contains(lower, entry.key) {
			return entry.price, entry.key
		}
	}
	return 0, ""
}
