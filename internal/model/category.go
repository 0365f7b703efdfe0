package model

import "fmt"

// Category is the closed set of buckets a post can be classified into
type Category string

const (
	CategoryOzon         Category = "OZON"
	CategoryWildberries  Category = "WILDBERRIES"
	CategoryYandexMarket Category = "YANDEX_MARKET"
	CategoryOther        Category = "OTHER"
)

// Categories lists every category in declared order.
// Rule precedence and digest section order both follow this order.
var Categories = []Category{
	CategoryOzon,
	CategoryWildberries,
	CategoryYandexMarket,
	CategoryOther,
}

// ParseCategory resolves a category name from config or storage
func ParseCategory(name string) (Category, error) {
	for _, c := range Categories {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}

// Rank returns the declared position of the category, or len(Categories) when unknown
func (c Category) Rank() int {
	for i, known := range Categories {
		if known == c {
			return i
		}
	}
	return len(Categories)
}
