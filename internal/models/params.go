package models

import "sort"

// ProductParams are the fitted utility parameters of one product.
// IdealPoint and Sensitivity follow the schema's continuous order, IndicatorWeight its indicator order.
type ProductParams struct {
	ID              ProductID
	Name            string
	IdealPoint      []float64
	Sensitivity     []float64
	IndicatorWeight []float64
	Intercept       float64
}

// Model is a fitted set of product parameters. Products are sorted by ID ascending.
type Model struct {
	Schema   *FeatureSchema
	Products []ProductParams
}

// Product returns the parameters for id.
func (m *Model) Product(id ProductID) (*ProductParams, bool) {
	i := sort.Search(len(m.Products), func(i int) bool { return m.Products[i].ID >= id })
	if i < len(m.Products) && m.Products[i].ID == id {
		return &m.Products[i], true
	}
	return nil, false
}

// SortProducts orders products by ID ascending.
func (m *Model) SortProducts() {
	sort.SliceStable(m.Products, func(i, j int) bool { return m.Products[i].ID < m.Products[j].ID })
}
