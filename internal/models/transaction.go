package models

// OptFloat is a numeric cell that may carry the "no value" marker.
type OptFloat struct {
	Value float64
	Valid bool
}

func Float(v float64) OptFloat {
	return OptFloat{Value: v, Valid: true}
}

// Transaction is one (product, store) row of the source table.
type Transaction struct {
	ItemID          string
	ItemWeight      OptFloat
	ItemFatContent  string
	ItemVisibility  float64
	ItemType        string
	ItemMRP         float64
	OutletID        string
	OutletYear      int
	OutletSize      string
	OutletLocation  string
	OutletType      string
	ItemOutletSales float64
	Extra           []string
	SourceRowNumber int
}

// LabeledTransaction is a transaction after the product->cluster left join.
type LabeledTransaction struct {
	Transaction
	Cluster int
	Labeled bool
}

type Overview struct {
	Records    int     `json:"records"`
	Products   int     `json:"products"`
	Stores     int     `json:"stores"`
	TotalSales float64 `json:"total_sales"`
}
