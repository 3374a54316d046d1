package models

type ProductFeatures struct {
	ItemID                string    `json:"item_identifier"`
	TotalSales            float64   `json:"total_sales"`
	AvgSalesPerStore      float64   `json:"avg_sales_per_store"`
	StdSales              float64   `json:"std_sales"`
	NumStoreRecords       int       `json:"num_store_records"`
	AvgMRP                float64   `json:"avg_mrp"`
	AvgWeight             float64   `json:"avg_weight"`
	AvgVisibility         float64   `json:"avg_visibility"`
	NumStores             int       `json:"num_stores"`
	ItemType              string    `json:"item_type"`
	ItemFatContent        string    `json:"item_fat_content"`
	ItemTypeEncoded       int       `json:"item_type_encoded"`
	ItemFatContentEncoded int       `json:"item_fat_content_encoded"`
	SalesStability        float64   `json:"sales_stability"`
	PricePerUnitWeight    float64   `json:"price_per_unit_weight"`
	Cluster               int       `json:"cluster"`
	Projection            []float64 `json:"projection,omitempty"`
}

type StoreClusterSummary struct {
	OutletID            string  `json:"outlet_identifier"`
	Cluster             int     `json:"cluster"`
	TotalSalesCluster   float64 `json:"total_sales_cluster"`
	AvgSalesPerProduct  float64 `json:"avg_sales_per_product"`
	NumRecords          int     `json:"num_records"`
	NumUniqueProducts   int     `json:"num_unique_products"`
	AvgMRP              float64 `json:"avg_mrp"`
	StoreTotalSales     float64 `json:"store_total_sales"`
	PctSalesFromCluster float64 `json:"pct_sales_from_cluster"`
}

type StoreSummary struct {
	OutletID          string    `json:"outlet_identifier"`
	TotalSales        float64   `json:"total_sales"`
	OutletType        string    `json:"outlet_type"`
	OutletSize        string    `json:"outlet_size"`
	OutletLocation    string    `json:"outlet_location_type"`
	OutletYear        int       `json:"outlet_establishment_year"`
	NumUniqueProducts int       `json:"num_unique_products"`
	UnlabeledRecords  int       `json:"unlabeled_records"`
	PctCluster        []float64 `json:"pct_cluster"`
}

type KScore struct {
	K     int     `json:"k"`
	Score float64 `json:"score"`
	Valid bool    `json:"valid"`
}

type Selection struct {
	K      int      `json:"k"`
	Score  float64  `json:"score"`
	Scores []KScore `json:"scores"`
}

type ClusterStats struct {
	Cluster        int     `json:"cluster"`
	AvgTotalSales  float64 `json:"avg_total_sales"`
	SumTotalSales  float64 `json:"sum_total_sales"`
	NumProducts    int     `json:"num_products"`
	AvgMRP         float64 `json:"avg_mrp"`
	AvgNumStores   float64 `json:"avg_num_stores"`
	MostCommonType string  `json:"most_common_type"`
}

type TypeShare struct {
	Cluster  int     `json:"cluster"`
	ItemType string  `json:"item_type"`
	Count    int     `json:"count"`
	Pct      float64 `json:"pct"`
}

type StoreTypeMix struct {
	OutletType     string  `json:"outlet_type"`
	Cluster        int     `json:"cluster"`
	Sales          float64 `json:"sales"`
	UniqueProducts int     `json:"unique_products"`
	PctSales       float64 `json:"pct_sales"`
}
