package csv

// RequestColumns names the sales programme columns
type RequestColumns struct {
	ClientName  string `mapstructure:"client_name" yaml:"client_name"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	ClientGroup string `mapstructure:"client_group" yaml:"client_group"`
	Location    string `mapstructure:"location" yaml:"location"`
	Product     string `mapstructure:"product" yaml:"product"`
	// Quantity is the column of the planning period, e.g. "JAN 2024". Rows where it is empty are skipped.
	Quantity string `mapstructure:"quantity" yaml:"quantity"`
}

// StockColumns names the stock report columns. Every header made of digits only
// is read as the eligibility column of that client code.
type StockColumns struct {
	Center    string `mapstructure:"center" yaml:"center"`
	Mill      string `mapstructure:"mill" yaml:"mill"`
	ShippedAt string `mapstructure:"shipped_at" yaml:"shipped_at"`
	Batch     string `mapstructure:"batch" yaml:"batch"`
	Product   string `mapstructure:"product" yaml:"product"`
	Arrived   string `mapstructure:"arrived" yaml:"arrived"`
	InTransit string `mapstructure:"in_transit" yaml:"in_transit"`
}

// PriorityColumns names the client importance columns
type PriorityColumns struct {
	Client     string `mapstructure:"client" yaml:"client"`
	Importance string `mapstructure:"importance" yaml:"importance"`
}

// Columns maps logical fields to source column names for every table
type Columns struct {
	Requests   RequestColumns  `mapstructure:"requests" yaml:"requests"`
	Stock      StockColumns    `mapstructure:"stock" yaml:"stock"`
	Priorities PriorityColumns `mapstructure:"priorities" yaml:"priorities"`
}

// DefaultColumns returns the column names of the bundled CSV exports
func DefaultColumns() Columns {
	return Columns{
		Requests: RequestColumns{
			ClientName:  "client_name",
			ClientID:    "client_id",
			ClientGroup: "client_group",
			Location:    "location",
			Product:     "product_id",
			Quantity:    "requested",
		},
		Stock: StockColumns{
			Center:    "center",
			Mill:      "mill",
			ShippedAt: "shipped_at",
			Batch:     "batch_id",
			Product:   "product_id",
			Arrived:   "arrived_mass",
			InTransit: "in_transit_mass",
		},
		Priorities: PriorityColumns{
			Client:     "client_id",
			Importance: "importance",
		},
	}
}
