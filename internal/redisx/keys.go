package redisx

import "time"

const (
	// Product detail cache: product:{product_id} -> product JSON
	KeyProductCache = "product:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Low-stock alert marker, keyed by product + the stock level it fired
	// at so the alert re-arms after a restock: stock_alert:{product_id}:{stock}
	KeyStockAlert = "stock_alert:%s:%d"
)

var (
	TTLProductCache = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
	TTLStockAlert   = 24 * time.Hour
)
