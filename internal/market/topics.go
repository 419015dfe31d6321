package market

const (
	TopicOrderPlaced    = "market.order.placed"
	TopicOrderCancelled = "market.order.cancelled"
	TopicStockLow       = "market.stock.low"
	TopicProductDeleted = "market.product.deleted"
)

// Partition key = order_id (or product_id for catalog events), so all events
// of one aggregate keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
