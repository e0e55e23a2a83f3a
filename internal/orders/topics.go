package orders

const (
	TopicKitchenDispatch = "order.kitchen.dispatch"
	TopicOrderStatus     = "order.status.changed"
)
