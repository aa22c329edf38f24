package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderUpdated   = "order.updated"
	TopicOrderCompleted = "order.completed"
	TopicOrderCancelled = "order.cancelled"
	TopicLotRetired     = "lot.retired"
)

// TopicFor maps an event type to its topic.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderCreated:
		return TopicOrderCreated
	case EventOrderUpdated:
		return TopicOrderUpdated
	case EventOrderCompleted:
		return TopicOrderCompleted
	case EventOrderCancelled:
		return TopicOrderCancelled
	case EventLotRetired:
		return TopicLotRetired
	}
	return ""
}

// Partition key = aggregate id, so every event of one order keeps its order.
func PartitionKey(id string) []byte { return []byte(id) }
