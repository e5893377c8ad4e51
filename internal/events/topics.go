package events

// Topic constants for payment handoff events.
const (
	TopicOrderAwaitingPayment = "order.awaiting_payment"
	TopicOrderPaid            = "order.paid"
	TopicPaymentNotCompleted  = "payment.not_completed"
)

// DefaultTopics returns the topics a Bus accepts when none are configured.
func DefaultTopics() []string {
	return []string{
		TopicOrderAwaitingPayment,
		TopicOrderPaid,
		TopicPaymentNotCompleted,
	}
}

func knownTopic(topics []string, topic string) bool {
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
