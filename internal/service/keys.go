package service

// Store keys derived from a message id.
func markerKey(messageID string) string  { return "delivery:" + messageID }
func counterKey(messageID string) string { return "attempts:" + messageID }
func lockKey(messageID string) string    { return "lock:delivery:" + messageID }

const markerValue = "done"
