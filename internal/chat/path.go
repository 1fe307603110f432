package chat

// maxPathHops bounds the parent walk so a corrupted transcript with a
// parent cycle cannot spin forever.
const maxPathHops = 20

// MessagePath walks parent_id links from the message with the given id
// back to the root and returns that slice of the conversation in
// chronological order. An empty id starts from the last message.
func MessagePath(messages []Message, messageID string) []Message {
	if len(messages) == 0 {
		return nil
	}
	byID := make(map[string]Message, len(messages))
	for _, m := range messages {
		if m.ID != "" {
			byID[m.ID] = m
		}
	}

	start := messageID
	if start == "" {
		start = messages[len(messages)-1].ID
	}

	var reversed []Message
	seen := map[string]bool{}
	for id := start; id != "" && len(reversed) < maxPathHops; {
		if seen[id] {
			break
		}
		m, ok := byID[id]
		if !ok {
			break
		}
		seen[id] = true
		reversed = append(reversed, m)
		id = m.ParentID
	}

	path := make([]Message, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}
