package billing

// Group is one partition produced by GroupBy.
type Group struct {
	Key   string
	Items []LineItem
}

// GroupBy partitions items by a key function, preserving the first
// occurrence order of distinct keys. The ordering is what decides row
// order in presented output, so it is deliberately not sorted: a stable
// first-seen walk is reproducible for any fixed input slice.
func GroupBy(items []LineItem, keyFn func(LineItem) string) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, item := range items {
		key := keyFn(item)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}
