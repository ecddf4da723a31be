package cart

// Merge reconciles a client-local cart into the persisted remote cart.
//
// Items are matched by trimmed, lower-cased name. When a name is present on
// both sides the quantities are added; unit and category come from the local
// item when set, everything else keeps the remote row (including its casing).
// Names present on one side only pass through unchanged. Items with an empty
// name or a non-positive quantity are dropped.
//
// Merge adds quantities every time it runs, so a given local batch must be
// merged at most once.
func Merge(local, remote []LineItem) []LineItem {
	remoteKeys, remoteByKey := fold(remote)
	localKeys, localByKey := fold(local)

	out := make([]LineItem, 0, len(remoteKeys)+len(localKeys))
	for _, key := range remoteKeys {
		merged := remoteByKey[key]
		if incoming, ok := localByKey[key]; ok {
			merged.Quantity += incoming.Quantity
			if incoming.Unit != "" {
				merged.Unit = incoming.Unit
			}
			if incoming.Category != "" {
				merged.Category = incoming.Category
			}
			if merged.ID == "" {
				merged.ID = incoming.ID
			}
		}
		out = append(out, merged)
	}
	for _, key := range localKeys {
		if _, ok := remoteByKey[key]; ok {
			continue
		}
		out = append(out, localByKey[key])
	}
	return out
}

// fold drops invalid items and collapses duplicate keys within one side,
// keeping the first occurrence's fields and adding quantities.
func fold(items []LineItem) ([]string, map[string]LineItem) {
	keys := make([]string, 0, len(items))
	byKey := make(map[string]LineItem, len(items))
	for _, it := range items {
		if !it.Valid() {
			continue
		}
		key := it.Key()
		if existing, ok := byKey[key]; ok {
			existing.Quantity += it.Quantity
			byKey[key] = existing
			continue
		}
		keys = append(keys, key)
		byKey[key] = it
	}
	return keys, byKey
}
