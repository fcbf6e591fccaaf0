package membership

// statusRank orders statuses for Dedupe: approved beats pending beats rejected.
var statusRank = map[Status]int{
	StatusApproved: 3,
	StatusPending:  2,
	StatusRejected: 1,
}

// Dedupe reduces a user's records to one per community, keyed by community id.
// The highest-ranked status wins; among equal statuses the latest request wins.
func Dedupe(records []Record) map[string]Record {
	var best = make(map[string]Record, len(records))

	for _, record := range records {
		var current, seen = best[record.CommunityID]
		if !seen || outranks(record, current) {
			best[record.CommunityID] = record
		}
	}

	return best
}

func outranks(candidate, current Record) bool {
	var (
		candidateRank = statusRank[candidate.Status]
		currentRank   = statusRank[current.Status]
	)
	if candidateRank != currentRank {
		return candidateRank > currentRank
	}
	return candidate.RequestedAt.After(current.RequestedAt)
}
