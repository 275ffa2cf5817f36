package moderation

// ResolvedResponse is the reply a single viewer should see.
type ResolvedResponse struct {
	Viewer string `json:"viewer"`
	Text   string `json:"text"`
}

// Select picks the drafted response for viewer. The attacker check runs
// first, so a verdict naming the viewer as both attacker and victim yields
// the attacker response. Empty names never match.
func Select(v Verdict, viewer string) string {
	switch {
	case viewer != "" && viewer == v.Analysis.Attacker:
		return v.Responses.ToAttacker
	case viewer != "" && viewer == v.Analysis.Victim:
		return v.Responses.ToVictim
	default:
		return v.Responses.ToOthers
	}
}

func Resolve(v Verdict, viewer string) ResolvedResponse {
	return ResolvedResponse{Viewer: viewer, Text: Select(v, viewer)}
}
