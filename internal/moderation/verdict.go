package moderation

// Fixed response texts. The wording follows the classroom deployment the
// service was built for.
const (
	// NeutralAcknowledgement fills every response slot of a non-anomalous
	// verdict and of the parse-failure default.
	NeutralAcknowledgement = "继续保持良好的学习氛围"
	// UnavailableApology fills every response slot when the oracle could not
	// be reached.
	UnavailableApology = "抱歉，我现在无法正确分析对话，请稍后再试。"
	// ClearedAcknowledgement answers the "clear" control token.
	ClearedAcknowledgement = "对话上下文已清空。"
)

// Outcome records which path produced a verdict.
type Outcome string

const (
	OutcomeAnomaly          Outcome = "anomaly"
	OutcomeClean            Outcome = "clean"
	OutcomeParseFailure     Outcome = "parse_failure"
	OutcomeTransportFailure Outcome = "transport_failure"
	OutcomeCleared          Outcome = "cleared"
)

// Analysis attributes an anomaly to conversation participants.
type Analysis struct {
	Attacker string `json:"attacker"`
	Victim   string `json:"victim"`
}

// Responses holds one drafted reply per recipient role.
type Responses struct {
	ToAttacker string `json:"to_attacker"`
	ToVictim   string `json:"to_victim"`
	ToOthers   string `json:"to_others"`
}

// Verdict is the structured result of classifying one message.
type Verdict struct {
	IsAnomaly bool      `json:"is_anomaly"`
	Reason    string    `json:"reason"`
	Analysis  Analysis  `json:"analysis"`
	Responses Responses `json:"responses"`
	// Outcome is never part of the model's reply.
	Outcome Outcome `json:"-"`
}

func uniformResponses(text string) Responses {
	return Responses{ToAttacker: text, ToVictim: text, ToOthers: text}
}

// CleanVerdict is the normalized verdict for a non-anomalous message.
func CleanVerdict() Verdict {
	return Verdict{Responses: uniformResponses(NeutralAcknowledgement), Outcome: OutcomeClean}
}

// ParseFailureVerdict is returned when the model reply cannot be decoded.
func ParseFailureVerdict() Verdict {
	return Verdict{Responses: uniformResponses(NeutralAcknowledgement), Outcome: OutcomeParseFailure}
}

// TransportFailureVerdict is returned when the model could not be reached.
func TransportFailureVerdict() Verdict {
	return Verdict{Responses: uniformResponses(UnavailableApology), Outcome: OutcomeTransportFailure}
}

// ClearedVerdict answers a context reset.
func ClearedVerdict() Verdict {
	return Verdict{Responses: uniformResponses(ClearedAcknowledgement), Outcome: OutcomeCleared}
}
