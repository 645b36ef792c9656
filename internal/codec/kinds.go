// Package codec translates raw contract log records into the stable wire
// frames streamed to WebSocket subscribers and returned by the event
// extractor.
package codec

// EventKind identifies one of the fixed set of wire event names the gateway
// emits. It is a closed sum type: every value except EventBlock (built by
// DecodeBlockTick) has exactly one extraction function registered in the
// extractors table in message.go.
type EventKind string

const (
	EventFeeUpdate          EventKind = "fee_update"
	EventWindowUpdate       EventKind = "window_update"
	EventBounty             EventKind = "bounty"
	EventAssertion          EventKind = "assertion"
	EventReveal             EventKind = "reveal"
	EventVote               EventKind = "vote"
	EventQuorum             EventKind = "quorum"
	EventSettledBounty      EventKind = "settled_bounty"
	EventDeprecated         EventKind = "deprecated"
	EventUndeprecated       EventKind = "undeprecated"
	EventInitializedChannel EventKind = "initialized_channel"
	EventClosedAgreement    EventKind = "closed_agreement"
	EventSettleStarted      EventKind = "settle_started"
	EventSettleChallenged   EventKind = "settle_challenged"
	EventBlock              EventKind = "block"

	// transaction relay extraction kinds, not streamed over websocket
	EventTransfer          EventKind = "transfer"
	EventNewWithdrawal     EventKind = "withdrawal"
	EventNewDeposit        EventKind = "deposit"
	EventOpenedAgreement   EventKind = "opened_agreement"
	EventCanceledAgreement EventKind = "canceled_agreement"
	EventJoinedAgreement   EventKind = "joined_agreement"
)

// SourceLogName is the contract event name (as declared in the ABI) that
// produces this EventKind's wire frame.
var SourceLogName = map[EventKind]string{
	EventFeeUpdate:          "FeesUpdated",
	EventWindowUpdate:       "WindowsUpdated",
	EventBounty:             "NewBounty",
	EventAssertion:          "NewAssertion",
	EventReveal:             "RevealedAssertion",
	EventVote:               "NewVote",
	EventQuorum:             "QuorumReached",
	EventSettledBounty:      "SettledBounty",
	EventDeprecated:         "Deprecated",
	EventUndeprecated:       "Undeprecated",
	EventInitializedChannel: "InitializedChannel",
	EventClosedAgreement:    "ClosedAgreement",
	EventSettleStarted:      "StartedSettle",
	EventSettleChallenged:   "SettleStateChallenged",
	EventTransfer:           "Transfer",
	EventNewWithdrawal:      "NewWithdrawal",
	EventNewDeposit:         "NewDeposit",
	EventOpenedAgreement:    "OpenedAgreement",
	EventCanceledAgreement:  "CanceledAgreement",
	EventJoinedAgreement:    "JoinedAgreement",
}

// ArtifactType is the NewBounty.artifactType enum.
type ArtifactType int

const (
	ArtifactTypeFile ArtifactType = 0
	ArtifactTypeURL  ArtifactType = 1
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeFile:
		return "file"
	case ArtifactTypeURL:
		return "url"
	default:
		return "unknown"
	}
}
