package codec

import "context"

func extractFeeUpdate(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	bountyFee, err := getBigInt(EventFeeUpdate, args, "bountyFee")
	if err != nil {
		return nil, err
	}
	assertionFee, err := getBigInt(EventFeeUpdate, args, "assertionFee")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"bounty_fee":    bountyFee.Uint64(),
		"assertion_fee": assertionFee.Uint64(),
	}, nil
}

func extractWindowUpdate(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	reveal, err := getBigInt(EventWindowUpdate, args, "assertionRevealWindow")
	if err != nil {
		return nil, err
	}
	vote, err := getBigInt(EventWindowUpdate, args, "arbiterVoteWindow")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"assertion_reveal_window": reveal.Uint64(),
		"arbiter_vote_window":     vote.Uint64(),
	}, nil
}

func extractBounty(ctx context.Context, c *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	guid, err := getBigInt(EventBounty, args, "guid")
	if err != nil {
		return nil, err
	}
	artifactType, err := getBigInt(EventBounty, args, "artifactType")
	if err != nil {
		return nil, err
	}
	author, err := getAddress(EventBounty, args, "author")
	if err != nil {
		return nil, err
	}
	amount, err := getBigInt(EventBounty, args, "amount")
	if err != nil {
		return nil, err
	}
	uri, err := getString(EventBounty, args, "artifactURI")
	if err != nil {
		return nil, err
	}
	expiration, err := getBigInt(EventBounty, args, "expirationBlock")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"guid":          guidToUUID(guid),
		"artifact_type": ArtifactType(artifactType.Int64()).String(),
		"author":        author.Hex(),
		"amount":        amount.String(),
		"uri":           uri,
		"expiration":    expiration.String(),
		"metadata":      c.Resolver.Resolve(ctx, uri),
	}, nil
}

func extractAssertion(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	guid, err := getBigInt(EventAssertion, args, "bountyGuid")
	if err != nil {
		return nil, err
	}
	author, err := getAddress(EventAssertion, args, "author")
	if err != nil {
		return nil, err
	}
	index, err := getBigInt(EventAssertion, args, "index")
	if err != nil {
		return nil, err
	}
	bid, err := getBigIntSlice(EventAssertion, args, "bid")
	if err != nil {
		return nil, err
	}
	mask, err := getBitVector(EventAssertion, args, "mask")
	if err != nil {
		return nil, err
	}
	commitment, err := getBigInt(EventAssertion, args, "commitment")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"bounty_guid": guidToUUID(guid),
		"author":      author.Hex(),
		"index":       index.Uint64(),
		"bid":         decimalStrings(bid),
		"mask":        mask,
		"commitment":  commitment.String(),
	}, nil
}

func extractReveal(ctx context.Context, c *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	guid, err := getBigInt(EventReveal, args, "bountyGuid")
	if err != nil {
		return nil, err
	}
	author, err := getAddress(EventReveal, args, "author")
	if err != nil {
		return nil, err
	}
	index, err := getBigInt(EventReveal, args, "index")
	if err != nil {
		return nil, err
	}
	nonce, err := getBigInt(EventReveal, args, "nonce")
	if err != nil {
		return nil, err
	}
	verdicts, err := getBitVector(EventReveal, args, "verdicts")
	if err != nil {
		return nil, err
	}
	metadataURI, err := getString(EventReveal, args, "metadata")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"bounty_guid": guidToUUID(guid),
		"author":      author.Hex(),
		"index":       index.Uint64(),
		"nonce":       nonce.String(),
		"verdicts":    verdicts,
		"metadata":    c.Resolver.Resolve(ctx, metadataURI),
	}, nil
}

func extractVote(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	guid, err := getBigInt(EventVote, args, "bountyGuid")
	if err != nil {
		return nil, err
	}
	voter, err := getAddress(EventVote, args, "voter")
	if err != nil {
		return nil, err
	}
	votes, err := getBitVector(EventVote, args, "votes")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"bounty_guid": guidToUUID(guid),
		"voter":       voter.Hex(),
		"votes":       votes,
	}, nil
}

func extractQuorum(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	guid, err := getBigInt(EventQuorum, args, "bountyGuid")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"bounty_guid": guidToUUID(guid)}, nil
}

func extractSettledBounty(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	guid, err := getBigInt(EventSettledBounty, args, "bountyGuid")
	if err != nil {
		return nil, err
	}
	settler, err := getAddress(EventSettledBounty, args, "settler")
	if err != nil {
		return nil, err
	}
	payout, err := getBigInt(EventSettledBounty, args, "payout")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"bounty_guid": guidToUUID(guid),
		"settler":     settler.Hex(),
		"payout":      payout.Uint64(),
	}, nil
}

func extractDeprecated(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	rollover, err := getBool(EventDeprecated, args, "rollover")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"rollover": rollover}, nil
}

func extractUndeprecated(_ context.Context, _ *Codec, _ map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func extractInitializedChannel(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	ambassador, err := getAddress(EventInitializedChannel, args, "ambassador")
	if err != nil {
		return nil, err
	}
	expert, err := getAddress(EventInitializedChannel, args, "expert")
	if err != nil {
		return nil, err
	}
	guid, err := getBigInt(EventInitializedChannel, args, "guid")
	if err != nil {
		return nil, err
	}
	msig, err := getAddress(EventInitializedChannel, args, "msig")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"ambassador":      ambassador.Hex(),
		"expert":          expert.Hex(),
		"guid":            guidToUUID(guid),
		"multi_signature": msig.Hex(),
	}, nil
}

func extractClosedAgreement(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	ambassador, err := getAddress(EventClosedAgreement, args, "_ambassador")
	if err != nil {
		return nil, err
	}
	expert, err := getAddress(EventClosedAgreement, args, "_expert")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"ambassador": ambassador.Hex(),
		"expert":     expert.Hex(),
	}, nil
}

func extractSettleStarted(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	initiator, err := getAddress(EventSettleStarted, args, "initiator")
	if err != nil {
		return nil, err
	}
	nonce, err := getBigInt(EventSettleStarted, args, "sequence")
	if err != nil {
		return nil, err
	}
	end, err := getBigInt(EventSettleStarted, args, "settlementPeriodEnd")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"initiator":         initiator.Hex(),
		"nonce":             nonce.Uint64(),
		"settle_period_end": end.Uint64(),
	}, nil
}

func extractSettleChallenged(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	challenger, err := getAddress(EventSettleChallenged, args, "challenger")
	if err != nil {
		return nil, err
	}
	nonce, err := getBigInt(EventSettleChallenged, args, "sequence")
	if err != nil {
		return nil, err
	}
	end, err := getBigInt(EventSettleChallenged, args, "settlementPeriodEnd")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"challenger":        challenger.Hex(),
		"nonce":             nonce.Uint64(),
		"settle_period_end": end.Uint64(),
	}, nil
}

// --- extraction-table-only kinds (used by the event extractor, never streamed) ---

func extractTransfer(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	from, err := getAddress(EventTransfer, args, "from")
	if err != nil {
		return nil, err
	}
	to, err := getAddress(EventTransfer, args, "to")
	if err != nil {
		return nil, err
	}
	value, err := getBigInt(EventTransfer, args, "value")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"from":  from.Hex(),
		"to":    to.Hex(),
		"value": value.String(),
	}, nil
}

func extractWithdrawal(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	from, err := getAddress(EventNewWithdrawal, args, "from")
	if err != nil {
		return nil, err
	}
	value, err := getBigInt(EventNewWithdrawal, args, "value")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"from": from.Hex(), "value": value.String()}, nil
}

func extractDeposit(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	from, err := getAddress(EventNewDeposit, args, "from")
	if err != nil {
		return nil, err
	}
	value, err := getBigInt(EventNewDeposit, args, "value")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"from": from.Hex(), "value": value.String()}, nil
}

func extractOpenedAgreement(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	ambassador, err := getAddress(EventOpenedAgreement, args, "_ambassador")
	if err != nil {
		return nil, err
	}
	expert, err := getAddress(EventOpenedAgreement, args, "_expert")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ambassador": ambassador.Hex(), "expert": expert.Hex()}, nil
}

func extractCanceledAgreement(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	ambassador, err := getAddress(EventCanceledAgreement, args, "_ambassador")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ambassador": ambassador.Hex()}, nil
}

func extractJoinedAgreement(_ context.Context, _ *Codec, args map[string]interface{}) (map[string]interface{}, error) {
	ambassador, err := getAddress(EventJoinedAgreement, args, "_ambassador")
	if err != nil {
		return nil, err
	}
	expert, err := getAddress(EventJoinedAgreement, args, "_expert")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ambassador": ambassador.Hex(), "expert": expert.Hex()}, nil
}
