package admission

import (
	"context"
	"time"

	"github.com/flammafex/prestige/types"
	"go.vocdoni.io/dvote/log"
)

// tokenRequest is one queued issuance: the blinded element and the channel
// the result is delivered on.
type tokenRequest struct {
	ctx     context.Context
	blinded []byte
	result  chan tokenResult
}

type tokenResult struct {
	token *types.EligibilityToken
	err   error
}

func batchInterval(cfg *types.Config) time.Duration {
	return time.Duration(cfg.Privacy.BatchIntervalMS) * time.Millisecond
}

// RequestToken checks the requester through the instance voter gate and
// the ballot-level eligibility config, then obtains an eligibility token
// from the issuer for the blinded element. With batching enabled the
// issuance is queued and processed as part of a shuffled batch to break
// timing correlation.
func (a *Admission) RequestToken(ctx context.Context, ballotID string, requester types.HexBytes, blinded []byte) (*types.EligibilityToken, error) {
	if err := a.privacy.RandomDelay(ctx); err != nil {
		return nil, err
	}

	b, err := a.ballots.Refresh(ballotID)
	if err != nil {
		return nil, err
	}
	if b.Status == types.BallotStatusPetition {
		return nil, types.ErrBallotInPetition
	}
	eligible, err := a.voters.CanVote(ctx, requester)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	if !eligible {
		return nil, types.ErrNotEligible.With(a.voters.Requirements())
	}
	// Ballot-level eligibility can only further restrict the instance
	// gate.
	if !b.Eligibility.Allows(requester) {
		return nil, types.ErrNotEligible.With("not on the ballot's eligibility list")
	}

	if a.batcher == nil {
		return a.issueWithTimeout(ctx, blinded)
	}
	req := &tokenRequest{
		ctx:     ctx,
		blinded: blinded,
		result:  make(chan tokenResult, 1),
	}
	a.batcher.Submit(req)
	select {
	case res := <-req.result:
		return res.token, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flushTokenBatch processes one shuffled batch of queued issuances.
func (a *Admission) flushTokenBatch(batch []*tokenRequest) {
	log.Debugw("processing token batch", "size", len(batch))
	for _, req := range batch {
		if req.ctx.Err() != nil {
			req.result <- tokenResult{err: req.ctx.Err()}
			continue
		}
		token, err := a.issueWithTimeout(req.ctx, req.blinded)
		req.result <- tokenResult{token: token, err: err}
	}
}

func (a *Admission) issueWithTimeout(ctx context.Context, blinded []byte) (*types.EligibilityToken, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.OutboundTimeout)
	defer cancel()
	token, err := a.issuer.Issue(ctx, blinded)
	if err != nil {
		return nil, err
	}
	return token, nil
}
