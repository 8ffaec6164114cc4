package resolution

import (
	"context"
	"fmt"

	"horse.fit/intake/internal/candidate"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/dedup"
)

// Decisions an operator can take on a flagged match.
const (
	DecisionAddAnyway = "add_anyway"
	DecisionMerge     = "merge"
	DecisionLink      = "link"
	DecisionDismiss   = "dismiss"
)

// DecisionFunc chooses what to do with the strongest remaining match. It is
// called once per re-check round until the flow commits or every match is
// dismissed.
type DecisionFunc func(report dedup.Report, match dedup.Match) (string, error)

// Outcome reports how an intake flow concluded.
type Outcome struct {
	Decision  string
	Candidate *db.CandidateRecord
}

// Resolve drives one interactive intake: check, present the strongest match,
// apply the decision, re-check with accumulated dismissals. Exactly one
// record write commits per call.
func (s *Service) Resolve(ctx context.Context, draft candidate.Draft, actor string, decide DecisionFunc) (*Outcome, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("invalid draft: %w", err)
	}

	session := NewSession()
	for {
		report, err := s.CheckDuplicates(ctx, CheckRequest{Draft: draft, Session: session})
		if err != nil {
			return nil, err
		}
		if !report.HasDuplicates {
			record, err := s.CreateCandidate(ctx, draft, CreateOptions{
				Actor:     actor,
				SkipCheck: true,
				Session:   session,
			})
			if err != nil {
				return nil, err
			}
			return &Outcome{Decision: DecisionAddAnyway, Candidate: record}, nil
		}

		match := report.Matches[0]
		decision, err := decide(report, match)
		if err != nil {
			return nil, err
		}

		switch decision {
		case DecisionDismiss:
			s.DismissMatch(session, match.Candidate.CandidateID, actor)
			continue

		case DecisionMerge:
			record, err := s.Merge(ctx, MergeRequest{
				PrimaryID: match.Candidate.CandidateID,
				Draft:     draft,
				Actor:     actor,
			})
			if err != nil {
				return nil, err
			}
			return &Outcome{Decision: DecisionMerge, Candidate: record}, nil

		case DecisionLink:
			record, err := s.Link(ctx, LinkRequest{
				PrimaryID: match.Candidate.CandidateID,
				Draft:     draft,
				Actor:     actor,
				Session:   session,
			})
			if err != nil {
				return nil, err
			}
			return &Outcome{Decision: DecisionLink, Candidate: record}, nil

		case DecisionAddAnyway:
			record, err := s.CreateCandidate(ctx, draft, CreateOptions{
				Actor:    actor,
				Override: true,
				Session:  session,
			})
			if err != nil {
				return nil, err
			}
			return &Outcome{Decision: DecisionAddAnyway, Candidate: record}, nil

		default:
			return nil, fmt.Errorf("unknown resolution decision %q", decision)
		}
	}
}
