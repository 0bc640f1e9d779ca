package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/termmapd/internal/ranker"
	"go.uber.org/zap"
)

// agentState tracks where the tool loop is.
type agentState int

const (
	// stateAwaiting: a generation request is pending.
	stateAwaiting agentState = iota
	// stateToolInvoked: the provider asked for a term search and the
	// observation has been appended to the transcript.
	stateToolInvoked
	// stateTerminalSuccess: the provider committed to a candidate from a
	// tool observation.
	stateTerminalSuccess
	// stateTerminalFallback: the loop ended without a usable match.
	stateTerminalFallback
)

// Action protocol verbs the provider may emit.
const (
	actionSearch = "search_terms"
	actionFinish = "finish"
)

// agentSystemPrompt frames the tool loop. The provider answers with exactly
// one JSON action per turn.
const agentSystemPrompt = `You are an expert business terminology standardization system. Your task is to map user-provided terms and descriptions to the organization's Preferred Business Terms (PBT).

You have one tool available. On each turn, respond with exactly one JSON object and nothing else:
- {"action": "search_terms", "query": "<search text>"} to search the term catalog. The search returns both specific matches and broader category matches; consider both when making your recommendation.
- {"action": "finish", "term_id": "<id>", "narrative": "<explanation>"} to commit to a final answer. The term_id must come from a search result. Explain why the match is appropriate, focusing on conceptual alignment rather than keyword matching, and mention broader matches and synonym matches when present.`

// agentAction is one parsed provider turn.
type agentAction struct {
	Action    string `json:"action"`
	Query     string `json:"query,omitempty"`
	TermID    string `json:"term_id,omitempty"`
	Narrative string `json:"narrative,omitempty"`
}

var agentJSONPattern = regexp.MustCompile(`(?s)\{.*\}`)

// classifyAgent drives the provider through the tool loop. If the loop ends
// without a committed match the request is reclassified with the embeddings
// strategy; the caller never sees the fallback as an error.
func (s *Service) classifyAgent(ctx context.Context, req Request) Result {
	seen := make(map[string]ranker.MatchCandidate)
	// Each id maps to the full result list of the search turn it appeared
	// in, so a commit to an earlier turn's id keeps that turn's shortlist.
	origin := make(map[string][]ranker.MatchCandidate)
	var committed ranker.MatchCandidate
	var committedList []ranker.MatchCandidate

	transcript := []string{agentSystemPrompt, s.userTurn(req)}
	state := stateAwaiting
	narrative := ""

	for turn := 0; turn < s.maxTurns && state != stateTerminalSuccess && state != stateTerminalFallback; turn++ {
		response, err := s.generator.Complete(ctx, strings.Join(transcript, "\n\n"))
		if err != nil {
			s.logger.Warn("agent turn failed", zap.Int("turn", turn), zap.Error(err))
			state = stateTerminalFallback
			break
		}

		action, ok := parseAgentAction(response)
		if !ok {
			transcript = append(transcript, response,
				`Observation: response was not a valid action. Reply with exactly one JSON object using "search_terms" or "finish".`)
			continue
		}
		transcript = append(transcript, response)

		switch action.Action {
		case actionSearch:
			query := action.Query
			if query == "" {
				query = queryText(req)
			}
			candidates, err := s.matcher.FindSimilar(ctx, query, defaultTopN, true)
			if err != nil {
				s.logger.Warn("agent tool search failed", zap.String("query", query), zap.Error(err))
				state = stateTerminalFallback
				break
			}
			for _, c := range candidates {
				seen[c.TermID] = c
				origin[c.TermID] = candidates
			}
			transcript = append(transcript, "Observation: "+renderToolObservation(candidates))
			state = stateToolInvoked

		case actionFinish:
			if candidate, known := seen[action.TermID]; known {
				committed = candidate
				committedList = origin[action.TermID]
				narrative = action.Narrative
				state = stateTerminalSuccess
				break
			}
			s.logger.Warn("agent committed to unknown term id",
				zap.String("term_id", action.TermID))
			state = stateTerminalFallback

		default:
			transcript = append(transcript,
				fmt.Sprintf("Observation: unknown action %q. Use \"search_terms\" or \"finish\".", action.Action))
		}
	}

	if state != stateTerminalSuccess {
		s.logger.Info("agent loop ended without a match, falling back to embeddings",
			zap.String("name", req.Name))
		result := s.classifyEmbeddings(ctx, req)
		result.Narrative = narrative
		return result
	}

	query := queryText(req)
	score := s.scorer.Evaluate(ctx, query, committed)
	result := successResult(committed, committedList, &score, narrative)
	s.memory.save(req, committed, score.Score)
	return result
}

// userTurn renders the request, plus any remembered prior classification of
// the same input.
func (s *Service) userTurn(req Request) string {
	turn := fmt.Sprintf("Please map the following to standard Preferred Business Terms, including both specific and broader category matches:\n\nName: %s\nDescription: %s", req.Name, req.Description)
	if entry, ok := s.memory.lookup(req); ok {
		turn += fmt.Sprintf("\n\nI've previously classified similar input with the following result:\nPrevious Match: %s (ID: %s)\nPrevious Confidence: %.0f", entry.BestMatchName, entry.BestMatchID, entry.Confidence)
	}
	return turn
}

// parseAgentAction accepts strict JSON or JSON embedded in prose.
func parseAgentAction(response string) (agentAction, bool) {
	var action agentAction
	if err := json.Unmarshal([]byte(response), &action); err == nil && action.Action != "" {
		return action, true
	}
	if block := agentJSONPattern.FindString(response); block != "" {
		if err := json.Unmarshal([]byte(block), &action); err == nil && action.Action != "" {
			return action, true
		}
	}
	return agentAction{}, false
}

// renderToolObservation serializes search results for the transcript.
func renderToolObservation(candidates []ranker.MatchCandidate) string {
	if len(candidates) == 0 {
		return `{"status": "error", "message": "No similar terms found"}`
	}
	payload, err := json.Marshal(map[string]any{
		"status":  "success",
		"matches": candidates,
	})
	if err != nil {
		return `{"status": "error", "message": "failed to serialize matches"}`
	}
	return string(payload)
}
