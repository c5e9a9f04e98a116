package mcp

import (
	"encoding/json"
	"math"

	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// bytesPerEstimatedToken is §4.H's token estimate: ceil(len(JSON)/3).
const bytesPerEstimatedToken = 3

// dropFraction is the fraction of the remaining rows dropped from the tail
// on each shrink iteration, per §4.H's "~25% chunks" rule.
const dropFraction = 0.25

func estimateTokens(byteLen int) int {
	return (byteLen + bytesPerEstimatedToken - 1) / bytesPerEstimatedToken
}

// searchPayload is the exact shape SearchOutput marshals to; used here to
// size the payload without depending on SearchOutput's jsonschema tags.
type searchPayload struct {
	Results    []model.SearchRow `json:"results"`
	Pagination model.Pagination  `json:"pagination"`
}

// fitResponseBudget shrinks rows from the tail in ~25% chunks until the
// marshaled {results, pagination} payload's estimated token count is within
// maxTokens, updating pagination to reflect whatever was actually kept
// (§4.H: "update pagination... has_more = true if dropped"). An empty
// result with has_more still set signals the payload cannot shrink further.
func fitResponseBudget(rows []model.SearchRow, pagination model.Pagination, maxTokens int) ([]model.SearchRow, model.Pagination, error) {
	for {
		encoded, err := json.Marshal(searchPayload{Results: rows, Pagination: pagination})
		if err != nil {
			return nil, pagination, err
		}

		if estimateTokens(len(encoded)) <= maxTokens || len(rows) == 0 {
			return rows, pagination, nil
		}

		dropped := int(math.Ceil(float64(len(rows)) * dropFraction))
		if dropped < 1 {
			dropped = 1
		}
		newLen := len(rows) - dropped
		if newLen < 0 {
			newLen = 0
		}

		rows = rows[:newLen]
		pagination.PageSize = len(rows)
		pagination.HasMore = true
		pagination.NextOffset = pagination.Offset + len(rows)
	}
}
