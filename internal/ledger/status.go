package ledger

import (
	"slices"
	"strings"

	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

// Lock state of every configured team plus any other team in snapshot, sorted by name.
// Configured teams missing from snapshot are reported as not submitted.
func Statuses(snapshot map[string]bool, teams []config.Team) []types.LockStatus {
	locks := make([]types.LockStatus, 0, len(snapshot)+len(teams))
	for _, team := range teams {
		if _, ok := snapshot[team.Name]; !ok {
			locks = append(locks, types.LockStatus{Team: team.Name})
		}
	}
	for team, submitted := range snapshot {
		locks = append(locks, types.LockStatus{Team: team, Submitted: submitted})
	}

	slices.SortFunc(locks, func(a, b types.LockStatus) int {
		return strings.Compare(a.Team, b.Team)
	})
	return locks
}
