package billing

import (
	"context"
	"errors"
	"fmt"
)

// RequirePlan loads userID and checks that its plan is one of plans. With no plans
// listed any paid plan is accepted. A canceled subscription keeps access until the
// provider deletes it.
func (s *Service) RequirePlan(ctx context.Context, userID string, plans ...string) (*User, error) {
	if userID == "" {
		return nil, ErrLoginRequired
	}
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrLoginRequired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !hasPlan(user.Plan, plans) {
		return user, ErrPlanRequired
	}
	return user, nil
}

func hasPlan(current string, plans []string) bool {
	if len(plans) == 0 {
		return current != "" && current != FreePlanID
	}
	for _, p := range plans {
		if p == current {
			return true
		}
	}
	return false
}
