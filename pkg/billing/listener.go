package billing

import "context"

// Listener receives subscription lifecycle notifications after local state is saved.
// Implementations must not block for long: they run inside the request.
type Listener interface {
	// OnUpgrade is called after a user's plan is committed.
	OnUpgrade(ctx context.Context, user *User, planID string)

	// OnCancel is called after a subscription deletion resets the user to the free plan.
	OnCancel(ctx context.Context, user *User)

	// OnTrialWillEnd is called when the provider announces the end of a trial.
	OnTrialWillEnd(ctx context.Context, user *User, sub *Subscription)
}

// NoopListener ignores every notification.
type NoopListener struct{}

// OnUpgrade does nothing.
func (NoopListener) OnUpgrade(context.Context, *User, string) {}

// OnCancel does nothing.
func (NoopListener) OnCancel(context.Context, *User) {}

// OnTrialWillEnd does nothing.
func (NoopListener) OnTrialWillEnd(context.Context, *User, *Subscription) {}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	// Upgrade backs OnUpgrade.
	Upgrade func(ctx context.Context, user *User, planID string)

	// Cancel backs OnCancel.
	Cancel func(ctx context.Context, user *User)

	// TrialWillEnd backs OnTrialWillEnd.
	TrialWillEnd func(ctx context.Context, user *User, sub *Subscription)
}

// OnUpgrade calls f.Upgrade if set.
func (f ListenerFuncs) OnUpgrade(ctx context.Context, user *User, planID string) {
	if f.Upgrade != nil {
		f.Upgrade(ctx, user, planID)
	}
}

// OnCancel calls f.Cancel if set.
func (f ListenerFuncs) OnCancel(ctx context.Context, user *User) {
	if f.Cancel != nil {
		f.Cancel(ctx, user)
	}
}

// OnTrialWillEnd calls f.TrialWillEnd if set.
func (f ListenerFuncs) OnTrialWillEnd(ctx context.Context, user *User, sub *Subscription) {
	if f.TrialWillEnd != nil {
		f.TrialWillEnd(ctx, user, sub)
	}
}
