package accounts

// AccountStatus records which flow created or last re-onboarded the account.
type AccountStatus string

const (
	// StatusUnregistered is the zero value, the account does not exist yet.
	StatusUnregistered AccountStatus = ""
	// StatusPendingInvite is set by Invite and ResendInvitation.
	StatusPendingInvite AccountStatus = "PENDING_INVITE"
	// StatusSelfSignedUp is set by Signup.
	StatusSelfSignedUp AccountStatus = "SELF_SIGNED_UP"
)

var accountTransitions = map[AccountStatus]map[AccountStatus]struct{}{
	StatusUnregistered: {
		StatusPendingInvite: {},
		StatusSelfSignedUp:  {},
	},
	StatusPendingInvite: {
		StatusPendingInvite: {},
	},
	StatusSelfSignedUp: {
		StatusPendingInvite: {},
	},
}

// CanTransition reports whether an account may move from one status to
// another.
func CanTransition(from, to AccountStatus) bool {
	allowed, ok := accountTransitions[from]
	if !ok {
		return false
	}
	_, exists := allowed[to]
	return exists
}

func checkTransition(account *Account, to AccountStatus) error {
	from := StatusUnregistered
	if account != nil {
		from = account.Status
	}
	if CanTransition(from, to) {
		return nil
	}
	return newError(ErrInvalidStatus, nil, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}

// channelFor returns the channel and username for a contact pair. Email wins
// when both are present.
func channelFor(email, phone string) (ContactChannel, string) {
	if email != "" {
		return ChannelEmail, email
	}
	return ChannelPhone, phone
}

// resendChannelFor is channelFor for invitation resends, where phone wins
// when both are present.
func resendChannelFor(email, phone string) (ContactChannel, string) {
	if phone != "" {
		return ChannelPhone, phone
	}
	return ChannelEmail, email
}
