package dispatch

// User-visible texts. Commands are appended on their own line as
// "/<command>".
const (
	msgSubscribed        = "Subscribed"
	msgUnsubscribed      = "Unsubscribed"
	msgEmptyResultSet    = "Empty result set"
	msgNoSubscriptions   = "You have no subscriptions."
	msgSubscriptionsHead = "Your subscriptions:"

	msgRegisterSuccessful = "Registration successful. Log in with this link:"
	msgRegisterExisting   = "You are already registered. Log in with this link:"

	labelSubscribe   = "Subscribe"
	labelUnsubscribe = "Unsubscribe"
	labelLogin       = "Log in"
)

// DefaultLoginURL is the base of the login links sent to registered users.
const DefaultLoginURL = "https://govbot.local/login"
