// Package studo is the authentication core of the Studo app screens.
//
// It signs a user in against a remote identity service and lets them edit
// their name. Presentation is not part of this package: a presenter reads
// controller state and forwards user intents.
//
// # Architecture
//
// FlowController: Drives password sign-in, OAuth redirect sign-in and the
// two-phase password reset. Each submission creates a new AuthAttempt that
// moves NotStarted -> InFlight -> Succeeded or Failed. Only the latest
// submission may change observable state; older responses resolve their
// futures with ErrAttemptSuperseded.
//
// SessionActivator: The single writer of the process-wide ActiveSession. It is
// passed explicitly to everything that needs the session.
//
// ProfileEditor: Loads and saves the first and last name of the signed-in
// user. A failed save keeps what the user typed.
//
// IdentityProvider: The capability interface of the remote identity service.
// The client package implements it over HTTP.
//
// # Basic Usage
//
//	provider := client.NewFrontendClient("https://idp.example.com")
//	sessions := studo.NewSessionActivator(studo.WithSessionStore(store))
//	flow := studo.NewFlowController(provider, sessions,
//	    studo.WithFlowStore(store),
//	    studo.WithContinuationKey(key),
//	)
//
//	attempt, err := flow.SubmitSignIn(ctx, "a@b.com", "secret").Await(ctx)
//	if err != nil {
//	    fmt.Println(flow.State().ErrorMessage())
//	}
//
// # OAuth
//
// InitiateOAuth persists a PendingOAuthFlow and returns the URL to open in the
// browser. The app return URL carries a signed continuation token, so the flow
// can be completed by CompleteOAuth in a later process that shares the same
// FlowStore and continuation key:
//
//	handle, err := flow.InitiateOAuth(ctx, "google").Await(ctx)
//	// open handle.URL; later the OS reinvokes the app with returnURL
//	attempt, err := flow.CompleteOAuth(ctx, returnURL).Await(ctx)
//
// # Persistence
//
// MemoryStore keeps sessions and flows in memory. The stores subpackages
// provide file, GORM, Datastore and Redis backends.
package studo
