package main

import (
	"errors"
	"fmt"

	"ispl/internal/analysis"
	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/auth"
	"ispl/internal/collection"
	"ispl/internal/config"
	"ispl/internal/conversation"
	"ispl/internal/flight"
	"ispl/internal/gateway"
	"ispl/internal/logging"
	"ispl/internal/workflowlog"
)

// workflowLogLimit caps the set the log viewer fetches in one load.
const workflowLogLimit = 500

// app is the wired client: one token store and gateway shared by every
// orchestrator.
type app struct {
	cfg     *config.Config
	store   *auth.TokenStore
	client  *api.Client
	session *auth.Manager

	conversation *conversation.Conversation
	collection   *collection.Collection
	analysis     *analysis.Analysis
	logs         *workflowlog.Viewer
}

func newApp(c *config.Config) (*app, error) {
	store, err := auth.NewTokenStore(c.Session.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	transport := gateway.NewTransport(c.API.BaseURL, c.GetTimeout())
	client := api.New(gateway.New(transport, store), api.Options{
		UploadTimeout:  c.GetUploadTimeout(),
		AnalyzeTimeout: c.GetAnalyzeTimeout(),
	})

	a := &app{
		cfg:     c,
		store:   store,
		client:  client,
		session: auth.NewManager(store, client),
		conversation: conversation.New(client, conversation.Options{
			Limit:         c.Search.Limit,
			SecurityLevel: c.Search.SecurityLevel,
		}),
		collection: collection.New(client, artifact.NewViewer(client)),
		analysis:   analysis.New(client, int(c.Image.MaxBytes)),
		logs:       workflowlog.NewViewer(client, workflowLogLimit),
	}
	logging.BootDebug("client wired against %s (token file %s)", c.API.BaseURL, store.Path())
	return a, nil
}

// requireSession fails fast when no token is stored.
func (a *app) requireSession() error {
	if !a.session.Current().Authenticated() {
		return &auth.AuthError{Kind: auth.KindNotLoggedIn}
	}
	return nil
}

// Close releases transient artifacts and stops the token watcher.
func (a *app) Close() error {
	if v := a.collection.Viewer(); v != nil {
		v.CloseAll()
	}
	a.analysis.Reset()
	return a.store.Close()
}

// describe turns an error into the one line shown to the user.
func describe(err error) error {
	var ve *flight.ValidationError
	var ae *auth.AuthError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve):
		return ve
	case errors.As(err, &ae):
		return errors.New(ae.Message())
	case gateway.IsUnauthorized(err):
		return errors.New("your session has expired; run `ispl login` again")
	}
	return errors.New(gateway.Detail(err))
}
