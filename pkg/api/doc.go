// Package api exposes the user, permission and organization services as a
// JSON REST API on a gorilla/mux router.
//
// # Routes
//
// Signup, availability checks, confirmation and password reset are open.
// Everything else requires HTTP Basic credentials, either the account
// password or an API token as the password. Writes to credentials
// (keys, tokens, third-party tokens, profile) additionally require the
// account password.
//
//	POST   /users                              signup
//	GET    /users/{username}/available         {available}
//	POST   /users/email/taken                  {taken}
//	POST   /users/{username}/confirm           {message, hasPassword[, shake]}
//	POST   /users/{username}/forgot            reset shake / new password
//	GET    /auth                               {user, authorized}
//	GET    /users/me                           {user}
//	GET    /users/{username}                   {user}
//	GET    /search/{partial}                   {users}
//	PUT    /users/{username}/permissions       allow {name, value}
//	DELETE /users/{username}/permissions       disallow {name, value}
//	PUT    /organizations/{id}                 create or update
//
// Errors are written as {"code", "error"} with the status of the
// underlying apierrors.Error.
//
// # Usage
//
//	srv := api.NewServer(api.Options{
//	    Users:   userSvc,
//	    Orgs:    orgSvc,
//	    Catalog: catalog,
//	    Auth:    middleware.NewAuthenticator(auth.NewStrategy(userSvc), userSvc, logger, metrics),
//	    Logger:  logger,
//	})
//	http.ListenAndServe(":8080", srv)
package api
