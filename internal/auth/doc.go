// Package auth supplies bearer tokens for requests to the agent under test.
//
// # Providers
//
// Two TokenProvider implementations are available:
//
//   - StaticProvider: wraps an externally acquired token verbatim. Use
//     this against deployed agents where token acquisition happens out
//     of band.
//
//   - SelfIssuedProvider: mints short-lived HS256 JWTs from a shared
//     secret. Local agents (including the bundled fake agent) verify
//     them with the same secret, so a full identity service is not
//     needed for harness runs.
//
// # Token Verification
//
// JWTIssuer verifies as well as issues, so an in-process fake agent can
// reject bad tokens:
//
//	issuer := auth.NewJWTIssuer(secret, "")
//	subject, err := issuer.Verify(bearer)
//
// Token acquisition against a real identity service is out of scope;
// acquire the token elsewhere and hand it to StaticProvider.
package auth
