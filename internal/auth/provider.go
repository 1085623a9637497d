// ABOUTME: Bearer token providers for outbound requests to the agent under test
// ABOUTME: Static tokens for real deployments, self-issued JWTs for local agents

package auth

import "time"

// defaultTokenTTL bounds self-issued token lifetime to one test run.
const defaultTokenTTL = time.Hour

// TokenProvider supplies the bearer token attached to every request the
// harness submits to the agent under test.
type TokenProvider interface {
	Token() (string, error)
}

// StaticProvider returns a fixed, externally acquired token.
type StaticProvider struct {
	token string
}

// NewStaticProvider wraps an existing bearer token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// Token returns the wrapped token. An empty token means unauthenticated
// requests, which local agents commonly accept.
func (p *StaticProvider) Token() (string, error) {
	return p.token, nil
}

// SelfIssuedProvider mints short-lived HS256 tokens the fake agent (or
// any agent sharing the secret) can verify.
type SelfIssuedProvider struct {
	issuer  *JWTIssuer
	subject string
}

// NewSelfIssuedProvider creates a provider minting tokens for the given
// subject.
func NewSelfIssuedProvider(secret []byte, issuer, subject string) *SelfIssuedProvider {
	return &SelfIssuedProvider{
		issuer:  NewJWTIssuer(secret, issuer),
		subject: subject,
	}
}

// Token mints a fresh token on every call. Tokens are cheap at test
// scale, so no caching is done.
func (p *SelfIssuedProvider) Token() (string, error) {
	return p.issuer.Generate(p.subject, defaultTokenTTL)
}
