package services

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func testTokens() TokenService {
	return TokenService{Secret: []byte("test-secret"), Issuer: "tradehub", AccessTTL: time.Hour}
}

func TestPasswordHashing(t *testing.T) {
	c := qt.New(t)
	tokens := testTokens()

	hash, err := tokens.HashPassword("correct horse")
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Matches, `\$argon2id\$v=19\$m=65536,t=3,p=1\$.+\$.+`)
	c.Assert(tokens.VerifyPassword("correct horse", hash), qt.IsTrue)
	c.Assert(tokens.VerifyPassword("wrong horse", hash), qt.IsFalse)
}

func TestVerifyPasswordRejectsUnsafeCosts(t *testing.T) {
	const salt, key = "c2FsdHNhbHRzYWx0c2FsdA", "a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2U"
	tests := []struct {
		name   string
		params string
	}{
		{name: "zero threads", params: "m=65536,t=3,p=0"},
		{name: "zero rounds", params: "m=65536,t=0,p=1"},
		{name: "zero memory", params: "m=0,t=3,p=1"},
		{name: "huge memory", params: "m=4294967295,t=3,p=1"},
		{name: "many rounds", params: "m=65536,t=1000000,p=1"},
		{name: "many threads", params: "m=65536,t=3,p=255"},
		{name: "garbage", params: "m=x,t=3,p=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			hash := "$argon2id$v=19$" + tt.params + "$" + salt + "$" + key
			c.Assert(testTokens().VerifyPassword("anything", hash), qt.IsFalse)
		})
	}
}

func TestVerifyPasswordBcryptFallback(t *testing.T) {
	c := qt.New(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	c.Assert(err, qt.IsNil)
	c.Assert(testTokens().VerifyPassword("legacy-pass", string(hash)), qt.IsTrue)
	c.Assert(testTokens().VerifyPassword("other", string(hash)), qt.IsFalse)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	c := qt.New(t)
	tokens := testTokens()

	signed, exp, err := tokens.CreateAccessToken("u1", "admin@example.com", RoleAdmin, "s1")
	c.Assert(err, qt.IsNil)
	c.Assert(exp > time.Now().Unix(), qt.IsTrue)

	claims, err := tokens.ParseAccessToken(signed)
	c.Assert(err, qt.IsNil)
	c.Assert(claims.UserID, qt.Equals, "u1")
	c.Assert(claims.Email, qt.Equals, "admin@example.com")
	c.Assert(claims.Role, qt.Equals, RoleAdmin)
	c.Assert(claims.SessionID, qt.Equals, "s1")
	c.Assert(claims.ExpiresAt.Unix(), qt.Equals, exp)
}

func TestParseAccessTokenRejects(t *testing.T) {
	tokens := testTokens()
	valid, _, err := tokens.CreateAccessToken("u1", "a@example.com", RoleEditor, "s1")
	qt.Assert(t, err, qt.IsNil)

	otherSecret := tokens
	otherSecret.Secret = []byte("another-secret")
	forged, _, err := otherSecret.CreateAccessToken("u1", "a@example.com", RoleAdmin, "s1")
	qt.Assert(t, err, qt.IsNil)

	expired := tokens
	expired.AccessTTL = -time.Minute
	stale, _, err := expired.CreateAccessToken("u1", "a@example.com", RoleEditor, "s1")
	qt.Assert(t, err, qt.IsNil)

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "tradehub", "sub": "u1", "typ": "refresh", "sid": "s1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	wrongType, err := refresh.SignedString(tokens.Secret)
	qt.Assert(t, err, qt.IsNil)

	noSession, _, err := tokens.CreateAccessToken("u1", "a@example.com", RoleEditor, "")
	qt.Assert(t, err, qt.IsNil)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", forged},
		{"expired", stale},
		{"wrong type", wrongType},
		{"missing session", noSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ParseAccessToken(tt.token)
			qt.Assert(t, err, qt.Not(qt.IsNil))
		})
	}
	_, err = tokens.ParseAccessToken(valid)
	qt.Assert(t, err, qt.IsNil)
}
