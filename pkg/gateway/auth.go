package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// MaxAuthAttempts is the number of failed attempts before a client is dropped
const MaxAuthAttempts = 3

// AuthHandler manages challenge-response authentication
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{
		sharedSecret: sharedSecret,
	}
}

// GenerateChallenge generates a cryptographically random 32-byte challenge
func (a *AuthHandler) GenerateChallenge() (string, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(challenge), nil
}

// Sign returns the hex HMAC-SHA256 of challenge under secret
func Sign(secret, challenge string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 signature against a challenge
func (a *AuthHandler) VerifySignature(challenge, signature string) bool {
	expected := Sign(a.sharedSecret, challenge)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// VerifySecret compares a presented secret in constant time
func (a *AuthHandler) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(a.sharedSecret), []byte(secret)) == 1
}

// issueChallenge stores a fresh challenge on the client
func (a *AuthHandler) issueChallenge(client *Client) (string, error) {
	challenge, err := a.GenerateChallenge()
	if err != nil {
		return "", err
	}

	client.mu.Lock()
	client.challenge = challenge
	client.mu.Unlock()

	return challenge, nil
}

// HandleAuthResponse processes an authentication response from a client
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.challenge == "" {
		return AuthResult{
			Event:   "auth.failure",
			Message: "No challenge found",
		}
	}

	if !a.VerifySignature(client.challenge, signature) {
		client.authAttempts++

		if client.authAttempts >= MaxAuthAttempts {
			return AuthResult{
				Event:   "auth.failure",
				Message: "Too many failed attempts",
			}
		}

		return AuthResult{
			Event:   "auth.failure",
			Message: "Invalid signature",
		}
	}

	client.authenticated = true
	client.authAttempts = 0
	client.challenge = ""

	return AuthResult{
		Event:   "auth.success",
		Success: true,
	}
}
