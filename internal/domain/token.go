package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TokenEnv is the environment variable carrying a task token into its process.
const TokenEnv = "MAGICBIN_TOKEN"

// DaemonEnv marks processes running as the daemon; it is removed from task environments.
const DaemonEnv = "MAGICBIN_DAEMON"

// CreateToken returns the opaque token identifying a task of a namespace.
// The token is base64 of the JSON array [namespace, taskId].
func CreateToken(namespace, taskID string) string {
	data, _ := json.Marshal([]string{namespace, taskID})
	return base64.StdEncoding.EncodeToString(data)
}

// ParseToken decodes a token created by CreateToken.
func ParseToken(token string) (namespace, taskID string, err error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidToken
	}

	return parts[0], parts[1], nil
}
