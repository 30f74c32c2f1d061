package rpcserver

import (
	"fmt"
	"strings"
)

// BuildTopic writes the subscription topic filter for an RPC server
// instance into out: "vehicles/"+modelID+"/commands/"+clientID+"/"+
// (commandName|"+") followed by a NUL terminator, so the result is
// usable both as an MQTT5 topic filter and as a C-string by a
// downstream matcher. It returns the number of bytes written
// (including the trailing NUL).
//
// commandName may be empty, in which case the single-level wildcard
// "+" is substituted. modelID and clientID must be non-empty.
//
// BuildTopic fails with ErrInvalidArgument if modelID or clientID is
// empty, or if out is shorter than
// len(modelID)+len(clientID)+max(1,len(commandName))+23 bytes — the
// buffer-size precondition carried over unchanged from the original
// C implementation, which reserves more slack than the literal
// concatenation strictly requires.
func BuildTopic(modelID, clientID, commandName string, out []byte) (int, error) {
	if modelID == "" {
		return 0, fmt.Errorf("%w: model_id must not be empty", ErrInvalidArgument)
	}
	if clientID == "" {
		return 0, fmt.Errorf("%w: client_id must not be empty", ErrInvalidArgument)
	}

	cmdLen := len(commandName)
	if cmdLen == 0 {
		cmdLen = 1
	}
	minLen := len(modelID) + len(clientID) + cmdLen + 23
	if len(out) < minLen {
		return 0, fmt.Errorf("%w: out buffer of %d bytes is shorter than the required %d",
			ErrInvalidArgument, len(out), minLen)
	}

	cmd := commandName
	if cmd == "" {
		cmd = "+"
	}

	var b strings.Builder
	b.WriteString("vehicles/")
	b.WriteString(modelID)
	b.WriteString("/commands/")
	b.WriteString(clientID)
	b.WriteByte('/')
	b.WriteString(cmd)
	b.WriteByte(0)

	n := copy(out, b.String())
	return n, nil
}

// BuildTopicString is the convenience form of BuildTopic for callers
// that don't need to manage their own buffer. The returned string
// includes the trailing NUL byte, matching BuildTopic's wire format.
func BuildTopicString(modelID, clientID, commandName string) (string, error) {
	cmdLen := len(commandName)
	if cmdLen == 0 {
		cmdLen = 1
	}
	buf := make([]byte, len(modelID)+len(clientID)+cmdLen+23)
	n, err := BuildTopic(modelID, clientID, commandName, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// topicMatches reports whether topic matches the MQTT5 topic filter
// sub. "+" matches exactly one level; "#" matches zero or more
// trailing levels and is only valid as the filter's final token. A
// trailing NUL terminator (as produced by BuildTopic) is trimmed from
// both sub and topic before matching.
func topicMatches(sub, topic string) bool {
	sub = strings.TrimSuffix(sub, "\x00")
	topic = strings.TrimSuffix(topic, "\x00")

	subLevels := strings.Split(sub, "/")
	topicLevels := strings.Split(topic, "/")

	for i, sl := range subLevels {
		if sl == "#" {
			// Multi-level wildcard: must be the last token, matches
			// everything remaining (including nothing at all).
			return i == len(subLevels)-1
		}

		if i >= len(topicLevels) {
			return false
		}

		if sl == "+" {
			continue
		}

		if sl != topicLevels[i] {
			return false
		}
	}

	return len(subLevels) == len(topicLevels)
}
